package splitpay

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// dateLayout is the wire format of due dates.
const dateLayout = "2006-01-02"

// Handler provides HTTP endpoints for split payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new split payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up read-only split payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/contracts/:id/payment-summary", h.GetPaymentSummary)
	r.GET("/contracts/:id/transactions", h.ListTransactions)
	r.GET("/escrow-transactions/overdue", h.ListOverdue)
	r.GET("/escrow-transactions/:id", h.GetTransaction)
	r.GET("/escrow-accounts/:userId", h.GetAccount)
}

// RegisterProtectedRoutes sets up state-changing split payment routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/contracts", h.CreateContract)
	r.POST("/contracts/:id/split-payment", h.SetupSplitPayment)
	r.POST("/contracts/:id/refund", h.FullRefund)
	r.POST("/contracts/:id/complete", h.CompleteContract)
	r.POST("/escrow-transactions/:id/pay", h.PayMilestone)
	r.POST("/escrow-transactions/:id/release", h.ReleaseMilestone)
	r.POST("/escrow-transactions/:id/refund", h.PartialRefund)
}

// SetupRequest is the body of POST /v1/contracts/:id/split-payment. Rates
// left out fall back to the plan defaults.
type SetupRequest struct {
	PaymentPlan    Plan     `json:"paymentPlan" binding:"required"`
	DepositRate    *float64 `json:"depositRate"`
	InterimRate    *float64 `json:"interimRate"`
	FinalRate      *float64 `json:"finalRate"`
	DepositDueDate string   `json:"depositDueDate"`
	InterimDueDate string   `json:"interimDueDate"`
	FinalDueDate   string   `json:"finalDueDate"`
}

func (r SetupRequest) config() (PlanConfig, error) {
	cfg := DefaultConfig(r.PaymentPlan)
	if r.DepositRate != nil || r.InterimRate != nil || r.FinalRate != nil {
		cfg.DepositRate, cfg.InterimRate, cfg.FinalRate = 0, 0, 0
		if r.DepositRate != nil {
			cfg.DepositRate = *r.DepositRate
		}
		if r.InterimRate != nil {
			cfg.InterimRate = *r.InterimRate
		}
		if r.FinalRate != nil {
			cfg.FinalRate = *r.FinalRate
		}
	}

	var err error
	if cfg.DepositDueDate, err = parseDate(r.DepositDueDate); err != nil {
		return cfg, err
	}
	if cfg.InterimDueDate, err = parseDate(r.InterimDueDate); err != nil {
		return cfg, err
	}
	if cfg.FinalDueDate, err = parseDate(r.FinalDueDate); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PaymentRequest is the PSP confirmation forwarded by the payment webhook.
type PaymentRequest struct {
	PaymentID     string `json:"paymentId" binding:"required"`
	PaymentMethod string `json:"paymentMethod"`
	PaidAmount    string `json:"paidAmount" binding:"required"`
}

// PartialRefundRequest is the body of POST /v1/escrow-transactions/:id/refund.
type PartialRefundRequest struct {
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// FullRefundRequest is the body of POST /v1/contracts/:id/refund.
type FullRefundRequest struct {
	Reason string `json:"reason"`
}

// CreateContract handles POST /v1/contracts
func (h *Handler) CreateContract(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	contract, err := h.service.CreateContract(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contract": contract})
}

// SetupSplitPayment handles POST /v1/contracts/:id/split-payment
func (h *Handler) SetupSplitPayment(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	cfg, err := req.config()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Due dates must use YYYY-MM-DD",
		})
		return
	}

	txs, err := h.service.SetupSplitPayment(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetPaymentSummary handles GET /v1/contracts/:id/payment-summary
func (h *Handler) GetPaymentSummary(c *gin.Context) {
	sum, err := h.service.GetContractPaymentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": sum})
}

// ListTransactions handles GET /v1/contracts/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.service.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// FullRefund handles POST /v1/contracts/:id/refund
func (h *Handler) FullRefund(c *gin.Context) {
	var req FullRefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	ids, err := h.service.ProcessFullRefund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refundedTransactionIds": ids,
		"count":                  len(ids),
	})
}

// CompleteContract handles POST /v1/contracts/:id/complete
func (h *Handler) CompleteContract(c *gin.Context) {
	contract, err := h.service.CompleteContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// GetTransaction handles GET /v1/escrow-transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	t, err := h.service.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": t})
}

// ListOverdue handles GET /v1/escrow-transactions/overdue
func (h *Handler) ListOverdue(c *gin.Context) {
	txs, err := h.service.GetOverdueMilestones(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// PayMilestone handles POST /v1/escrow-transactions/:id/pay
func (h *Handler) PayMilestone(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.service.ProcessMilestonePayment(c.Request.Context(),
		c.Param("id"), req.PaymentID, req.PaymentMethod, req.PaidAmount)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction":   res.Transaction,
		"nextMilestone": res.NextMilestone,
	})
}

// ReleaseMilestone handles POST /v1/escrow-transactions/:id/release
func (h *Handler) ReleaseMilestone(c *gin.Context) {
	t, err := h.service.ReleaseMilestone(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": t})
}

// PartialRefund handles POST /v1/escrow-transactions/:id/refund
func (h *Handler) PartialRefund(c *gin.Context) {
	var req PartialRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	t, err := h.service.ProcessPartialRefund(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": t})
}

// GetAccount handles GET /v1/escrow-accounts/:userId
func (h *Handler) GetAccount(c *gin.Context) {
	a, err := h.service.GetAccount(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": a})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Invalid request body",
	})
}

// writeError maps service errors to HTTP responses. Replayed payment
// confirmations are expected under at-least-once delivery and answer 200.
func writeError(c *gin.Context, err error) {
	switch KindOf(err) {
	case KindIdempotency:
		if errors.Is(err, ErrPaymentIDUsed) {
			c.JSON(http.StatusConflict, gin.H{"error": "payment_id_conflict", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "message": err.Error()})
	case KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case KindInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	case KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case KindAmountMismatch:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "amount_mismatch", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}
