package splitpay

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory split payment store for demo/development.
// A unit of work holds the write lock for its whole duration, which
// serializes concurrent operations the way row locks do in PostgreSQL.
type MemoryStore struct {
	contracts    map[string]*Contract
	transactions map[string]*Transaction
	accounts     map[string]*Account
	stages       map[string][]*Stage // contract_id -> stages
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory split payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts:    make(map[string]*Contract),
		transactions: make(map[string]*Transaction),
		accounts:     make(map[string]*Account),
		stages:       make(map[string][]*Stage),
	}
}

func (m *MemoryStore) CreateContract(ctx context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

// AddStage seeds a legacy stage row. Stages are otherwise read-only.
func (m *MemoryStore) AddStage(st *Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *st
	m.stages[st.ContractID] = append(m.stages[st.ContractID], &cp)
}

func (m *MemoryStore) GetContract(ctx context.Context, id string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetContract(ctx, id)
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetTransaction(ctx, id)
}

func (m *MemoryStore) ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListTransactions(ctx, contractID)
}

func (m *MemoryStore) FindTransactionByPaymentID(ctx context.Context, paymentID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FindTransactionByPaymentID(ctx, paymentID)
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetAccount(ctx, userID)
}

func (m *MemoryStore) ListStages(ctx context.Context, contractID string) ([]*Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Stage
	for _, st := range m.stages[contractID] {
		cp := *st
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].StageOrder < result[j].StageOrder })
	return result, nil
}

func (m *MemoryStore) ListOverdue(ctx context.Context, before time.Time) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, t := range m.transactions {
		if t.Status == TxPending && t.DueDate != nil && t.DueDate.Before(before) {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(*result[j].DueDate) {
			return result[i].DueDate.Before(*result[j].DueDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// WithTx runs fn under the write lock and restores the previous state if fn
// fails.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(m.view()); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	contracts    map[string]Contract
	transactions map[string]Transaction
	accounts     map[string]Account
}

func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{
		contracts:    make(map[string]Contract, len(m.contracts)),
		transactions: make(map[string]Transaction, len(m.transactions)),
		accounts:     make(map[string]Account, len(m.accounts)),
	}
	for k, v := range m.contracts {
		s.contracts[k] = *v
	}
	for k, v := range m.transactions {
		s.transactions[k] = *v
	}
	for k, v := range m.accounts {
		s.accounts[k] = *v
	}
	return s
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.contracts = make(map[string]*Contract, len(s.contracts))
	for k, v := range s.contracts {
		v := v
		m.contracts[k] = &v
	}
	m.transactions = make(map[string]*Transaction, len(s.transactions))
	for k, v := range s.transactions {
		v := v
		m.transactions[k] = &v
	}
	m.accounts = make(map[string]*Account, len(s.accounts))
	for k, v := range s.accounts {
		v := v
		m.accounts[k] = &v
	}
}

// memoryTx operates on the store maps directly; callers hold the lock.
type memoryTx struct {
	m *MemoryStore
}

func (m *MemoryStore) view() *memoryTx { return &memoryTx{m: m} }

func (t *memoryTx) GetContract(ctx context.Context, id string) (*Contract, error) {
	c, ok := t.m.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memoryTx) UpdateContract(ctx context.Context, c *Contract) error {
	if _, ok := t.m.contracts[c.ID]; !ok {
		return ErrContractNotFound
	}
	cp := *c
	t.m.contracts[c.ID] = &cp
	return nil
}

func (t *memoryTx) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	tr, ok := t.m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tr
	return &cp, nil
}

func (t *memoryTx) ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error) {
	var result []*Transaction
	for _, tr := range t.m.transactions {
		if tr.ContractID == contractID {
			cp := *tr
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ri, rj := milestoneRank(result[i].MilestoneType), milestoneRank(result[j].MilestoneType)
		if ri != rj {
			return ri < rj
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (t *memoryTx) FindTransactionByPaymentID(ctx context.Context, paymentID string) (*Transaction, error) {
	if paymentID == "" {
		return nil, ErrTransactionNotFound
	}
	for _, tr := range t.m.transactions {
		if tr.PaymentID == paymentID {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (t *memoryTx) CreateTransaction(ctx context.Context, tr *Transaction) error {
	if _, ok := t.m.contracts[tr.ContractID]; !ok {
		return ErrContractNotFound
	}
	cp := *tr
	t.m.transactions[tr.ID] = &cp
	return nil
}

func (t *memoryTx) UpdateTransaction(ctx context.Context, tr *Transaction) error {
	if _, ok := t.m.transactions[tr.ID]; !ok {
		return ErrTransactionNotFound
	}
	if tr.PaymentID != "" {
		for id, other := range t.m.transactions {
			if id != tr.ID && other.PaymentID == tr.PaymentID {
				return ErrPaymentIDUsed
			}
		}
	}
	cp := *tr
	t.m.transactions[tr.ID] = &cp
	return nil
}

func (t *memoryTx) GetAccount(ctx context.Context, userID string) (*Account, error) {
	a, ok := t.m.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memoryTx) CreateAccount(ctx context.Context, a *Account) error {
	cp := *a
	t.m.accounts[a.UserID] = &cp
	return nil
}

func (t *memoryTx) UpdateAccount(ctx context.Context, a *Account) error {
	if _, ok := t.m.accounts[a.UserID]; !ok {
		return ErrAccountNotFound
	}
	cp := *a
	t.m.accounts[a.UserID] = &cp
	return nil
}

// Compile-time assertions.
var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memoryTx)(nil)
)
