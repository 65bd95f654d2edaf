package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"kalda/internal/domain/members"
	"kalda/internal/domain/paymentsrepo"
	"kalda/internal/domain/receipts"
	"kalda/internal/notifications"
)

// Common test errors
var (
	ErrMockStore   = errors.New("mock store error")
	ErrMockGateway = errors.New("mock gateway error")
)

// MockPaymentStore implements paymentsrepo.Store in memory with the same
// conditional-transition guarantee as the real repository.
type MockPaymentStore struct {
	mu      sync.Mutex
	records map[string]*paymentsrepo.Payment
	nextID  int64

	FailCreate           error
	EffectiveTransitions int
}

func NewMockPaymentStore() *MockPaymentStore {
	return &MockPaymentStore{records: make(map[string]*paymentsrepo.Payment)}
}

// Put seeds a record directly, for tests that need custom timestamps.
func (m *MockPaymentStore) Put(p *paymentsrepo.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	m.records[p.Reference] = p
}

func (m *MockPaymentStore) Create(ctx context.Context, p *paymentsrepo.Payment) (*paymentsrepo.Payment, error) {
	if m.FailCreate != nil {
		return nil, m.FailCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[p.Reference]; exists {
		return nil, errors.New("duplicate reference")
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Currency == "" {
		p.Currency = "KES"
	}
	m.records[p.Reference] = p
	return p, nil
}

func (m *MockPaymentStore) GetByReference(ctx context.Context, reference string) (*paymentsrepo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*paymentsrepo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.records {
		if p.CheckoutRequestID != nil && *p.CheckoutRequestID == checkoutRequestID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentStore) SetCheckoutIDs(ctx context.Context, reference, merchantRequestID, checkoutRequestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok {
		return errors.New("no such payment")
	}
	p.MerchantRequestID = &merchantRequestID
	p.CheckoutRequestID = &checkoutRequestID
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MockPaymentStore) IncrementAttempts(ctx context.Context, reference string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok {
		return 0, errors.New("no such payment")
	}
	p.AttemptCount++
	return p.AttemptCount, nil
}

func (m *MockPaymentStore) Transition(ctx context.Context, reference string, target paymentsrepo.Status, mpesaReceipt, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.records[reference]
	if !ok || p.Status != paymentsrepo.StatusPending {
		return false, nil
	}

	p.Status = target
	if mpesaReceipt != "" {
		p.MpesaReceipt = &mpesaReceipt
	}
	if reason != "" {
		p.FailureReason = &reason
	}
	if target == paymentsrepo.StatusConfirmed {
		now := time.Now()
		p.ConfirmedAt = &now
	}
	p.UpdatedAt = time.Now()
	m.EffectiveTransitions++
	return true, nil
}

func (m *MockPaymentStore) ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*paymentsrepo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var out []*paymentsrepo.Payment
	for _, p := range m.records {
		if p.Status == paymentsrepo.StatusPending && p.CreatedAt.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentStore) List(ctx context.Context, f paymentsrepo.ListFilters, limit, offset int) ([]*paymentsrepo.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*paymentsrepo.Payment
	for _, p := range m.records {
		if f.Status != "" && string(p.Status) != f.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

// MockGateway implements Gateway with injectable behavior.
type MockGateway struct {
	mu         sync.Mutex
	PushFunc   func(ctx context.Context, req PushRequest) (PushAck, error)
	QueryFunc  func(ctx context.Context, checkoutRequestID string) (StatusResult, error)
	PushCalls  int
	QueryCalls int
}

func (g *MockGateway) Push(ctx context.Context, req PushRequest) (PushAck, error) {
	g.mu.Lock()
	g.PushCalls++
	g.mu.Unlock()
	if g.PushFunc != nil {
		return g.PushFunc(ctx, req)
	}
	return PushAck{MerchantRequestID: "MR-1", CheckoutRequestID: "ws_CO_TEST"}, nil
}

func (g *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResult, error) {
	g.mu.Lock()
	g.QueryCalls++
	g.mu.Unlock()
	if g.QueryFunc != nil {
		return g.QueryFunc(ctx, checkoutRequestID)
	}
	return StatusResult{State: StatePending}, nil
}

// MockMemberStore implements members.Store.
type MockMemberStore struct {
	mu          sync.Mutex
	Members     map[int64]*members.Member
	ExtendCalls []int64
}

func NewMockMemberStore() *MockMemberStore {
	return &MockMemberStore{Members: make(map[int64]*members.Member)}
}

func (m *MockMemberStore) GetByID(ctx context.Context, id int64) (*members.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.Members[id]
	if !ok {
		return nil, nil
	}
	return mem, nil
}

func (m *MockMemberStore) ExtendMembership(ctx context.Context, memberID int64, months int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtendCalls = append(m.ExtendCalls, memberID)
	return nil
}

// MockReceiptStore implements receipts.Store.
type MockReceiptStore struct {
	mu      sync.Mutex
	Created []int64
}

func (m *MockReceiptStore) Create(ctx context.Context, paymentID int64) (*receipts.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, paymentID)
	return &receipts.Receipt{ID: int64(len(m.Created)), PaymentID: paymentID, ReceiptNumber: "RCT-TEST"}, nil
}

func (m *MockReceiptStore) GetByPaymentID(ctx context.Context, paymentID int64) (*receipts.Receipt, error) {
	return nil, errors.New("not implemented")
}

// MockLogsStore implements paymentsrepo.LogsStore.
type MockLogsStore struct {
	mu      sync.Mutex
	Entries []string
}

func (m *MockLogsStore) InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, logType)
	return nil
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu       sync.Mutex
	Sent     []notifications.Notification
	FailWith error
}

func (m *MockNotifier) Send(ctx context.Context, n notifications.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return m.FailWith
}

func (m *MockNotifier) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
