package order

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type memOrderRepo struct {
	mu        sync.Mutex
	created   []*Order
	createErr error
	lastErr   error
}

func (r *memOrderRepo) LastOrderNumber(_ context.Context, prefix string) (string, error) {
	if r.lastErr != nil {
		return "", r.lastErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last := ""
	for _, o := range r.created {
		if strings.HasPrefix(o.Number, prefix) && o.Number > last {
			last = o.Number
		}
	}
	return last, nil
}

func (r *memOrderRepo) Create(_ context.Context, o *Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, o)
	return nil
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

type memFileStore struct {
	mu       sync.Mutex
	pending  map[string]*Order
	writeErr error
}

func newMemFileStore() *memFileStore {
	return &memFileStore{pending: make(map[string]*Order)}
}

func (s *memFileStore) Write(_ context.Context, o *Order) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[o.Number] = o
	return nil
}

func (s *memFileStore) Read(_ context.Context, key string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.pending[key]
	if !ok {
		return nil, errors.Errorf("no artifact %s", key)
	}
	return o, nil
}

func (s *memFileStore) ListPending(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		if limit > 0 && len(keys) == limit {
			break
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memFileStore) MoveToDelivered(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

func (s *memFileStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// --- Helpers ---

func testRequest(customerID int64) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID:  customerID,
		Name:        "Budi",
		Email:       "budi@example.com",
		Address:     "Jl. Sudirman 1",
		PaymentType: "transfer",
		Item: Item{
			ProductID: 11,
			Name:      "Kopi",
			Price:     decimal.RequireFromString("25000"),
			Quantity:  2,
		},
	}
}

func newTestService(t *testing.T, repo Repository, files FileStore, gate *IntakeGate, delay time.Duration) *Service {
	t.Helper()
	svc, err := NewService(repo, files, gate, ServiceConfig{ProcessingDelay: delay})
	require.NoError(t, err)
	return svc
}

// --- Tests ---

func TestSubmit_Success(t *testing.T) {
	repo := &memOrderRepo{}
	files := newMemFileStore()
	svc := newTestService(t, repo, files, NewIntakeGate(), time.Millisecond)

	o, err := svc.Submit(context.Background(), testRequest(5))
	require.NoError(t, err)

	today := time.Now().Format("20060102")
	assert.Equal(t, "ORDER-5-"+today+"-00001", o.Number)
	assert.Equal(t, StatusReceived, o.Status)
	assert.True(t, decimal.RequireFromString("50000").Equal(o.Total))
	require.Len(t, o.Items, 1)

	assert.Equal(t, 1, repo.count())
	stored, err := files.Read(context.Background(), o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)
}

func TestSubmit_SequenceIncrementsAcrossSubmissions(t *testing.T) {
	repo := &memOrderRepo{}
	svc := newTestService(t, repo, newMemFileStore(), NewIntakeGate(), time.Millisecond)

	first, err := svc.Submit(context.Background(), testRequest(5))
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), testRequest(5))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(first.Number, "-00001"))
	assert.True(t, strings.HasSuffix(second.Number, "-00002"))
}

func TestSubmit_MidnightRolloverKeepsDatesConsistent(t *testing.T) {
	repo := &memOrderRepo{}
	svc := newTestService(t, repo, newMemFileStore(), NewIntakeGate(), time.Millisecond)

	// A clock jumping past midnight between reads exposes any path that
	// reads it more than once per submission.
	base := time.Date(2026, 9, 1, 23, 59, 59, 0, time.UTC)
	reads := 0
	svc.now = func() time.Time {
		reads++
		return base.Add(time.Duration(reads-1) * 24 * time.Hour)
	}

	o, err := svc.Submit(context.Background(), testRequest(5))
	require.NoError(t, err)

	assert.Contains(t, o.Number, "-20260901-")
	assert.Equal(t, "20260901", o.CreatedAt.Format("20060102"),
		"CreatedAt must match the order number's date component")
}

func TestSubmit_CustomerBusy(t *testing.T) {
	repo := &memOrderRepo{}
	files := newMemFileStore()
	gate := NewIntakeGate()
	svc := newTestService(t, repo, files, gate, time.Millisecond)

	require.True(t, gate.TryAcquire(5))
	_, err := svc.Submit(context.Background(), testRequest(5))
	require.ErrorIs(t, err, ErrCustomerBusy)

	// Conflict rejection must leave no trace.
	assert.Equal(t, 0, repo.count())
	assert.Equal(t, 0, files.count())
}

func TestSubmit_ConcurrentSameCustomerConflicts(t *testing.T) {
	repo := &memOrderRepo{}
	svc := newTestService(t, repo, newMemFileStore(), NewIntakeGate(), 200*time.Millisecond)

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), testRequest(5))
		firstErr <- err
	}()

	// Second submission lands well inside the first one's delay window.
	time.Sleep(20 * time.Millisecond)
	_, err := svc.Submit(context.Background(), testRequest(5))
	require.ErrorIs(t, err, ErrCustomerBusy)

	require.NoError(t, <-firstErr)
	assert.Equal(t, 1, repo.count())
}

func TestSubmit_DifferentCustomersProceedConcurrently(t *testing.T) {
	repo := &memOrderRepo{}
	svc := newTestService(t, repo, newMemFileStore(), NewIntakeGate(), 100*time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := time.Now()
	for i, id := range []int64{1, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Submit(context.Background(), testRequest(id))
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	// Both delays overlapped instead of serializing.
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSubmit_StorageFailureReleasesGate(t *testing.T) {
	repo := &memOrderRepo{createErr: errors.New("insert failed")}
	files := newMemFileStore()
	gate := NewIntakeGate()
	svc := newTestService(t, repo, files, gate, time.Millisecond)

	_, err := svc.Submit(context.Background(), testRequest(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert order")

	// No artifact on storage failure, and the customer is not wedged.
	assert.Equal(t, 0, files.count())
	assert.True(t, gate.TryAcquire(5))
}

func TestSubmit_FileFailureReleasesGate(t *testing.T) {
	repo := &memOrderRepo{}
	files := newMemFileStore()
	files.writeErr = errors.New("disk full")
	gate := NewIntakeGate()
	svc := newTestService(t, repo, files, gate, time.Millisecond)

	_, err := svc.Submit(context.Background(), testRequest(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write order artifact")

	// Known partial state: the row exists, the artifact does not.
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 0, files.count())
	assert.True(t, gate.TryAcquire(5))
}

func TestSubmit_CanceledDuringDelay(t *testing.T) {
	repo := &memOrderRepo{}
	gate := NewIntakeGate()
	svc := newTestService(t, repo, newMemFileStore(), gate, 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Submit(ctx, testRequest(5))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, repo.count())
	assert.True(t, gate.TryAcquire(5))
}
