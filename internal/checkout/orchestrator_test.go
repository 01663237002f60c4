package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAddresses struct {
	mu    sync.Mutex
	owned map[int64]int64
}

func (m *mockAddresses) Get(_ context.Context, id, userID int64) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.owned[id]; ok && owner == userID {
		return &models.Address{ID: id, UserID: userID}, nil
	}
	return nil, apperr.NotFound("address.Get", "address %d not found", id)
}

func (m *mockAddresses) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owned, id)
}

// mockCarts serves every user from one in-memory cart.
type mockCarts struct {
	guests  *cart.GuestStore
	guestID uuid.UUID
}

func newMockCarts(t *testing.T, lines ...cart.Line) *mockCarts {
	t.Helper()
	m := &mockCarts{guests: cart.NewGuestStore(), guestID: uuid.New()}
	c, err := m.Get(context.Background(), cart.Owner{})
	require.NoError(t, err)
	for _, l := range lines {
		_, err := c.AddLine(context.Background(), l)
		require.NoError(t, err)
	}
	return m
}

func (m *mockCarts) Get(ctx context.Context, _ cart.Owner) (*cart.Cart, error) {
	return cart.Open(ctx, cart.NewLocalRepository(m.guests, m.guestID))
}

type mockCommitter struct {
	mu    sync.Mutex
	calls int
	last  CommitRequest
	err   error
}

func (m *mockCommitter) Commit(ctx context.Context, req CommitRequest) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	if err := req.Cart.Clear(ctx); err != nil {
		return nil, err
	}
	return &models.Order{
		ID:               int64(m.calls),
		UserID:           req.UserID,
		OrderNumber:      "ORD-test",
		TotalAmount:      d("109.00"),
		PaymentReference: req.PaymentReference,
	}, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []int64
	err  error
}

func (m *mockNotifier) OrderConfirmed(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, order.ID)
	return m.err
}

const (
	buyer     = int64(1)
	addressID = int64(10)
)

func blackShirt() cart.Line {
	return cart.Line{ProductID: 7, ColorCode: "#000000", Size: "M", Quantity: 2, UnitPrice: d("50.00"), MaxStock: 5}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mockAddresses, *mockCarts, *mockCommitter, *mockNotifier) {
	t.Helper()
	addresses := &mockAddresses{owned: map[int64]int64{addressID: buyer, 20: 2}}
	carts := newMockCarts(t, blackShirt())
	committer := &mockCommitter{}
	notifier := &mockNotifier{}
	return NewOrchestrator(addresses, carts, committer, notifier, 0), addresses, carts, committer, notifier
}

func TestShippingRequiresOwnedAddress(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	flow, err := o.SelectShipping(ctx, buyer, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StepShipping, flow.Step)

	flow, err = o.SelectShipping(ctx, buyer, 20)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, StepShipping, flow.Step)

	flow, err = o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, flow.Step)
	assert.Equal(t, addressID, flow.AddressID)
}

func TestPaymentBeforeShippingIsRejected(t *testing.T) {
	o, _, _, committer, _ := newTestOrchestrator(t)

	flow, err := o.HandlePayment(context.Background(), buyer, PaymentResult{Reference: "pay-1", Succeeded: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StepShipping, flow.Step)
	assert.Zero(t, committer.calls)
}

func TestSuccessfulPaymentConfirms(t *testing.T) {
	o, _, carts, committer, notifier := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-1", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step)
	require.NotNil(t, flow.Receipt)
	assert.Equal(t, "pay-1", flow.Receipt.PaymentReference)
	assert.Equal(t, 1, committer.calls)

	o.Wait()
	assert.Equal(t, []int64{1}, notifier.sent)

	c, err := carts.Get(ctx, cart.Owner{})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = o.Back(buyer)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	again, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-1", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, again.Step)
	assert.Equal(t, 1, committer.calls)
}

func TestConfirmSelectsAddressInOneCall(t *testing.T) {
	o, _, _, committer, _ := newTestOrchestrator(t)

	flow, err := o.HandlePayment(context.Background(), buyer,
		PaymentResult{Reference: "pay-2", Succeeded: true, AddressID: addressID})
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step)
	assert.Equal(t, addressID, flow.AddressID)
	assert.Equal(t, 1, committer.calls)
	o.Wait()
}

func TestFailedCommitStaysOnPayment(t *testing.T) {
	o, _, carts, committer, notifier := newTestOrchestrator(t)
	ctx := context.Background()
	committer.err = &apperr.InsufficientStockError{ProductID: 7, ColorCode: "#000000", Size: "M", Requested: 2, Available: 1}

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-3", Succeeded: true})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))
	assert.Equal(t, StepPayment, flow.Step)
	assert.Contains(t, flow.LastError, "available 1")
	assert.Equal(t, addressID, flow.AddressID)

	c, err := carts.Get(ctx, cart.Owner{})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, 2, c.Lines()[0].Quantity)

	o.Wait()
	assert.Empty(t, notifier.sent)
}

func TestDeclinedPaymentDoesNotCommit(t *testing.T) {
	o, _, _, committer, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-4", Succeeded: false})
	assert.Error(t, err)
	assert.Equal(t, StepPayment, flow.Step)
	assert.NotEmpty(t, flow.LastError)
	assert.Zero(t, committer.calls)
}

func TestAddressRemovedBeforePayment(t *testing.T) {
	o, addresses, _, committer, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)
	addresses.remove(addressID)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-5", Succeeded: true})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, StepPayment, flow.Step)
	assert.Zero(t, committer.calls)
}

func TestBackFromPayment(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.Back(buyer)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, flow.Step)

	flow, err = o.Back(buyer)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, flow.Step)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	o, _, _, _, notifier := newTestOrchestrator(t)
	notifier.err = errors.New("smtp unavailable")
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-6", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step)

	o.Wait()
	assert.Len(t, notifier.sent, 1)
}

func TestConcurrentCallbacksCommitOnce(t *testing.T) {
	o, _, _, committer, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-7", Succeeded: true})
		}()
	}
	wg.Wait()
	o.Wait()

	assert.Equal(t, 1, committer.calls)
	flow, err := o.State(buyer)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step)
}

func TestNewCheckoutAfterConfirmation(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-8", Succeeded: true, AddressID: addressID})
	require.NoError(t, err)
	o.Wait()

	flow, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, flow.Step)
	assert.Nil(t, flow.Receipt)
}

func TestConfirmWithDifferentAddressIsRejected(t *testing.T) {
	o, addresses, _, committer, _ := newTestOrchestrator(t)
	ctx := context.Background()
	addresses.owned[11] = buyer

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	flow, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-9", Succeeded: true, AddressID: 11})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, StepPayment, flow.Step)
	assert.Equal(t, addressID, flow.AddressID)
	assert.NotEmpty(t, flow.LastError)
	assert.Zero(t, committer.calls)

	flow, err = o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-9", Succeeded: true, AddressID: addressID})
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step)
	assert.Equal(t, addressID, committer.last.AddressID)
	o.Wait()
}

func TestCommitCarriesCheckoutStart(t *testing.T) {
	o, _, _, committer, _ := newTestOrchestrator(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return start }

	_, err := o.HandlePayment(ctx, buyer, PaymentResult{Reference: "pay-10", Succeeded: true, AddressID: addressID})
	require.NoError(t, err)
	o.Wait()

	assert.True(t, committer.last.Since.Equal(start))
}

func TestReadingStateDoesNotStartFlows(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)

	for userID := int64(1); userID <= 1000; userID++ {
		flow, err := o.State(userID)
		require.NoError(t, err)
		assert.Equal(t, StepShipping, flow.Step)
	}
	_, err := o.Back(5)
	require.NoError(t, err)

	assert.Zero(t, o.Len())
}

func TestIdleFlowsAreEvicted(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)
	require.Equal(t, 1, o.Len())

	now = now.Add(10 * time.Minute)
	assert.Zero(t, o.Evict(30*time.Minute))
	assert.Equal(t, 1, o.Len())

	now = now.Add(time.Hour)
	assert.Equal(t, 1, o.Evict(30*time.Minute))
	assert.Zero(t, o.Len())

	flow, err := o.State(buyer)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, flow.Step)
}

func TestEvictKeepsFlowsInPayment(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	_, err := o.SelectShipping(ctx, buyer, addressID)
	require.NoError(t, err)

	e := o.flows[buyer]
	e.mu.Lock()
	now = now.Add(time.Hour)
	assert.Zero(t, o.Evict(time.Minute))
	e.mu.Unlock()

	assert.Equal(t, 1, o.Evict(time.Minute))
}
