package order

import (
	"context"
	"strings"
	"testing"

	"purchase-agent/internal/models"
	"purchase-agent/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	order   *models.PurchaseOrder
	applied []store.OrderUpdate
	miss    bool
}

func (f *fakeOrderStore) GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error) {
	return f.order, nil
}

func (f *fakeOrderStore) TransitionOrder(ctx context.Context, orderID int64, fromStatus string, upd store.OrderUpdate) (bool, error) {
	if f.miss {
		return false, nil
	}
	f.applied = append(f.applied, upd)
	if f.order != nil {
		f.order.Status = upd.Status
	}
	return true, nil
}

func TestTransitionGraph(t *testing.T) {
	assert.True(t, CanTransition(models.OrderStatusPending, models.OrderStatusProcessing))
	assert.True(t, CanTransition(models.OrderStatusPending, models.OrderStatusAwaitingConfirmation))
	assert.True(t, CanTransition(models.OrderStatusProcessing, models.OrderStatusCompleted))
	assert.True(t, CanTransition(models.OrderStatusFailed, models.OrderStatusPending))
	assert.True(t, CanTransition(models.OrderStatusAwaitingConfirmation, models.OrderStatusProcessing))

	assert.False(t, CanTransition(models.OrderStatusCompleted, models.OrderStatusPending))
	assert.False(t, CanTransition(models.OrderStatusCancelled, models.OrderStatusPending))
	assert.False(t, CanTransition(models.OrderStatusPending, models.OrderStatusCompleted))
	assert.False(t, CanTransition(models.OrderStatusProcessing, models.OrderStatusPending))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.OrderStatusCompleted))
	assert.True(t, IsTerminal(models.OrderStatusCancelled))
	assert.False(t, IsTerminal(models.OrderStatusPending))
	assert.False(t, IsTerminal(models.OrderStatusFailed))
}

func TestMarkProcessingRecordsSelection(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	err := m.MarkProcessing(context.Background(), 7, 2, decimal.NewFromInt(95))
	require.NoError(t, err)

	require.Len(t, st.applied, 1)
	upd := st.applied[0]
	assert.Equal(t, models.OrderStatusProcessing, upd.Status)
	require.NotNil(t, upd.SelectedMerchantID)
	assert.Equal(t, int64(2), *upd.SelectedMerchantID)
	require.NotNil(t, upd.FinalPrice)
	assert.True(t, upd.FinalPrice.Equal(decimal.NewFromInt(95)))
}

func TestTransitionRejectsForbiddenEdge(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	err := m.Transition(context.Background(), 7, models.OrderStatusCompleted, store.OrderUpdate{
		Status: models.OrderStatusPending,
	})

	var ierr InvalidTransitionError
	require.ErrorAs(t, err, &ierr)
	assert.Empty(t, st.applied, "forbidden transitions must not reach the store")
}

func TestTransitionConflictOnStatusMismatch(t *testing.T) {
	st := &fakeOrderStore{miss: true}
	m := NewStateMachine(st)

	err := m.MarkProcessing(context.Background(), 7, 2, decimal.NewFromInt(95))

	var cerr ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, int64(7), cerr.OrderID)
	assert.Equal(t, models.OrderStatusPending, cerr.Expected)
}

func TestMarkFailedTruncatesReason(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	long := strings.Repeat("x", 500)
	err := m.MarkFailed(context.Background(), 7, models.OrderStatusProcessing, long)
	require.NoError(t, err)

	require.Len(t, st.applied, 1)
	require.NotNil(t, st.applied[0].ErrorMessage)
	assert.Len(t, *st.applied[0].ErrorMessage, 200)
}

func TestMarkPaymentFailedKeepsProviderReply(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	raw := []byte(`{"status":"declined","code":"51"}`)
	err := m.MarkPaymentFailed(context.Background(), 7, models.OrderStatusProcessing, "charge declined", raw)
	require.NoError(t, err)

	require.Len(t, st.applied, 1)
	upd := st.applied[0]
	assert.Equal(t, models.OrderStatusFailed, upd.Status)
	require.NotNil(t, upd.PaymentStatus)
	assert.Equal(t, models.PaymentStatusFailed, *upd.PaymentStatus)
	assert.Equal(t, raw, upd.PaymentResponse)
	require.NotNil(t, upd.ErrorMessage)
	assert.Equal(t, "charge declined", *upd.ErrorMessage)
}

func TestMarkCompletedSetsCompletionFields(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	err := m.MarkCompleted(context.Background(), 7, models.PaymentStatusSuccess, []byte(`{"ok":true}`))
	require.NoError(t, err)

	require.Len(t, st.applied, 1)
	upd := st.applied[0]
	assert.Equal(t, models.OrderStatusCompleted, upd.Status)
	require.NotNil(t, upd.PaymentStatus)
	assert.Equal(t, models.PaymentStatusSuccess, *upd.PaymentStatus)
	assert.NotNil(t, upd.CompletedAt)
}

func TestCancelUsesCurrentStatus(t *testing.T) {
	st := &fakeOrderStore{order: &models.PurchaseOrder{ID: 7, Status: models.OrderStatusProcessing}}
	m := NewStateMachine(st)

	require.NoError(t, m.Cancel(context.Background(), 7))
	require.Len(t, st.applied, 1)
	assert.Equal(t, models.OrderStatusCancelled, st.applied[0].Status)
}

func TestCancelTerminalOrderFails(t *testing.T) {
	st := &fakeOrderStore{order: &models.PurchaseOrder{ID: 7, Status: models.OrderStatusCompleted}}
	m := NewStateMachine(st)

	err := m.Cancel(context.Background(), 7)
	var ierr InvalidTransitionError
	require.ErrorAs(t, err, &ierr)
}

func TestRequeueClearsError(t *testing.T) {
	st := &fakeOrderStore{}
	m := NewStateMachine(st)

	require.NoError(t, m.Requeue(context.Background(), 7))
	require.Len(t, st.applied, 1)
	assert.Equal(t, models.OrderStatusPending, st.applied[0].Status)
	require.NotNil(t, st.applied[0].ErrorMessage)
	assert.Empty(t, *st.applied[0].ErrorMessage)
}
