package service

import (
	"context"
	"testing"

	"purchase-agent/internal/models"
	"purchase-agent/internal/order"
	"purchase-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntakeStore struct {
	product *models.Product
	region  *models.Region
	order   *models.PurchaseOrder
	created []*models.PurchaseOrder
}

func (f *fakeIntakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	if f.product == nil {
		return nil, assert.AnError
	}
	return f.product, nil
}

func (f *fakeIntakeStore) GetRegionByID(ctx context.Context, id int64) (*models.Region, error) {
	if f.region == nil {
		return nil, assert.AnError
	}
	return f.region, nil
}

func (f *fakeIntakeStore) CreateOrder(ctx context.Context, ord *models.PurchaseOrder) error {
	ord.ID = 7
	f.created = append(f.created, ord)
	return nil
}

func (f *fakeIntakeStore) GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error) {
	return f.order, nil
}

func (f *fakeIntakeStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.PurchaseOrder, error) {
	if f.order == nil {
		return nil, nil
	}
	return []models.PurchaseOrder{*f.order}, nil
}

func (f *fakeIntakeStore) GetDecisionRecords(ctx context.Context, orderID int64) ([]models.DecisionRecord, error) {
	return nil, nil
}

func (f *fakeIntakeStore) TransitionOrder(ctx context.Context, orderID int64, fromStatus string, upd store.OrderUpdate) (bool, error) {
	if f.order == nil || f.order.Status != fromStatus {
		return false, nil
	}
	f.order.Status = upd.Status
	return true, nil
}

func validCreateRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		UserID:          1,
		ProductID:       42,
		RegionID:        3,
		ShippingAddress: "12 rue de Marseille, Tunis",
		ContactPhone:    "+21622345678",
		PaymentMethod:   models.PaymentMethodCash,
	}
}

func newIntakeService(st *fakeIntakeStore, pub *fakePublisher) *OrderService {
	return NewOrderService(st, order.NewStateMachine(st), pub)
}

func TestCreateOrderPublishesPurchaseRequested(t *testing.T) {
	st := &fakeIntakeStore{
		product: &models.Product{ID: 42, Name: "PC Portable Asus", IsActive: true},
		region:  &models.Region{ID: 3, Name: "Tunis"},
	}
	pub := &fakePublisher{}
	svc := newIntakeService(st, pub)

	resp, err := svc.CreateOrder(context.Background(), validCreateRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.OrderID)
	assert.Equal(t, models.OrderStatusPending, resp.Status)
	require.Len(t, st.created, 1)
	assert.Equal(t, models.OrderStatusPending, st.created[0].Status)
	require.Len(t, pub.requested, 1)
	assert.Equal(t, int64(7), pub.requested[0].OrderID)
	assert.Equal(t, int64(42), pub.requested[0].ProductID)
	assert.NotEmpty(t, pub.requested[0].EventID)
}

func TestCreateOrderRejectsInvalidPhone(t *testing.T) {
	st := &fakeIntakeStore{
		product: &models.Product{ID: 42, IsActive: true},
		region:  &models.Region{ID: 3},
	}
	svc := newIntakeService(st, &fakePublisher{})

	for _, phone := range []string{"", "12345", "+3361234567", "+2161234567890"} {
		req := validCreateRequest()
		req.ContactPhone = phone
		_, err := svc.CreateOrder(context.Background(), req)

		var verr ValidationError
		require.ErrorAs(t, err, &verr, "phone %q must be rejected", phone)
		assert.Equal(t, "contact_phone", verr.Field)
	}
	assert.Empty(t, st.created)
}

func TestCreateOrderAcceptsLocalPhoneFormat(t *testing.T) {
	st := &fakeIntakeStore{
		product: &models.Product{ID: 42, IsActive: true},
		region:  &models.Region{ID: 3},
	}
	svc := newIntakeService(st, &fakePublisher{})

	req := validCreateRequest()
	req.ContactPhone = "22345678"
	_, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateOrderRejectsUnknownPaymentMethod(t *testing.T) {
	st := &fakeIntakeStore{
		product: &models.Product{ID: 42, IsActive: true},
		region:  &models.Region{ID: 3},
	}
	svc := newIntakeService(st, &fakePublisher{})

	req := validCreateRequest()
	req.PaymentMethod = "CRYPTO"
	_, err := svc.CreateOrder(context.Background(), req)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment_method", verr.Field)
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	st := &fakeIntakeStore{
		product: &models.Product{ID: 42, IsActive: false},
		region:  &models.Region{ID: 3},
	}
	svc := newIntakeService(st, &fakePublisher{})

	_, err := svc.CreateOrder(context.Background(), validCreateRequest())

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "product_id", verr.Field)
}

func TestCancelOrderPublishesCancellation(t *testing.T) {
	st := &fakeIntakeStore{
		order: &models.PurchaseOrder{ID: 7, Status: models.OrderStatusPending},
	}
	pub := &fakePublisher{}
	svc := newIntakeService(st, pub)

	require.NoError(t, svc.CancelOrder(context.Background(), 7, "changed my mind"))

	assert.Equal(t, models.OrderStatusCancelled, st.order.Status)
	require.Len(t, pub.cancelled, 1)
	assert.Equal(t, "changed my mind", pub.cancelled[0].Reason)
}

func TestCancelCompletedOrderFails(t *testing.T) {
	st := &fakeIntakeStore{
		order: &models.PurchaseOrder{ID: 7, Status: models.OrderStatusCompleted},
	}
	pub := &fakePublisher{}
	svc := newIntakeService(st, pub)

	err := svc.CancelOrder(context.Background(), 7, "too late")

	var ierr order.InvalidTransitionError
	require.ErrorAs(t, err, &ierr)
	assert.Empty(t, pub.cancelled)
}

func TestRequeueOrderRepublishesStage(t *testing.T) {
	st := &fakeIntakeStore{
		order: &models.PurchaseOrder{ID: 7, ProductID: 42, Status: models.OrderStatusFailed},
	}
	pub := &fakePublisher{}
	svc := newIntakeService(st, pub)

	require.NoError(t, svc.RequeueOrder(context.Background(), 7))

	assert.Equal(t, models.OrderStatusPending, st.order.Status)
	require.Len(t, pub.requested, 1)
	assert.Equal(t, int64(42), pub.requested[0].ProductID)
}
