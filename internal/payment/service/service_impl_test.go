package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/analytics"
	"github.com/appforge/appforge/internal/clock"
	orderdomain "github.com/appforge/appforge/internal/order/domain"
	orderrepository "github.com/appforge/appforge/internal/order/repository"
	"github.com/appforge/appforge/internal/payment/adapters"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	paymentrepository "github.com/appforge/appforge/internal/payment/repository"
	"github.com/appforge/appforge/internal/plan"
	ratingservice "github.com/appforge/appforge/internal/rating/service"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	subscriptionrepository "github.com/appforge/appforge/internal/subscription/repository"
	subscriptionservice "github.com/appforge/appforge/internal/subscription/service"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	walletrepository "github.com/appforge/appforge/internal/wallet/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeAdapter stands in for a provider: Verify is driven by verifyErr
// and Parse returns the prepared notice.
type fakeAdapter struct {
	provider  paymentdomain.Provider
	verifyErr error
	notice    *paymentdomain.Notice
	parseErr  error
}

func (f *fakeAdapter) Provider() paymentdomain.Provider { return f.provider }

func (f *fakeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return f.verifyErr
}

func (f *fakeAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.notice, nil
}

func (f *fakeAdapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusOK, ContentType: "application/json", Body: []byte(`{"received":true}`)}
}

func (f *fakeAdapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusBadRequest, ContentType: "application/json", Body: []byte(`{"received":false}`)}
}

type testEnv struct {
	db      *gorm.DB
	svc     paymentdomain.Service
	subSvc  subscriptiondomain.Service
	clock   *clock.FakeClock
	adapter *fakeAdapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&paymentdomain.PaymentRecord{},
		&paymentdomain.WebhookEvent{},
		&subscriptiondomain.Subscription{},
		&walletdomain.Wallet{},
		&orderdomain.Order{},
		&analytics.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	catalog, err := plan.NewStaticCatalog(plan.DefaultDefinitions())
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	payRepo := paymentrepository.Provide()

	ratingSvc := ratingservice.NewCalculator(ratingservice.Params{Catalog: catalog, Clock: fake})
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        subscriptionrepository.Provide(),
		WalletRepo:  walletrepository.Provide(),
		PaymentRepo: payRepo,
		Catalog:     catalog,
		Clock:       fake,
	})

	adapter := &fakeAdapter{provider: paymentdomain.ProviderStripe}
	svc := NewService(Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Repo:            payRepo,
		Registry:        adapters.NewRegistry(adapter),
		RatingSvc:       ratingSvc,
		SubscriptionSvc: subSvc,
		OrderRepo:       orderrepository.Provide(),
		Analytics: analytics.NewService(analytics.Params{
			DB:    db,
			Log:   log,
			GenID: node,
		}),
		Clock: fake,
	})

	return &testEnv{db: db, svc: svc, subSvc: subSvc, clock: fake, adapter: adapter}
}

func (e *testEnv) checkout(t *testing.T, userID string) *paymentdomain.CheckoutResponse {
	t.Helper()
	res, err := e.svc.CreateCheckout(context.Background(), paymentdomain.CheckoutRequest{
		UserID:   userID,
		Plan:     "pro",
		Period:   "monthly",
		Currency: "USD",
		Provider: "stripe",
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) noticeFor(orderID string, amount int64) *paymentdomain.Notice {
	return &paymentdomain.Notice{
		Provider:        paymentdomain.ProviderStripe,
		ProviderOrderID: orderID,
		ProviderTxnID:   "pi_1",
		EventType:       "checkout.session.completed",
		PaidAmount:      amount,
		Currency:        plan.CurrencyUSD,
		OccurredAt:      e.clock.Now(),
		RawPayload:      []byte(`{"id":"evt_1"}`),
	}
}

func TestIngestWebhookSettlesPayment(t *testing.T) {
	env := newTestEnv(t)

	res := env.checkout(t, "user-1")
	assert.Equal(t, int64(999), res.Amount)
	assert.Equal(t, "purchase", res.Kind)

	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 999)
	require.NoError(t, env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}))

	current, err := env.subSvc.Current(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, plan.TierPro, current.Plan)

	var event paymentdomain.WebhookEvent
	require.NoError(t, env.db.First(&event, "event_id = ?", paymentdomain.EventKey(paymentdomain.ProviderStripe, res.ProviderOrderID)).Error)
	assert.True(t, event.Processed)
	require.NotNil(t, event.ProcessedAt)

	var order orderdomain.Order
	require.NoError(t, env.db.First(&order, "provider_order_id = ?", res.ProviderOrderID).Error)
	assert.Equal(t, orderdomain.OrderStatusPaid, order.Status)
	assert.Equal(t, "purchase", order.Kind)
}

func TestIngestWebhookReplayIsNoop(t *testing.T) {
	env := newTestEnv(t)

	res := env.checkout(t, "user-1")
	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 999)

	require.NoError(t, env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}))

	// Redeliveries after the latch report already-processed.
	for i := 0; i < 3; i++ {
		err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
		assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	}

	var subCount, orderCount int64
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).Where("user_id = ?", "user-1").Count(&subCount).Error)
	require.NoError(t, env.db.Model(&orderdomain.Order{}).Where("user_id = ?", "user-1").Count(&orderCount).Error)
	assert.Equal(t, int64(1), subCount)
	assert.Equal(t, int64(1), orderCount)
}

func TestIngestWebhookRetryAfterCrashBeforeLatch(t *testing.T) {
	env := newTestEnv(t)

	res := env.checkout(t, "user-1")
	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 999)
	require.NoError(t, env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}))

	current, err := env.subSvc.Current(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	settledExpiry := current.ExpiresAt

	// Simulate a crash between the state-machine commit and the latch:
	// the payment settled but the event row reads unprocessed, so the
	// provider redelivers.
	eventID := paymentdomain.EventKey(paymentdomain.ProviderStripe, res.ProviderOrderID)
	require.NoError(t, env.db.Model(&paymentdomain.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processed", false).Error)

	err = env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)

	// The retry closes the latch without touching entitlement: same
	// expiry, still one subscription row.
	current, err = env.subSvc.Current(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, settledExpiry, current.ExpiresAt)

	var subCount int64
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).Where("user_id = ?", "user-1").Count(&subCount).Error)
	assert.Equal(t, int64(1), subCount)

	var event paymentdomain.WebhookEvent
	require.NoError(t, env.db.First(&event, "event_id = ?", eventID).Error)
	assert.True(t, event.Processed)
}

func TestIngestWebhookAmountMismatchWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	res := env.checkout(t, "user-1")
	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 1)

	err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	var record paymentdomain.PaymentRecord
	require.NoError(t, env.db.First(&record, "provider_order_id = ?", res.ProviderOrderID).Error)
	assert.Equal(t, paymentdomain.PaymentStatusPending, record.Status)

	var eventCount int64
	require.NoError(t, env.db.Model(&paymentdomain.WebhookEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)

	current, err := env.subSvc.Current(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestIngestWebhookUnknownOrderWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	env.adapter.notice = env.noticeFor("order-nobody-quoted", 999)

	err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrRecordNotFound)

	var eventCount int64
	require.NoError(t, env.db.Model(&paymentdomain.WebhookEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestIngestWebhookVerificationFailureStopsPipeline(t *testing.T) {
	env := newTestEnv(t)

	res := env.checkout(t, "user-1")
	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 999)
	env.adapter.verifyErr = paymentdomain.ErrInvalidSignature

	err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	current, err := env.subSvc.Current(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestIngestWebhookIgnoredEventIsAcked(t *testing.T) {
	env := newTestEnv(t)

	env.adapter.parseErr = paymentdomain.ErrEventIgnored
	assert.NoError(t, env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}))
}

func TestIngestWebhookUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.IngestWebhook(context.Background(), "square", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidProvider)
}

func TestCheckoutUpgradeQuotesProratedAmount(t *testing.T) {
	env := newTestEnv(t)

	// Settle a pro month first.
	res := env.checkout(t, "user-1")
	env.adapter.notice = env.noticeFor(res.ProviderOrderID, 999)
	require.NoError(t, env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}))

	// Ten days in, 20 remaining pro days credit against a team month.
	env.clock.Advance(10 * 24 * time.Hour)
	upgrade, err := env.svc.CreateCheckout(context.Background(), paymentdomain.CheckoutRequest{
		UserID:   "user-1",
		Plan:     "team",
		Period:   "monthly",
		Currency: "USD",
		Provider: "stripe",
	})
	require.NoError(t, err)

	assert.Equal(t, "upgrade", upgrade.Kind)
	assert.Equal(t, int64(2333), upgrade.Amount)
}
