package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/appforge/appforge/internal/analytics"
	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/metrics"
	orderdomain "github.com/appforge/appforge/internal/order/domain"
	"github.com/appforge/appforge/internal/payment/adapters"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
	ratingdomain "github.com/appforge/appforge/internal/rating/domain"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            paymentdomain.Repository
	Registry        *adapters.Registry
	RatingSvc       ratingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	OrderRepo       orderdomain.Repository
	Analytics       *analytics.Service
	Clock           clock.Clock
	Metrics         *metrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            paymentdomain.Repository
	registry        *adapters.Registry
	ratingSvc       ratingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	orderRepo       orderdomain.Repository
	analytics       *analytics.Service
	clock           clock.Clock
	metrics         *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		registry:        p.Registry,
		ratingSvc:       p.RatingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		orderRepo:       p.OrderRepo,
		analytics:       p.Analytics,
		clock:           p.Clock,
		metrics:         p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	parsed, err := paymentdomain.ParseProvider(provider)
	if err != nil {
		return err
	}
	adapter, err := s.registry.Get(parsed)
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.RecordWebhookEvent(string(parsed), "rejected")
		s.log.Warn("webhook verification failed",
			zap.String("provider", string(parsed)),
			zap.Error(err))
		return err
	}

	notice, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent(string(parsed), "ignored")
			return nil
		}
		s.metrics.RecordWebhookEvent(string(parsed), "unparseable")
		return err
	}

	return s.processNotice(ctx, notice)
}

func (s *Service) CapturePayPal(ctx context.Context, providerOrderID string) error {
	adapter, err := s.registry.Get(paymentdomain.ProviderPayPal)
	if err != nil {
		return err
	}
	capturer, ok := adapter.(paymentdomain.CaptureAdapter)
	if !ok {
		return paymentdomain.ErrCaptureUnsupported
	}

	// The expected record must exist before money moves.
	record, err := s.repo.FindPayment(ctx, s.db, paymentdomain.ProviderPayPal, providerOrderID)
	if err != nil {
		return err
	}
	if record == nil {
		return paymentdomain.ErrRecordNotFound
	}
	if record.Status == paymentdomain.PaymentStatusCompleted {
		// Already captured and applied; a retry must not hit the
		// provider's capture API again.
		eventID := paymentdomain.EventKey(paymentdomain.ProviderPayPal, providerOrderID)
		if err := s.repo.MarkEventProcessed(ctx, s.db, eventID, s.clock.Now()); err != nil {
			return err
		}
		return paymentdomain.ErrEventAlreadyProcessed
	}

	notice, err := capturer.Capture(ctx, providerOrderID)
	if err != nil {
		s.metrics.RecordWebhookEvent(string(paymentdomain.ProviderPayPal), "capture_failed")
		return err
	}
	return s.processNotice(ctx, notice)
}

// processNotice is the single path every verified notification takes,
// whether it arrived as a webhook or a capture response.
func (s *Service) processNotice(ctx context.Context, notice *paymentdomain.Notice) error {
	provider := string(notice.Provider)
	eventID := paymentdomain.EventKey(notice.Provider, notice.ProviderOrderID)

	existing, err := s.repo.FindEvent(ctx, s.db, eventID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Processed {
		s.metrics.RecordWebhookEvent(provider, "duplicate")
		return paymentdomain.ErrEventAlreadyProcessed
	}

	record, err := s.repo.FindPayment(ctx, s.db, notice.Provider, notice.ProviderOrderID)
	if err != nil {
		return err
	}
	if record == nil {
		// A verified notification for an order this system never
		// quoted. Nothing is written; operators investigate from logs.
		s.metrics.RecordWebhookEvent(provider, "orphan")
		s.log.Error("verified notification without payment record",
			zap.String("provider", provider),
			zap.String("provider_order_id", notice.ProviderOrderID))
		return paymentdomain.ErrRecordNotFound
	}

	if record.Status == paymentdomain.PaymentStatusCompleted {
		// The payment already settled. A crash between the state-machine
		// commit and the latch leaves the event row unprocessed, so the
		// provider redelivers; re-applying here would reclassify the
		// settled purchase against post-commit state and grant a second
		// period. Close the latch and stop.
		if err := s.repo.MarkEventProcessed(ctx, s.db, eventID, s.clock.Now()); err != nil {
			return err
		}
		s.metrics.RecordWebhookEvent(provider, "duplicate")
		return paymentdomain.ErrEventAlreadyProcessed
	}

	if notice.PaidAmount != record.Amount || notice.Currency != record.Currency {
		s.metrics.RecordAmountMismatch(provider)
		s.log.Error("paid amount disagrees with expected charge",
			zap.String("provider", provider),
			zap.String("provider_order_id", notice.ProviderOrderID),
			zap.Int64("expected", record.Amount),
			zap.String("expected_currency", string(record.Currency)),
			zap.Int64("paid", notice.PaidAmount),
			zap.String("paid_currency", string(notice.Currency)))
		s.analytics.Track(ctx, record.UserID, analytics.EventAmountMismatch, map[string]interface{}{
			"provider":          provider,
			"provider_order_id": notice.ProviderOrderID,
			"expected":          record.Amount,
			"paid":              notice.PaidAmount,
		}, s.clock.Now())
		return paymentdomain.ErrAmountMismatch
	}

	now := s.clock.Now()
	if _, err := s.repo.InsertEvent(ctx, s.db, &paymentdomain.WebhookEvent{
		EventID:         eventID,
		Provider:        notice.Provider,
		ProviderOrderID: notice.ProviderOrderID,
		EventType:       notice.EventType,
		Payload:         payloadJSON(notice.RawPayload),
		ReceivedAt:      now,
	}); err != nil {
		return err
	}

	state, err := s.subscriptionSvc.State(ctx, record.UserID)
	if err != nil {
		return err
	}
	quote, err := s.ratingSvc.Compute(ratingdomain.ComputeRequest{
		CurrentTier:      state.Tier,
		CurrentExpiresAt: state.ExpiresAt,
		TargetTier:       record.Plan,
		Period:           record.Period,
		Currency:         record.Currency,
	})
	if err != nil {
		return err
	}

	if err := s.subscriptionSvc.Apply(ctx, subscriptiondomain.ApplyRequest{
		UserID:          record.UserID,
		Quote:           quote,
		Provider:        provider,
		ProviderOrderID: record.ProviderOrderID,
		PaymentID:       record.ID,
		ProviderTxnID:   notice.ProviderTxnID,
	}); err != nil {
		return err
	}

	// The latch goes last: a crash before this line leaves the event
	// unprocessed and the retry converges on the same state.
	if err := s.repo.MarkEventProcessed(ctx, s.db, eventID, s.clock.Now()); err != nil {
		return err
	}

	s.recordSideEffects(ctx, record, quote, notice)
	s.metrics.RecordWebhookEvent(provider, "processed")
	return nil
}

// recordSideEffects writes derived records after the latch. Failures
// are logged and swallowed: the payment is already settled.
func (s *Service) recordSideEffects(ctx context.Context, record *paymentdomain.PaymentRecord, quote ratingdomain.Quote, notice *paymentdomain.Notice) {
	order := &orderdomain.Order{
		ID:              s.genID.Generate(),
		UserID:          record.UserID,
		Provider:        string(record.Provider),
		ProviderOrderID: record.ProviderOrderID,
		ProviderTxnID:   notice.ProviderTxnID,
		Plan:            record.Plan,
		Period:          record.Period,
		Kind:            string(quote.Kind),
		Amount:          record.Amount,
		Currency:        record.Currency,
		Status:          orderdomain.OrderStatusPaid,
		PaidAt:          notice.OccurredAt,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.orderRepo.Insert(ctx, s.db, order); err != nil {
		s.log.Warn("order record write failed",
			zap.String("provider_order_id", record.ProviderOrderID),
			zap.Error(err))
	}

	s.analytics.Track(ctx, record.UserID, analytics.EventPurchaseCompleted, map[string]interface{}{
		"provider": string(record.Provider),
		"plan":     string(record.Plan),
		"period":   string(record.Period),
		"kind":     string(quote.Kind),
		"amount":   record.Amount,
		"currency": string(record.Currency),
	}, notice.OccurredAt)
}

func (s *Service) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	if req.UserID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	provider, err := paymentdomain.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	tier, err := plan.ParseTier(req.Plan)
	if err != nil {
		return nil, err
	}
	period, err := plan.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	currency, err := plan.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	state, err := s.subscriptionSvc.State(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	quote, err := s.ratingSvc.Compute(ratingdomain.ComputeRequest{
		CurrentTier:      state.Tier,
		CurrentExpiresAt: state.ExpiresAt,
		TargetTier:       tier,
		Period:           period,
		Currency:         currency,
	})
	if err != nil {
		return nil, err
	}

	orderID := req.ProviderOrderID
	if orderID == "" {
		orderID = fmt.Sprintf("AF%s", s.genID.Generate())
	}

	now := s.clock.Now()
	record := &paymentdomain.PaymentRecord{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Provider:        provider,
		ProviderOrderID: orderID,
		Plan:            tier,
		Period:          period,
		Amount:          quote.Amount,
		Currency:        currency,
		Status:          paymentdomain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertPayment(ctx, s.db, record); err != nil {
		return nil, err
	}

	return &paymentdomain.CheckoutResponse{
		ProviderOrderID: orderID,
		Kind:            string(quote.Kind),
		Amount:          quote.Amount,
		Currency:        string(currency),
		Days:            quote.Days,
		BonusDays:       quote.BonusDays,
		ExpiresAt:       now.Add(30 * time.Minute),
	}, nil
}

// payloadJSON stores the raw payload in the jsonb column. Form-encoded
// bodies are stored as a JSON string.
func payloadJSON(raw []byte) datatypes.JSON {
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return datatypes.JSON(quoted)
}
