// Package webhook resolves gateway outcomes, delivered as async webhooks or
// browser redirects, into order and ledger state.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	SourceWebhook  = "webhook"
	SourceRedirect = "redirect"
	SourcePoll     = "status_poll"

	// CodeAmountMismatch marks a success callback whose amount does not match
	// what was sent to the gateway.
	CodeAmountMismatch = "AMOUNT_MISMATCH"
)

var amountTolerance = decimal.New(1, -2)

// Unverified deliveries are audited at most this often so forged traffic
// cannot grow payment_webhooks without bound.
const (
	unverifiedAuditRate  = rate.Limit(1)
	unverifiedAuditBurst = 20
)

type ProviderResolver interface {
	GetConfiguredProvider(ctx context.Context, storeID string, hint payment.ProviderType) (payment.Provider, error)
}

type Ledger interface {
	GetPendingPaymentByRequestID(ctx context.Context, provider payment.ProviderType, requestID string) (*payment.PendingPayment, error)
	GetPendingPaymentByOrderReference(ctx context.Context, provider payment.ProviderType, orderReference string) (*payment.PendingPayment, error)
	TransitionPendingPayment(ctx context.Context, id uuid.UUID, to payment.TransactionStatus) (bool, error)
	UpdateChargeTransaction(
		ctx context.Context,
		provider payment.ProviderType,
		requestID string,
		status payment.TransactionStatus,
		providerTransactionID string,
		metadata map[string]any,
	) (bool, error)

	SavePaymentWebhook(
		ctx context.Context,
		provider payment.ProviderType,
		eventID string,
		eventType string,
		requestID string,
		payload json.RawMessage,
		signatureValid bool,
	) (int64, bool, error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type OrderStatus interface {
	MarkAsPaid(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAsFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAsCancelled(ctx context.Context, id uuid.UUID) (bool, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

type Inventory interface {
	CommitSale(ctx context.Context, storeID string, lines []product.StockRequest) error
}

type CreditLedger interface {
	DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type Deps struct {
	Providers ProviderResolver
	Ledger    Ledger
	Orders    OrderStatus
	OrderRead OrderReader
	Inventory Inventory
	Credit    CreditLedger
}

// Outcome is what one callback did.
type Outcome struct {
	Status         payment.TransactionStatus `json:"status"`
	OrderID        uuid.UUID                 `json:"-"`
	OrderReference string                    `json:"orderReference,omitempty"`
	// Duplicate means the payment was already resolved and nothing changed.
	Duplicate bool   `json:"duplicate,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type Finalizer struct {
	Deps
	unverifiedAudit *rate.Limiter
}

func NewFinalizer(deps Deps) *Finalizer {
	return &Finalizer{
		Deps:            deps,
		unverifiedAudit: rate.NewLimiter(unverifiedAuditRate, unverifiedAuditBurst),
	}
}

func (f *Finalizer) provider(ctx context.Context, storeID string, providerType payment.ProviderType) (payment.Provider, error) {
	if !providerType.Valid() {
		return nil, payment.ErrUnknownProvider
	}
	p, err := f.Providers.GetConfiguredProvider(ctx, storeID, providerType)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProviderNotConfigured
	}
	return p, nil
}

// HandleWebhook verifies, logs and applies one async delivery. An invalid
// signature is logged and rejected without touching payment state.
func (f *Finalizer) HandleWebhook(
	ctx context.Context,
	providerType payment.ProviderType,
	storeID string,
	body []byte,
	headers http.Header,
) (*Outcome, error) {

	ctx = logger.WithFields(ctx,
		zap.String("layer", "finalizer"),
		zap.String("provider", string(providerType)),
		zap.String("store_id", storeID),
	)
	log := logger.FromCtx(ctx)

	p, err := f.provider(ctx, storeID, providerType)
	if err != nil {
		log.Warn("webhook for unusable provider", zap.Error(err))
		f.observe(providerType, SourceWebhook, "provider_error")
		return nil, err
	}

	validation := p.ValidateWebhook(body, headers)
	cb := p.ParseCallback(body)

	if !validation.IsValid {
		log.Warn("rejected webhook", zap.String("reason", validation.Error))
		f.observe(providerType, SourceWebhook, "invalid_signature")
		if f.unverifiedAudit.Allow() {
			webhookID, _ := f.saveWebhook(ctx, providerType, body, cb, false)
			f.markWebhook(ctx, webhookID, ErrInvalidSignature)
		}
		return nil, ErrInvalidSignature
	}

	webhookID, duplicate := f.saveWebhook(ctx, providerType, body, cb, true)
	if duplicate {
		log.Info("webhook delivered again")
	}

	out, err := f.Apply(ctx, storeID, p, cb, SourceWebhook)
	f.markWebhook(ctx, webhookID, err)
	return out, err
}

// saveWebhook writes the audit row. The row is not a precondition for
// finalizing, so failures are only logged.
func (f *Finalizer) saveWebhook(
	ctx context.Context,
	providerType payment.ProviderType,
	body []byte,
	cb payment.ParsedCallback,
	valid bool,
) (int64, bool) {
	webhookID, duplicate, err := f.Ledger.SavePaymentWebhook(
		ctx,
		providerType,
		eventID(body, valid),
		cb.ProviderStatus,
		cb.ProviderRequestID,
		cb.RawData,
		valid,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to log webhook", zap.Error(err))
	}
	return webhookID, duplicate
}

// HandleRedirect applies the browser's return from the gateway. Redirect
// parameters are unsigned, so a terminal status in them is only a hint: it
// is confirmed with the gateway (a capture, or a status lookup) before it is
// applied. An unconfirmed hint moves the payment no further than processing.
func (f *Finalizer) HandleRedirect(
	ctx context.Context,
	providerType payment.ProviderType,
	storeID string,
	params url.Values,
) (*Outcome, error) {

	ctx = logger.WithFields(ctx,
		zap.String("layer", "finalizer"),
		zap.String("provider", string(providerType)),
		zap.String("store_id", storeID),
	)

	p, err := f.provider(ctx, storeID, providerType)
	if err != nil {
		f.observe(providerType, SourceRedirect, "provider_error")
		return nil, err
	}

	hint := p.ParseRedirectParams(params)
	cb, err := f.confirmRedirect(ctx, p, hint)
	if err != nil {
		f.observe(providerType, SourceRedirect, "capture_error")
		return nil, err
	}

	return f.Apply(ctx, storeID, p, cb, SourceRedirect)
}

func (f *Finalizer) confirmRedirect(ctx context.Context, p payment.Provider, hint payment.ParsedCallback) (payment.ParsedCallback, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider_request_id", hint.ProviderRequestID),
		zap.String("redirect_status", string(hint.Status)),
	)

	if hint.ProviderRequestID == "" {
		return capped(hint), nil
	}

	if capturer, ok := p.(payment.Capturer); ok && hint.Status == payment.StatusProcessing {
		captured, err := capturer.Capture(ctx, hint.ProviderRequestID)
		if err != nil {
			// the webhook will still arrive; keep the payment non-terminal
			log.Error("capture failed", zap.Error(err))
			return payment.ParsedCallback{}, err
		}
		if captured.OrderReference == "" {
			captured.OrderReference = hint.OrderReference
		}
		return captured, nil
	}

	if !hint.Status.IsTerminal() {
		return hint, nil
	}

	status, err := p.GetTransactionStatus(ctx, payment.StatusRequest{
		ProviderRequestID:     hint.ProviderRequestID,
		ProviderTransactionID: hint.ProviderTransactionID,
	})
	if err != nil {
		log.Warn("redirect outcome not confirmed", zap.Error(err))
		return capped(hint), nil
	}

	cb := hint
	cb.Status = status.Status
	cb.Success = status.Status == payment.StatusSuccess
	cb.ProviderStatus = status.ProviderStatus
	cb.Amount = status.Amount
	if status.Currency != "" {
		cb.Currency = status.Currency
	}
	if status.ProviderTransactionID != "" {
		cb.ProviderTransactionID = status.ProviderTransactionID
	}
	if cb.Success {
		cb.ErrorCode, cb.ErrorMessage = "", ""
	} else if cb.ErrorCode == "" {
		cb.ErrorCode = status.ProviderStatus
	}
	if cb.Status != hint.Status {
		log.Warn("gateway disagrees with redirect", zap.String("gateway_status", string(cb.Status)))
	}
	return cb, nil
}

// capped turns an unconfirmed redirect into at most a processing update.
func capped(hint payment.ParsedCallback) payment.ParsedCallback {
	cb := hint
	cb.Success = false
	if cb.Status.IsTerminal() {
		cb.Status = payment.StatusProcessing
	}
	return cb
}

// Apply moves the matching PendingPayment, its charge transaction and its
// order to the callback's status. A payment that is already terminal is
// left untouched.
func (f *Finalizer) Apply(
	ctx context.Context,
	storeID string,
	p payment.Provider,
	cb payment.ParsedCallback,
	source string,
) (*Outcome, error) {

	providerType := p.Type()
	log := logger.FromCtx(ctx).With(
		zap.String("source", source),
		zap.String("provider_request_id", cb.ProviderRequestID),
		zap.String("order_reference", cb.OrderReference),
		zap.String("callback_status", string(cb.Status)),
	)

	if cb.ProviderRequestID == "" && cb.OrderReference == "" {
		log.Warn("callback carries no payment identifiers", zap.String("error_code", cb.ErrorCode))
		f.observe(providerType, source, "unidentified")
		return nil, ErrUnidentifiedCallback
	}

	pending, err := f.locate(ctx, providerType, cb)
	if err == nil && pending.StoreID != storeID {
		err = ErrPaymentNotFound
	}
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warn("callback matches no pending payment")
			f.observe(providerType, source, "not_found")
		} else {
			log.Error("failed to load pending payment", zap.Error(err))
			f.observe(providerType, source, "error")
		}
		return nil, err
	}

	out := &Outcome{
		Status:         pending.Status,
		OrderID:        pending.OrderID,
		OrderReference: pending.OrderReference,
	}
	log = log.With(zap.String("order_id", pending.OrderID.String()))

	if pending.Status.IsTerminal() {
		if pending.Status == payment.StatusExpired && cb.Status == payment.StatusSuccess {
			// terminal rows never move; an operator has to reconcile this one
			log.Error("gateway reports success for an expired payment")
			f.observe(providerType, source, "late_success")
			out.Duplicate = true
			return out, nil
		}

		// An earlier delivery may have moved the payment but failed on the
		// order; the order transitions are conditional, so replay them.
		moved, err := f.settleOrder(ctx, pending, pending.Status)
		if err != nil {
			log.Error("failed to settle order", zap.Error(err))
			f.observe(providerType, source, "error")
			return nil, err
		}
		if moved {
			log.Warn("order caught up with resolved payment", zap.String("status", string(pending.Status)))
			f.observe(providerType, source, "repaired")
			return out, nil
		}

		log.Info("payment already resolved", zap.String("status", string(pending.Status)))
		f.observe(providerType, source, "duplicate")
		out.Duplicate = true
		return out, nil
	}
	if cb.Status == payment.StatusPending || cb.Status == pending.Status {
		f.observe(providerType, source, "unchanged")
		return out, nil
	}

	target := cb.Status
	if target == payment.StatusSuccess && amountMismatch(cb.Amount, pending.Amount) {
		log.Warn("callback amount mismatch",
			zap.String("expected", pending.Amount.String()),
			zap.String("received", cb.Amount.String()),
		)
		target = payment.StatusFailed
		out.ErrorCode = CodeAmountMismatch
	} else if target != payment.StatusSuccess {
		out.ErrorCode = cb.ErrorCode
	}

	moved, err := f.Ledger.TransitionPendingPayment(ctx, pending.ID, target)
	if err != nil {
		log.Error("failed to transition pending payment", zap.Error(err))
		f.observe(providerType, source, "error")
		return nil, err
	}
	if !moved {
		// same status again, or another delivery won the race
		out.Duplicate = true
		f.observe(providerType, source, "duplicate")
		return out, nil
	}
	out.Status = target

	requestID := pending.ProviderRequestID
	if _, err := f.Ledger.UpdateChargeTransaction(ctx, providerType, requestID, target, cb.ProviderTransactionID,
		chargeMetadata(cb, source, out.ErrorCode)); err != nil {
		log.Error("failed to update charge transaction", zap.Error(err))
	}

	if _, err := f.settleOrder(ctx, pending, target); err != nil {
		log.Error("failed to settle order", zap.Error(err))
		f.observe(providerType, source, "error")
		return nil, err
	}

	log.Info("payment finalized", zap.String("status", string(target)))
	f.observe(providerType, source, string(target))
	return out, nil
}

// settleOrder moves the order to match a resolved payment. The order update
// is conditional, so repeating it is harmless; afterSale runs only on the
// call that actually marks the order paid.
func (f *Finalizer) settleOrder(ctx context.Context, pending *payment.PendingPayment, status payment.TransactionStatus) (bool, error) {
	switch status {
	case payment.StatusSuccess:
		moved, err := f.Orders.MarkAsPaid(ctx, pending.OrderID)
		if err != nil {
			return false, err
		}
		if moved {
			f.afterSale(ctx, pending)
		}
		return moved, nil
	case payment.StatusFailed:
		return f.Orders.MarkAsFailed(ctx, pending.OrderID)
	case payment.StatusCancelled:
		return f.Orders.MarkAsCancelled(ctx, pending.OrderID)
	}
	return false, nil
}

func (f *Finalizer) locate(ctx context.Context, providerType payment.ProviderType, cb payment.ParsedCallback) (*payment.PendingPayment, error) {
	if cb.ProviderRequestID != "" {
		pending, err := f.Ledger.GetPendingPaymentByRequestID(ctx, providerType, cb.ProviderRequestID)
		if err == nil {
			return pending, nil
		}
		if !errors.Is(err, payment.ErrPendingPaymentNotFound) {
			return nil, err
		}
	}
	if cb.OrderReference != "" {
		pending, err := f.Ledger.GetPendingPaymentByOrderReference(ctx, providerType, cb.OrderReference)
		if err == nil {
			return pending, nil
		}
		if !errors.Is(err, payment.ErrPendingPaymentNotFound) {
			return nil, err
		}
	}
	return nil, ErrPaymentNotFound
}

// afterSale runs the side effects of a confirmed payment. It is reached at
// most once per order because MarkAsPaid only moves an unpaid order.
func (f *Finalizer) afterSale(ctx context.Context, pending *payment.PendingPayment) {
	log := logger.FromCtx(ctx)

	if f.Inventory != nil {
		if lines := cartLines(pending.CartItems); len(lines) > 0 {
			if err := f.Inventory.CommitSale(ctx, pending.StoreID, lines); err != nil {
				log.Error("inventory not decremented for paid order", zap.Error(err))
			}
		}
	}

	if f.Credit == nil || f.OrderRead == nil {
		return
	}
	o, err := f.OrderRead.GetByID(ctx, pending.OrderID)
	if err != nil {
		log.Error("failed to load paid order", zap.Error(err))
		return
	}
	if o.CustomerID != nil && o.CreditUsed.IsPositive() {
		if err := f.Credit.DeductCredit(ctx, *o.CustomerID, o.CreditUsed); err != nil {
			log.Error("store credit not deducted", zap.Error(err))
		}
	}
}

func (f *Finalizer) markWebhook(ctx context.Context, webhookID int64, err error) {
	if webhookID == 0 {
		return
	}
	var markErr error
	if err != nil {
		markErr = f.Ledger.MarkWebhookFailed(ctx, webhookID, err.Error())
	} else {
		markErr = f.Ledger.MarkWebhookProcessed(ctx, webhookID)
	}
	if markErr != nil {
		logger.FromCtx(ctx).Warn("failed to mark webhook", zap.Int64("webhook_id", webhookID), zap.Error(markErr))
	}
}

func (f *Finalizer) observe(provider payment.ProviderType, source, outcome string) {
	metrics.WebhookOutcomes.WithLabelValues(string(provider), source, outcome).Inc()
}

// amountMismatch treats a zero callback amount as "not reported".
func amountMismatch(received, expected decimal.Decimal) bool {
	if received.IsZero() {
		return false
	}
	return received.Sub(expected).Abs().GreaterThan(amountTolerance)
}

func chargeMetadata(cb payment.ParsedCallback, source, errorCode string) map[string]any {
	meta := map[string]any{
		"source":          source,
		"provider_status": cb.ProviderStatus,
		"finalized_at":    time.Now().UTC().Format(time.RFC3339),
	}
	if cb.Card != (payment.CardInfo{}) {
		meta["card"] = cb.Card
	}
	if cb.Card.ApprovalNumber != "" {
		meta["approval_number"] = cb.Card.ApprovalNumber
	}
	if errorCode != "" {
		meta["error_code"] = errorCode
	}
	if cb.ErrorMessage != "" {
		meta["error_message"] = cb.ErrorMessage
	}
	return meta
}

// cartLines reads the stock-relevant fields back out of the checkout cart
// snapshot.
func cartLines(snapshot json.RawMessage) []product.StockRequest {
	if len(snapshot) == 0 {
		return nil
	}
	var items []struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.Unmarshal(snapshot, &items); err != nil {
		return nil
	}
	out := make([]product.StockRequest, 0, len(items))
	for _, it := range items {
		out = append(out, product.StockRequest{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return out
}

// eventID identifies a delivery for the audit log. Unverified bodies get
// their own id so they never mask a later genuine delivery.
func eventID(body []byte, valid bool) string {
	sum := sha256.Sum256(body)
	id := hex.EncodeToString(sum[:])
	if !valid {
		id += ":unverified"
	}
	return id
}
