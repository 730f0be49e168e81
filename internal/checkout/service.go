// Package checkout turns a storefront cart into a durable Order and a
// gateway redirect. Client-supplied money is advisory; prices, discount and
// total are recomputed from the catalog and the live coupon.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"storefront-be/internal/customer"
	"storefront-be/internal/discount"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"
	"storefront-be/internal/store"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StoreReader interface {
	Resolve(ctx context.Context, identifier string) (*store.Store, error)
	NextOrderNumber(ctx context.Context, storeID string) (int64, error)
}

type ProviderResolver interface {
	GetConfiguredProvider(ctx context.Context, storeID string, hint payment.ProviderType) (payment.Provider, error)
}

type CatalogReader interface {
	GetForCheckout(ctx context.Context, storeID string, lines []product.StockRequest) (*product.Catalog, error)
	CheckAvailability(catalog *product.Catalog, lines []product.StockRequest) *product.Availability
}

type CustomerResolver interface {
	ResolveOrCreate(ctx context.Context, in customer.ResolveInput) (*customer.Customer, error)
}

type DiscountEvaluator interface {
	Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*discount.Applied, error)
	Redeem(ctx context.Context, id uuid.UUID) error
}

type OrderWriter interface {
	Create(ctx context.Context, o *order.Order) error
	CreateItems(ctx context.Context, orderID uuid.UUID, items []order.Item) error
	TransitionFinancialStatus(ctx context.Context, id uuid.UUID, from []order.FinancialStatus, to order.FinancialStatus) (bool, error)
}

type PaymentLedger interface {
	CreatePendingPayment(ctx context.Context, p *payment.PendingPayment) error
	CreateTransaction(ctx context.Context, t *payment.Transaction) error
}

type Deps struct {
	Stores    StoreReader
	Providers ProviderResolver
	Catalog   CatalogReader
	Customers CustomerResolver
	Discounts DiscountEvaluator
	Orders    OrderWriter
	Ledger    PaymentLedger
}

type Options struct {
	PlatformBaseURL   string
	APIBaseURL        string
	PendingPaymentTTL time.Duration
	DefaultLocale     string
}

type Service interface {
	Initiate(ctx context.Context, req Request) *Result
}

type service struct {
	Deps
	opts Options
	now  func() time.Time
}

func NewService(deps Deps, opts Options) Service {
	if opts.PendingPaymentTTL <= 0 {
		opts.PendingPaymentTTL = 30 * time.Minute
	}
	return &service{Deps: deps, opts: opts, now: time.Now}
}

// Initiate never returns an error: every outcome, including unexpected
// storage failures, is a Result with a customer-safe message.
func (s *service) Initiate(ctx context.Context, req Request) (res *Result) {
	ctx = logger.WithFields(ctx,
		zap.String("layer", "service"),
		zap.String("method", "checkout.Initiate"),
		zap.String("store", req.StoreID),
	)
	log := logger.FromCtx(ctx)
	locale := normalizeLocale(req.Locale, s.opts.DefaultLocale)
	providerLabel := req.Provider

	defer func() {
		if r := recover(); r != nil {
			log.Error("checkout panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = failure(CodeInternal, message(locale, msgGeneric))
		}
		outcome := "success"
		if !res.Success {
			outcome = res.ErrorCode
		}
		if res.Provider != "" {
			providerLabel = res.Provider
		}
		metrics.CheckoutOutcomes.WithLabelValues(orUnknown(providerLabel), outcome).Inc()
	}()

	// validate
	if msg := validate(req); msg != "" {
		log.Info("checkout rejected", zap.String("reason", msg))
		return failure(CodeValidation, message(locale, msgValidation)+": "+msg)
	}

	// store
	st, err := s.Stores.Resolve(ctx, req.StoreID)
	if errors.Is(err, store.ErrStoreNotFound) {
		return failure(CodeStoreNotFound, message(locale, msgStoreNotFound))
	}
	if err != nil {
		return s.internalFailure(ctx, "resolve store", err, locale)
	}
	if req.Locale == "" {
		locale = normalizeLocale(st.DefaultLocale, s.opts.DefaultLocale)
	}
	ctx = logger.WithFields(ctx, zap.String("store_id", st.ID))
	log = logger.FromCtx(ctx)

	// provider
	provider, err := s.Providers.GetConfiguredProvider(ctx, st.ID, payment.ProviderType(strings.TrimSpace(req.Provider)))
	if errors.Is(err, payment.ErrUnknownProvider) || errors.Is(err, payment.ErrNotConfigured) {
		log.Warn("provider unusable", zap.Error(err))
		return failure(CodeProviderNotConfigured, message(locale, msgProviderNotConfigured))
	}
	if err != nil {
		return s.internalFailure(ctx, "resolve provider", err, locale)
	}
	if provider == nil {
		return failure(CodeProviderNotConfigured, message(locale, msgProviderNotConfigured))
	}
	providerType := provider.Type()
	providerLabel = string(providerType)

	// order number; never rolled back, later failures leave a gap
	orderNumber, err := s.Stores.NextOrderNumber(ctx, st.ID)
	if err != nil {
		return s.internalFailure(ctx, "next order number", err, locale)
	}
	reference := utils.GenerateOrderReference(orderNumber)
	ctx = logger.WithFields(ctx, zap.Int64("order_number", orderNumber), zap.String("order_reference", reference))
	log = logger.FromCtx(ctx)

	// redirect urls
	urls := buildRedirectURLs(st, s.opts.PlatformBaseURL, s.opts.APIBaseURL, reference, providerType)

	// inventory, every violation collected
	stock := stockRequests(req.Items)
	catalog, err := s.Catalog.GetForCheckout(ctx, st.ID, stock)
	if err != nil {
		return s.internalFailure(ctx, "load catalog", err, locale)
	}
	if avail := s.Catalog.CheckAvailability(catalog, stock); !avail.OK() {
		log.Info("checkout rejected on inventory",
			zap.Int("out_of_stock", len(avail.OutOfStock)),
			zap.Int("insufficient", len(avail.Insufficient)),
			zap.Int("inactive", len(avail.Inactive)),
		)
		res := failure(CodeInventory, inventoryMessage(locale, avail))
		res.OutOfStockItems = avail.OutOfStock
		res.InsufficientStockItems = avail.Insufficient
		res.InactiveItems = avail.Inactive
		return res
	}

	// customer
	session, signedIn := shopperSession(ctx, st.ID, req.Customer.Email)
	cust, err := s.Customers.ResolveOrCreate(ctx, customer.ResolveInput{
		StoreID:          st.ID,
		Email:            req.Customer.Email,
		Name:             req.Customer.Name,
		Phone:            req.Customer.Phone,
		AcceptsMarketing: req.Customer.AcceptsMarketing,
		CreateAccount:    req.Customer.CreateAccount,
		Password:         req.Customer.Password,
		Authenticated:    signedIn,
	})
	if errors.Is(err, customer.ErrInvalidEmail) {
		return failure(CodeValidation, message(locale, msgValidation)+": customer.email")
	}
	if err != nil {
		return s.internalFailure(ctx, "resolve customer", err, locale)
	}

	// discount, recomputed from the live record
	lines := priceLines(catalog, req.Items)
	sub := subtotal(lines)

	var applied *discount.Applied
	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		applied, err = s.Discounts.Evaluate(ctx, st.ID, code, sub)
		if discount.IsRejection(err) {
			return failure(CodeCouponInvalid, message(locale, msgCouponInvalid))
		}
		if err != nil {
			return s.internalFailure(ctx, "evaluate discount", err, locale)
		}
	}
	discountAmount := decimal.Zero
	if applied != nil {
		discountAmount = applied.Amount
	}
	if !req.DiscountAmount.IsZero() && !req.DiscountAmount.Equal(discountAmount) {
		log.Info("client discount hint ignored",
			zap.String("client", req.DiscountAmount.String()),
			zap.String("server", discountAmount.String()),
		)
	}

	// totals
	shipping := decimal.Zero
	if req.Shipping != nil {
		shipping = req.Shipping.Amount
	}
	// store credit is spendable only by the account holder
	creditBalance := decimal.Zero
	if signedIn && session.CustomerID == cust.ID.String() {
		creditBalance = cust.CreditBalance
	} else if req.CreditAmount.IsPositive() {
		log.Info("store credit ignored without a matching customer session",
			zap.Bool("signed_in", signedIn),
			zap.String("requested", req.CreditAmount.String()),
		)
	}
	totals := computeTotals(sub, shipping, discountAmount, req.CreditAmount, creditBalance)
	if !totals.Total.IsPositive() {
		log.Info("checkout rejected on non-positive total", zap.String("total", totals.Total.String()))
		return failure(CodeInvalidAmount, message(locale, msgInvalidAmount))
	}
	if !req.Amount.Round(2).Equal(totals.Total) {
		log.Warn("client amount differs from server total",
			zap.String("client", req.Amount.String()),
			zap.String("server", totals.Total.String()),
		)
	}

	// gateway lines must sum to the total
	gatewayLines, err := assembleGatewayLines(lines, totals, locale)
	if err != nil {
		log.Error("gateway line assembly failed", zap.Error(err))
		return failure(CodeInvalidAmount, message(locale, msgInvalidAmount))
	}

	// order
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = st.Currency
	}
	o := &order.Order{
		StoreID:           st.ID,
		OrderNumber:       orderNumber,
		OrderReference:    reference,
		CustomerID:        &cust.ID,
		Status:            order.StatusPending,
		FinancialStatus:   order.FinancialPending,
		FulfillmentStatus: order.FulfillmentUnfulfilled,
		Subtotal:          totals.Subtotal,
		DiscountAmount:    totals.Discount,
		CreditUsed:        totals.Credit,
		ShippingAmount:    totals.Shipping,
		Total:             totals.Total,
		Currency:          currency,
		CustomerName:      strings.TrimSpace(req.Customer.Name),
		CustomerEmail:     cust.Email,
		CustomerPhone:     strings.TrimSpace(req.Customer.Phone),
		BillingAddress:    req.BillingAddress,
		Attribution:       buildAttribution(req),
		PaymentProvider:   string(providerType),
		Notes:             req.Notes,
		OrderData:         req.OrderData,
	}
	if req.Shipping != nil {
		o.ShippingAddress = req.Shipping.Address
		o.ShippingMethod = req.Shipping.Method
	}
	if applied != nil {
		o.DiscountCode = &applied.Discount.Code
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		return s.internalFailure(ctx, "create order", err, locale)
	}
	ctx = logger.WithFields(ctx, zap.String("order_id", o.ID.String()))
	log = logger.FromCtx(ctx)

	// coupon usage, best effort
	if applied != nil {
		if err := s.Discounts.Redeem(ctx, applied.Discount.ID); err != nil {
			log.Warn("coupon usage not incremented", zap.Error(err))
		}
	}

	// items; the order stands without them
	items := orderItems(lines)
	if err := s.Orders.CreateItems(ctx, o.ID, items); err != nil {
		log.Error("failed to persist order items", zap.Error(err))
	}

	// gateway
	initReq := payment.InitiateRequest{
		OrderReference: reference,
		OrderNumber:    orderNumber,
		Amount:         totals.Total,
		Currency:       currency,
		Customer: payment.Customer{
			Name:       o.CustomerName,
			Email:      cust.Email,
			Phone:      o.CustomerPhone,
			Address:    req.Customer.Address,
			City:       req.Customer.City,
			PostalCode: req.Customer.PostalCode,
		},
		Items:       gatewayLines,
		SuccessURL:  urls.Success,
		FailureURL:  urls.Failure,
		CancelURL:   urls.Cancel,
		CallbackURL: urls.Callback,
		Metadata: map[string]string{
			"order_id":     o.ID.String(),
			"store_id":     st.ID,
			"order_number": strconv.FormatInt(orderNumber, 10),
		},
	}
	initRes, err := provider.InitiatePayment(ctx, initReq)
	if err != nil || initRes == nil || !initRes.Success {
		return s.gatewayFailure(ctx, o, providerType, initRes, err, locale)
	}

	// pending payment
	cartItems, _ := json.Marshal(req.Items)
	pending := &payment.PendingPayment{
		StoreID:           st.ID,
		Provider:          providerType,
		ProviderRequestID: initRes.ProviderRequestID,
		OrderID:           o.ID,
		OrderReference:    reference,
		OrderData:         req.OrderData,
		CartItems:         cartItems,
		Amount:            totals.Total,
		Currency:          currency,
		Status:            payment.StatusPending,
		ExpiresAt:         s.now().Add(s.opts.PendingPaymentTTL),
	}
	if err := s.Ledger.CreatePendingPayment(ctx, pending); err != nil {
		s.markOrderFailed(ctx, o.ID)
		return s.internalFailure(ctx, "create pending payment", err, locale)
	}

	// ledger entry
	s.recordCharge(ctx, o, providerType, payment.StatusPending, initRes.ProviderRequestID, map[string]any{
		"order_reference": reference,
		"order_number":    orderNumber,
	})

	log.Info("checkout initiated",
		zap.String("provider", string(providerType)),
		zap.String("provider_request_id", initRes.ProviderRequestID),
		zap.String("total", totals.Total.String()),
	)

	return &Result{
		Success:           true,
		PaymentURL:        initRes.PaymentURL,
		ClientToken:       initRes.ClientToken,
		OrderReference:    reference,
		OrderNumber:       orderNumber,
		ProviderRequestID: initRes.ProviderRequestID,
		Provider:          string(providerType),
		Total:             totals.Total,
	}
}

// gatewayFailure leaves the order as a failed attempt with a matching
// ledger entry, so every initiation has an audit trail.
func (s *service) gatewayFailure(
	ctx context.Context,
	o *order.Order,
	provider payment.ProviderType,
	res *payment.InitiateResult,
	err error,
	locale string,
) *Result {

	log := logger.FromCtx(ctx)
	meta := map[string]any{"order_reference": o.OrderReference}
	requestID := ""

	switch {
	case err != nil:
		log.Error("gateway initiation failed", zap.Bool("transport", payment.IsTransport(err)), zap.Error(err))
		meta["error"] = err.Error()
	case res != nil:
		log.Warn("gateway declined initiation",
			zap.String("error_code", res.ErrorCode),
			zap.String("error_message", res.ErrorMessage),
		)
		meta["error_code"] = res.ErrorCode
		meta["error_message"] = res.ErrorMessage
		requestID = res.ProviderRequestID
	}

	s.recordCharge(ctx, o, provider, payment.StatusFailed, requestID, meta)
	s.markOrderFailed(ctx, o.ID)

	out := failure(CodePaymentInitFailed, message(locale, msgPaymentInit))
	out.OrderReference = o.OrderReference
	out.Provider = string(provider)
	return out
}

func (s *service) recordCharge(
	ctx context.Context,
	o *order.Order,
	provider payment.ProviderType,
	status payment.TransactionStatus,
	requestID string,
	meta map[string]any,
) {
	orderID := o.ID
	tx := &payment.Transaction{
		StoreID:           o.StoreID,
		OrderID:           &orderID,
		Provider:          provider,
		Type:              payment.TypeCharge,
		Status:            status,
		Amount:            o.Total,
		Currency:          o.Currency,
		ProviderRequestID: requestID,
		Metadata:          meta,
	}
	if err := s.Ledger.CreateTransaction(ctx, tx); err != nil {
		logger.FromCtx(ctx).Error("failed to record charge transaction", zap.Error(err))
	}
}

func (s *service) markOrderFailed(ctx context.Context, id uuid.UUID) {
	if _, err := s.Orders.TransitionFinancialStatus(ctx, id,
		[]order.FinancialStatus{order.FinancialPending}, order.FinancialFailed); err != nil {
		logger.FromCtx(ctx).Error("failed to mark order failed", zap.Error(err))
	}
}

func (s *service) internalFailure(ctx context.Context, step string, err error, locale string) *Result {
	code, msg := SanitizeError(err, locale)
	logger.FromCtx(ctx).Error("checkout failed",
		zap.String("step", step),
		zap.String("error_code", code),
		zap.Error(err),
	)
	return failure(code, msg)
}

// validate returns the first missing/invalid field name, or "".
func validate(req Request) string {
	switch {
	case strings.TrimSpace(req.StoreID) == "":
		return "storeId"
	case !req.Amount.IsPositive():
		return "amount"
	case strings.TrimSpace(req.Customer.Name) == "":
		return "customer.name"
	case strings.TrimSpace(req.Customer.Email) == "":
		return "customer.email"
	case len(req.Items) == 0:
		return "items"
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return "items.productId"
		}
		if it.Quantity <= 0 {
			return "items.quantity"
		}
	}
	if req.Shipping != nil && req.Shipping.Amount.IsNegative() {
		return "shipping.amount"
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// shopperSession returns the signed-in shopper when the session belongs to
// storeID and to the email the checkout is placed under.
func shopperSession(ctx context.Context, storeID, email string) (utils.CustomerSession, bool) {
	session, ok := utils.CustomerFromContext(ctx)
	if !ok || session.StoreID != storeID {
		return utils.CustomerSession{}, false
	}
	normalized, err := customer.NormalizeEmail(email)
	if err != nil || !strings.EqualFold(session.Email, normalized) {
		return utils.CustomerSession{}, false
	}
	return session, true
}
