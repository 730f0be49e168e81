// Package paypal adapts a PayPal-style Orders API: an OAuth client-credentials
// token, an order created with its line breakdown, customer approval on the
// gateway and a server-side capture once the customer is back.
package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	liveBaseURL    = "https://api-m.paypal.com"
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"

	sourceUserAgent    = "PayPal"
	transmissionHeader = "paypal-transmission-id"
	signatureHeader    = "paypal-transmission-sig"
)

var statusCodes = payment.StatusTable{
	"CREATED":               payment.StatusPending,
	"SAVED":                 payment.StatusPending,
	"PAYER_ACTION_REQUIRED": payment.StatusPending,
	"APPROVED":              payment.StatusProcessing,
	"PENDING":               payment.StatusProcessing,
	"COMPLETED":             payment.StatusSuccess,
	"VOIDED":                payment.StatusCancelled,
	"DECLINED":              payment.StatusFailed,
	"FAILED":                payment.StatusFailed,
}

type Gateway struct {
	client     *payment.Client
	cfg        payment.ProviderConfig
	baseURL    string
	configured bool
}

func New(httpClient *http.Client) *Gateway {
	return &Gateway{client: payment.NewClient(payment.ProviderPayPal, httpClient)}
}

func (g *Gateway) Type() payment.ProviderType {
	return payment.ProviderPayPal
}

func (g *Gateway) Configure(cfg payment.ProviderConfig) error {
	if err := payment.RequireCredentials(payment.ProviderPayPal, cfg.Credentials,
		"client_id", "client_secret", "webhook_secret"); err != nil {
		return err
	}
	g.cfg = cfg
	g.baseURL = liveBaseURL
	if cfg.TestMode {
		g.baseURL = sandboxBaseURL
	}
	if override := cfg.Setting("base_url"); override != "" {
		g.baseURL = strings.TrimRight(override, "/")
	}
	g.configured = true
	return nil
}

// ----------------- Auth -----------------

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken fetches a fresh client-credentials token. Adapters are built per
// request so the token is not cached across calls.
func (g *Gateway) accessToken(ctx context.Context) (string, error) {
	basic := base64.StdEncoding.EncodeToString(
		[]byte(g.cfg.Credentials["client_id"] + ":" + g.cfg.Credentials["client_secret"]))

	resp, err := g.client.Do(ctx, "oauth_token", http.MethodPost,
		g.baseURL+"/v1/oauth2/token",
		map[string]string{"Authorization": "Basic " + basic},
		url.Values{"grant_type": {"client_credentials"}},
	)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("paypal: %w", payment.ErrCredentialsRejected)
	}

	var tok tokenResponse
	if err := resp.Decode(&tok); err != nil || tok.AccessToken == "" {
		return "", &payment.TransportError{
			Provider:   payment.ProviderPayPal,
			Op:         "oauth_token",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("no access token in response"),
		}
	}
	return tok.AccessToken, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// ----------------- Wire types -----------------

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func newMoney(currency string, d decimal.Decimal) money {
	return money{CurrencyCode: strings.ToUpper(currency), Value: payment.FormatAmount(d)}
}

type breakdown struct {
	ItemTotal money  `json:"item_total"`
	Shipping  *money `json:"shipping,omitempty"`
	Discount  *money `json:"discount,omitempty"`
}

type amountWithBreakdown struct {
	money
	Breakdown *breakdown `json:"breakdown,omitempty"`
}

type orderItem struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Quantity   string `json:"quantity"`
	UnitAmount money  `json:"unit_amount"`
}

type purchaseUnit struct {
	ReferenceID string              `json:"reference_id"`
	CustomID    string              `json:"custom_id"`
	InvoiceID   string              `json:"invoice_id,omitempty"`
	Amount      amountWithBreakdown `json:"amount"`
	Items       []orderItem         `json:"items,omitempty"`
}

type experienceContext struct {
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	BrandName  string `json:"brand_name,omitempty"`
	Locale     string `json:"locale,omitempty"`
	UserAction string `json:"user_action"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	PaymentSource struct {
		PayPal struct {
			ExperienceContext experienceContext `json:"experience_context"`
		} `json:"paypal"`
	} `json:"payment_source"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type capture struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	Amount            responseAmount `json:"amount"`
	CustomID          string         `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
}

type responseAmount struct {
	CurrencyCode string         `json:"currency_code"`
	Value        payment.Amount `json:"value"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string         `json:"reference_id"`
		CustomID    string         `json:"custom_id"`
		Amount      responseAmount `json:"amount"`
		Payments    struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (o orderResponse) approveLink() string {
	for _, l := range o.Links {
		if l.Rel == "payer-action" || l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

func (o orderResponse) errorCode() string {
	if len(o.Details) > 0 && o.Details[0].Issue != "" {
		return o.Details[0].Issue
	}
	return o.Name
}

func (o orderResponse) errorMessage() string {
	if len(o.Details) > 0 && o.Details[0].Description != "" {
		return o.Details[0].Description
	}
	return o.Message
}

// ----------------- InitiatePayment -----------------

// buildPurchaseUnit folds gateway lines into PayPal's breakdown: product lines
// become items, shipping lines the shipping amount and negative lines the
// discount. The breakdown must add up to the declared amount or PayPal
// rejects the order.
func buildPurchaseUnit(req payment.InitiateRequest) (purchaseUnit, error) {
	itemTotal, shipping, discount := decimal.Zero, decimal.Zero, decimal.Zero
	var items []orderItem

	for _, l := range req.Items {
		switch {
		case l.Kind == payment.LineShipping:
			shipping = shipping.Add(l.Total())
		case l.Price.IsNegative():
			discount = discount.Add(l.Total().Neg())
		default:
			itemTotal = itemTotal.Add(l.Total())
			items = append(items, orderItem{
				Name:       truncate(l.Name, 127),
				SKU:        l.SKU,
				Quantity:   fmt.Sprintf("%d", l.Quantity),
				UnitAmount: newMoney(req.Currency, l.Price),
			})
		}
	}

	value := itemTotal.Add(shipping).Sub(discount)
	if len(req.Items) > 0 && !value.Equal(req.Amount) {
		return purchaseUnit{}, fmt.Errorf("line breakdown %s does not match amount %s",
			payment.FormatAmount(value), payment.FormatAmount(req.Amount))
	}

	unit := purchaseUnit{
		ReferenceID: req.OrderReference,
		CustomID:    req.OrderReference,
		InvoiceID:   req.OrderReference,
		Amount:      amountWithBreakdown{money: newMoney(req.Currency, req.Amount)},
		Items:       items,
	}
	if len(req.Items) > 0 {
		b := &breakdown{ItemTotal: newMoney(req.Currency, itemTotal)}
		if shipping.IsPositive() {
			m := newMoney(req.Currency, shipping)
			b.Shipping = &m
		}
		if discount.IsPositive() {
			m := newMoney(req.Currency, discount)
			b.Discount = &m
		}
		unit.Amount.Breakdown = b
	}
	return unit, nil
}

func (g *Gateway) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(payment.ProviderPayPal)),
		zap.String("order_reference", req.OrderReference),
	)

	unit, err := buildPurchaseUnit(req)
	if err != nil {
		log.Warn("paypal breakdown mismatch", zap.Error(err))
		return &payment.InitiateResult{ErrorCode: "AMOUNT_MISMATCH", ErrorMessage: err.Error()}, nil
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := createOrderRequest{Intent: "CAPTURE", PurchaseUnits: []purchaseUnit{unit}}
	body.PaymentSource.PayPal.ExperienceContext = experienceContext{
		ReturnURL:  req.SuccessURL,
		CancelURL:  firstNonEmpty(req.CancelURL, req.FailureURL),
		BrandName:  g.cfg.Setting("brand_name"),
		Locale:     g.cfg.Setting("locale"),
		UserAction: "PAY_NOW",
	}

	headers := bearer(token)
	headers["PayPal-Request-Id"] = uuid.NewString()

	resp, err := g.client.Do(ctx, "initiate", http.MethodPost,
		g.baseURL+"/v2/checkout/orders", headers, body)
	if err != nil {
		return nil, err
	}

	var out orderResponse
	if decodeErr := resp.Decode(&out); decodeErr != nil {
		return &payment.InitiateResult{
			ErrorCode:    "INVALID_RESPONSE",
			ErrorMessage: "payment could not be created",
			Raw:          resp.Body,
		}, nil
	}

	approve := out.approveLink()
	if !resp.OK() || out.ID == "" || approve == "" {
		log.Warn("paypal refused order",
			zap.Int("http_status", resp.StatusCode),
			zap.String("name", out.Name),
			zap.String("issue", out.errorCode()),
		)
		return &payment.InitiateResult{
			ErrorCode:    firstNonEmpty(out.errorCode(), fmt.Sprintf("HTTP_%d", resp.StatusCode)),
			ErrorMessage: out.errorMessage(),
			Raw:          resp.Body,
		}, nil
	}

	log.Info("paypal order created", zap.String("paypal_order_id", out.ID))

	return &payment.InitiateResult{
		Success:           true,
		PaymentURL:        approve,
		ProviderRequestID: out.ID,
		Raw:               resp.Body,
	}, nil
}

// ----------------- Capture -----------------

// Capture settles an approved order. Capturing an order PayPal already
// captured answers 422 ORDER_ALREADY_CAPTURED; that is read back through
// GetTransactionStatus so repeated returns stay idempotent.
func (g *Gateway) Capture(ctx context.Context, providerRequestID string) (payment.ParsedCallback, error) {
	if !g.configured {
		return payment.ParsedCallback{}, payment.ErrNotConfigured
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return payment.ParsedCallback{}, err
	}

	headers := bearer(token)
	headers["PayPal-Request-Id"] = "capture-" + providerRequestID

	resp, err := g.client.Do(ctx, "capture", http.MethodPost,
		g.baseURL+"/v2/checkout/orders/"+url.PathEscape(providerRequestID)+"/capture",
		headers, []byte(`{}`))
	if err != nil {
		return payment.ParsedCallback{}, err
	}

	var out orderResponse
	if err := resp.Decode(&out); err != nil {
		return payment.FailedCallback(resp.Body, "INVALID_RESPONSE", err.Error()), nil
	}
	if !resp.OK() {
		if out.errorCode() == "ORDER_ALREADY_CAPTURED" {
			return g.orderCallback(ctx, providerRequestID)
		}
		cb := payment.FailedCallback(resp.Body, out.errorCode(), out.errorMessage())
		cb.ProviderRequestID = providerRequestID
		return cb, nil
	}
	return orderToCallback(out, resp.Body), nil
}

func (g *Gateway) orderCallback(ctx context.Context, orderID string) (payment.ParsedCallback, error) {
	out, raw, err := g.getOrder(ctx, orderID)
	if err != nil {
		return payment.ParsedCallback{}, err
	}
	return orderToCallback(out, raw), nil
}

func orderToCallback(o orderResponse, raw []byte) payment.ParsedCallback {
	status := statusCodes.Resolve(o.Status)
	cb := payment.ParsedCallback{
		Status:            status,
		ProviderStatus:    o.Status,
		ProviderRequestID: o.ID,
		RawData:           raw,
	}
	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		cb.OrderReference = firstNonEmpty(pu.CustomID, pu.ReferenceID)
		cb.Amount = pu.Amount.Value.Decimal
		cb.Currency = pu.Amount.CurrencyCode
		if len(pu.Payments.Captures) > 0 {
			c := pu.Payments.Captures[0]
			cb.ProviderTransactionID = c.ID
			cb.Amount = c.Amount.Value.Decimal
			cb.Currency = c.Amount.CurrencyCode
			// the capture's own status is authoritative over the order's
			cb.Status = statusCodes.Resolve(c.Status)
			cb.ProviderStatus = c.Status
		}
	}
	cb.Success = cb.Status == payment.StatusSuccess
	if !cb.Success {
		cb.ErrorCode = cb.ProviderStatus
	}
	return cb
}

// ----------------- Refund / Status -----------------

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}
	if req.ProviderTransactionID == "" {
		return &payment.RefundResult{ErrorCode: "MISSING_CAPTURE_ID", ErrorMessage: "refund needs the capture id"}, nil
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	headers := bearer(token)
	headers["PayPal-Request-Id"] = uuid.NewString()

	body := map[string]any{"amount": newMoney(req.Currency, req.Amount)}
	if req.Reason != "" {
		body["note_to_payer"] = truncate(req.Reason, 255)
	}

	resp, err := g.client.Do(ctx, "refund", http.MethodPost,
		g.baseURL+"/v2/payments/captures/"+url.PathEscape(req.ProviderTransactionID)+"/refund",
		headers, body)
	if err != nil {
		return nil, err
	}

	var out struct {
		orderResponse
		Amount responseAmount `json:"amount"`
	}
	if err := resp.Decode(&out); err != nil || !resp.OK() || statusCodes.Resolve(out.Status) == payment.StatusFailed {
		return &payment.RefundResult{
			ErrorCode:    firstNonEmpty(out.errorCode(), out.Status),
			ErrorMessage: out.errorMessage(),
			Raw:          resp.Body,
		}, nil
	}

	refunded := out.Amount.Value.Decimal
	if refunded.IsZero() {
		refunded = req.Amount
	}
	return &payment.RefundResult{
		Success:          true,
		RefundedAmount:   refunded,
		ProviderRefundID: out.ID,
		Raw:              resp.Body,
	}, nil
}

func (g *Gateway) getOrder(ctx context.Context, orderID string) (orderResponse, []byte, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return orderResponse{}, nil, err
	}
	resp, err := g.client.Do(ctx, "status", http.MethodGet,
		g.baseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), bearer(token), nil)
	if err != nil {
		return orderResponse{}, nil, err
	}
	var out orderResponse
	if err := resp.Decode(&out); err != nil || !resp.OK() {
		out.Status = ""
	}
	return out, resp.Body, nil
}

func (g *Gateway) GetTransactionStatus(ctx context.Context, req payment.StatusRequest) (*payment.StatusResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	out, raw, err := g.getOrder(ctx, req.ProviderRequestID)
	if err != nil {
		return nil, err
	}
	cb := orderToCallback(out, raw)
	return &payment.StatusResult{
		Status:                cb.Status,
		ProviderStatus:        cb.ProviderStatus,
		ProviderTransactionID: cb.ProviderTransactionID,
		Amount:                cb.Amount,
		Currency:              cb.Currency,
		Raw:                   raw,
	}, nil
}

// ----------------- Webhooks -----------------

func (g *Gateway) ValidateWebhook(body []byte, headers http.Header) payment.WebhookValidation {
	if !g.configured {
		return payment.WebhookValidation{Error: payment.ErrNotConfigured.Error()}
	}
	if !strings.HasPrefix(headers.Get("User-Agent"), sourceUserAgent) {
		return payment.WebhookValidation{Error: "unexpected callback source"}
	}
	if headers.Get(transmissionHeader) == "" {
		return payment.WebhookValidation{Error: "missing " + transmissionHeader + " header"}
	}
	sig := headers.Get(signatureHeader)
	if sig == "" {
		return payment.WebhookValidation{Error: "missing " + signatureHeader + " header"}
	}
	if !payment.VerifyBase64Signature(g.cfg.Credentials["webhook_secret"], body, sig) {
		return payment.WebhookValidation{Error: "invalid webhook signature"}
	}
	return payment.WebhookValidation{IsValid: true}
}

type webhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

func (g *Gateway) ParseCallback(body []byte) payment.ParsedCallback {
	raw, ok := payment.UnwrapPayload(body)
	if !ok {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback body is not readable")
	}

	var ev webhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil || len(ev.Resource) == 0 {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback carries no resource")
	}

	if strings.HasPrefix(ev.EventType, "PAYMENT.CAPTURE.") || ev.ResourceType == "capture" {
		var c capture
		if err := json.Unmarshal(ev.Resource, &c); err != nil || c.ID == "" {
			return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "capture resource is not readable")
		}
		status := statusCodes.Resolve(c.Status)
		cb := payment.ParsedCallback{
			Success:               status == payment.StatusSuccess,
			Status:                status,
			ProviderStatus:        c.Status,
			ProviderTransactionID: c.ID,
			ProviderRequestID:     c.SupplementaryData.RelatedIDs.OrderID,
			Amount:                c.Amount.Value.Decimal,
			Currency:              c.Amount.CurrencyCode,
			OrderReference:        c.CustomID,
			RawData:               raw,
		}
		if !cb.Success {
			cb.ErrorCode = c.Status
			cb.ErrorMessage = c.StatusDetails.Reason
		}
		return cb
	}

	var o orderResponse
	if err := json.Unmarshal(ev.Resource, &o); err != nil || o.ID == "" {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "order resource is not readable")
	}
	return orderToCallback(o, raw)
}

// ParseRedirectParams reads PayPal's return: token is the order id and PayerID
// is only present once the customer approved. Approval is not payment; the
// order still has to be captured.
func (g *Gateway) ParseRedirectParams(params url.Values) payment.ParsedCallback {
	orderID := payment.FirstParam(params, "token", "orderId")
	if orderID == "" {
		return payment.FailedCallback(payment.ParamsJSON(params), "MALFORMED_PAYLOAD", "redirect carries no order id")
	}

	cb := payment.ParsedCallback{
		ProviderRequestID: orderID,
		RawData:           payment.ParamsJSON(params),
	}
	if params.Get("PayerID") != "" {
		cb.Status = payment.StatusProcessing
		cb.ProviderStatus = "APPROVED"
	} else {
		cb.Status = payment.StatusCancelled
		cb.ProviderStatus = "CANCELLED"
		cb.ErrorCode = "CANCELLED"
	}
	return cb
}

func (g *Gateway) TestConnection(ctx context.Context) error {
	if !g.configured {
		return payment.ErrNotConfigured
	}
	_, err := g.accessToken(ctx)
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
