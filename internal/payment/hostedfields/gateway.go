// Package hostedfields adapts a hosted-fields gateway: the server issues a
// client token, the storefront renders the gateway's card fields with it and
// the card is tokenized against that token. The sale itself is submitted
// server-side once the customer is back (see Capture).
package hostedfields

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"

	"go.uber.org/zap"
)

const (
	liveBaseURL    = "https://api.hostedfields.io/v1"
	sandboxBaseURL = "https://sandbox.api.hostedfields.io/v1"

	signatureHeader = "x-hf-signature"
	merchantHeader  = "x-hf-merchant-id"
)

var statusCodes = payment.StatusTable{
	"created":                  payment.StatusPending,
	"tokenized":                payment.StatusProcessing,
	"authorizing":              payment.StatusProcessing,
	"authorized":               payment.StatusProcessing,
	"submitted_for_settlement": payment.StatusSuccess,
	"settling":                 payment.StatusSuccess,
	"settled":                  payment.StatusSuccess,
	"voided":                   payment.StatusCancelled,
	"processor_declined":       payment.StatusFailed,
	"gateway_rejected":         payment.StatusFailed,
}

type Gateway struct {
	client     *payment.Client
	cfg        payment.ProviderConfig
	baseURL    string
	configured bool
}

func New(httpClient *http.Client) *Gateway {
	return &Gateway{client: payment.NewClient(payment.ProviderHostedFields, httpClient)}
}

func (g *Gateway) Type() payment.ProviderType {
	return payment.ProviderHostedFields
}

func (g *Gateway) Configure(cfg payment.ProviderConfig) error {
	if err := payment.RequireCredentials(payment.ProviderHostedFields, cfg.Credentials,
		"merchant_id", "public_key", "private_key", "webhook_secret"); err != nil {
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

func (g *Gateway) headers() map[string]string {
	basic := base64.StdEncoding.EncodeToString(
		[]byte(g.cfg.Credentials["public_key"] + ":" + g.cfg.Credentials["private_key"]))
	return map[string]string{
		"Authorization": "Basic " + basic,
		merchantHeader:  g.cfg.Credentials["merchant_id"],
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type card struct {
	Last4          string `json:"last4"`
	Brand          string `json:"brand"`
	CardholderName string `json:"cardholder_name"`
}

type transaction struct {
	ID                    string             `json:"id"`
	ClientTokenID         string             `json:"client_token_id"`
	Status                string             `json:"status"`
	Amount                payment.FlexString `json:"amount"`
	Currency              string             `json:"currency"`
	OrderReference        string             `json:"order_reference"`
	Card                  card               `json:"card"`
	AuthorizationCode     string             `json:"authorization_code"`
	ProcessorResponseCode string             `json:"processor_response_code"`
	ProcessorResponseText string             `json:"processor_response_text"`
}

func (t transaction) callback(raw []byte) payment.ParsedCallback {
	status := statusCodes.Resolve(t.Status)
	minor, _ := strconv.ParseInt(t.Amount.String(), 10, 64)
	cb := payment.ParsedCallback{
		Success:               status == payment.StatusSuccess,
		Status:                status,
		ProviderStatus:        t.Status,
		ProviderTransactionID: t.ID,
		ProviderRequestID:     t.ClientTokenID,
		Amount:                payment.FromMinorUnits(minor),
		Currency:              strings.ToUpper(t.Currency),
		OrderReference:        t.OrderReference,
		Card: payment.CardInfo{
			Last4:          t.Card.Last4,
			Brand:          t.Card.Brand,
			HolderName:     t.Card.CardholderName,
			ApprovalNumber: t.AuthorizationCode,
		},
		RawData: raw,
	}
	if !cb.Success {
		cb.ErrorCode = firstNonEmpty(t.ProcessorResponseCode, t.Status)
		cb.ErrorMessage = t.ProcessorResponseText
	}
	return cb
}

func (g *Gateway) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(payment.ProviderHostedFields)),
		zap.String("order_reference", req.OrderReference),
	)

	body := map[string]any{
		"merchant_id":     g.cfg.Credentials["merchant_id"],
		"amount":          payment.ToMinorUnits(req.Amount),
		"currency":        strings.ToUpper(req.Currency),
		"order_reference": req.OrderReference,
		"callback_url":    req.CallbackURL,
		"customer": map[string]string{
			"name":  req.Customer.Name,
			"email": req.Customer.Email,
			"phone": req.Customer.Phone,
		},
	}

	resp, err := g.client.Do(ctx, "initiate", http.MethodPost,
		g.baseURL+"/client_tokens", g.headers(), body)
	if err != nil {
		return nil, err
	}

	var out struct {
		ID          string   `json:"id"`
		ClientToken string   `json:"client_token"`
		Error       apiError `json:"error"`
	}
	if decodeErr := resp.Decode(&out); decodeErr != nil {
		return &payment.InitiateResult{
			ErrorCode:    "INVALID_RESPONSE",
			ErrorMessage: "client token could not be issued",
			Raw:          resp.Body,
		}, nil
	}
	if !resp.OK() || out.ClientToken == "" {
		log.Warn("hosted fields refused client token",
			zap.Int("http_status", resp.StatusCode),
			zap.String("code", out.Error.Code),
		)
		return &payment.InitiateResult{
			ErrorCode:    firstNonEmpty(out.Error.Code, fmt.Sprintf("HTTP_%d", resp.StatusCode)),
			ErrorMessage: out.Error.Message,
			Raw:          resp.Body,
		}, nil
	}

	log.Info("hosted fields client token issued", zap.String("client_token_id", out.ID))

	return &payment.InitiateResult{
		Success:           true,
		ClientToken:       out.ClientToken,
		ProviderRequestID: out.ID,
		Raw:               resp.Body,
	}, nil
}

// Capture submits the sale for the card tokenized under the client token.
// The gateway keys the sale on the client token id, so a repeated call
// returns the existing transaction instead of charging twice.
func (g *Gateway) Capture(ctx context.Context, providerRequestID string) (payment.ParsedCallback, error) {
	if !g.configured {
		return payment.ParsedCallback{}, payment.ErrNotConfigured
	}

	resp, err := g.client.Do(ctx, "capture", http.MethodPost,
		g.baseURL+"/transactions/sale", g.headers(), map[string]any{
			"client_token_id":       providerRequestID,
			"submit_for_settlement": true,
		})
	if err != nil {
		return payment.ParsedCallback{}, err
	}

	var out struct {
		Transaction transaction `json:"transaction"`
		Error       apiError    `json:"error"`
	}
	if err := resp.Decode(&out); err != nil {
		return payment.FailedCallback(resp.Body, "INVALID_RESPONSE", err.Error()), nil
	}
	if !resp.OK() || out.Transaction.ID == "" {
		cb := payment.FailedCallback(resp.Body, firstNonEmpty(out.Error.Code, "SALE_REJECTED"), out.Error.Message)
		cb.ProviderRequestID = providerRequestID
		return cb, nil
	}
	if out.Transaction.ClientTokenID == "" {
		out.Transaction.ClientTokenID = providerRequestID
	}
	return out.Transaction.callback(resp.Body), nil
}

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	resp, err := g.client.Do(ctx, "refund", http.MethodPost,
		g.baseURL+"/transactions/"+url.PathEscape(req.ProviderTransactionID)+"/refund",
		g.headers(), map[string]any{"amount": payment.ToMinorUnits(req.Amount)})
	if err != nil {
		return nil, err
	}

	var out struct {
		Transaction transaction `json:"transaction"`
		Error       apiError    `json:"error"`
	}
	if err := resp.Decode(&out); err != nil || !resp.OK() || out.Transaction.ID == "" {
		return &payment.RefundResult{
			ErrorCode:    out.Error.Code,
			ErrorMessage: out.Error.Message,
			Raw:          resp.Body,
		}, nil
	}

	refunded := req.Amount
	if minor, err := strconv.ParseInt(out.Transaction.Amount.String(), 10, 64); err == nil && minor > 0 {
		refunded = payment.FromMinorUnits(minor)
	}
	return &payment.RefundResult{
		Success:          true,
		RefundedAmount:   refunded,
		ProviderRefundID: out.Transaction.ID,
		Raw:              resp.Body,
	}, nil
}

func (g *Gateway) GetTransactionStatus(ctx context.Context, req payment.StatusRequest) (*payment.StatusResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	endpoint := g.baseURL + "/client_tokens/" + url.PathEscape(req.ProviderRequestID)
	if req.ProviderTransactionID != "" {
		endpoint = g.baseURL + "/transactions/" + url.PathEscape(req.ProviderTransactionID)
	}

	resp, err := g.client.Do(ctx, "status", http.MethodGet, endpoint, g.headers(), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status      string      `json:"status"`
		Transaction transaction `json:"transaction"`
	}
	if err := resp.Decode(&out); err != nil || !resp.OK() {
		return &payment.StatusResult{Status: payment.StatusFailed, Raw: resp.Body}, nil
	}

	tx := out.Transaction
	if tx.Status == "" {
		tx.Status = out.Status
	}
	cb := tx.callback(resp.Body)
	return &payment.StatusResult{
		Status:                cb.Status,
		ProviderStatus:        cb.ProviderStatus,
		ProviderTransactionID: cb.ProviderTransactionID,
		Amount:                cb.Amount,
		Currency:              cb.Currency,
		Raw:                   resp.Body,
	}, nil
}

func (g *Gateway) ValidateWebhook(body []byte, headers http.Header) payment.WebhookValidation {
	if !g.configured {
		return payment.WebhookValidation{Error: payment.ErrNotConfigured.Error()}
	}
	if headers.Get(merchantHeader) != g.cfg.Credentials["merchant_id"] {
		return payment.WebhookValidation{Error: "merchant id does not match"}
	}
	sig := headers.Get(signatureHeader)
	if sig == "" {
		return payment.WebhookValidation{Error: "missing " + signatureHeader + " header"}
	}
	if !payment.VerifyHexSignature(g.cfg.Credentials["webhook_secret"], body, sig) {
		return payment.WebhookValidation{Error: "invalid webhook signature"}
	}
	return payment.WebhookValidation{IsValid: true}
}

func (g *Gateway) ParseCallback(body []byte) payment.ParsedCallback {
	raw, ok := payment.UnwrapPayload(body, "payload")
	if !ok {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback body is not readable")
	}

	var ev struct {
		Event string      `json:"event"`
		Data  transaction `json:"data"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", err.Error())
	}
	if ev.Data.ID == "" && ev.Data.ClientTokenID == "" {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback carries no transaction identifiers")
	}
	return ev.Data.callback(raw)
}

// ParseRedirectParams reads what the storefront posts back after the hosted
// fields tokenized the card. A tokenized card is not yet a payment.
func (g *Gateway) ParseRedirectParams(params url.Values) payment.ParsedCallback {
	tx := transaction{
		ID:             payment.FirstParam(params, "transaction_id"),
		ClientTokenID:  payment.FirstParam(params, "client_token_id", "request_id"),
		Status:         payment.FirstParam(params, "status"),
		Amount:         payment.FlexString(params.Get("amount")),
		Currency:       params.Get("currency"),
		OrderReference: params.Get("order_reference"),
	}
	if tx.ID == "" && tx.ClientTokenID == "" {
		return payment.FailedCallback(payment.ParamsJSON(params), "MALFORMED_PAYLOAD", "redirect carries no transaction identifiers")
	}
	return tx.callback(payment.ParamsJSON(params))
}

func (g *Gateway) TestConnection(ctx context.Context) error {
	if !g.configured {
		return payment.ErrNotConfigured
	}

	resp, err := g.client.Do(ctx, "test_connection", http.MethodGet,
		g.baseURL+"/merchants/"+url.PathEscape(g.cfg.Credentials["merchant_id"]), g.headers(), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("hosted fields: %w", payment.ErrCredentialsRejected)
	}
	if !resp.OK() {
		return fmt.Errorf("hosted fields: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
