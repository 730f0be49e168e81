// Package pelecard adapts a Pelecard-style iframe gateway. Amounts travel in
// agorot (minor units) and every answer carries a three-digit status code,
// "000" meaning approved.
package pelecard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://gateway20.pelecard.biz"

	sourceUserAgent = "Pelecard"
	signatureHeader = "x-pelecard-signature"

	approvedCode = "000"
)

var statusCodes = payment.StatusTable{
	"000":        payment.StatusSuccess,
	"pending":    payment.StatusPending,
	"processing": payment.StatusProcessing,
	"3DS":        payment.StatusProcessing,
	"555":        payment.StatusCancelled,
	"cancel":     payment.StatusCancelled,
}

// Numeric currency codes the gateway expects.
var currencyCodes = map[string]string{
	"ILS": "1",
	"USD": "2",
	"EUR": "978",
}

type Gateway struct {
	client     *payment.Client
	cfg        payment.ProviderConfig
	baseURL    string
	configured bool
}

func New(httpClient *http.Client) *Gateway {
	return &Gateway{client: payment.NewClient(payment.ProviderPelecard, httpClient)}
}

func (g *Gateway) Type() payment.ProviderType {
	return payment.ProviderPelecard
}

func (g *Gateway) Configure(cfg payment.ProviderConfig) error {
	if err := payment.RequireCredentials(payment.ProviderPelecard, cfg.Credentials,
		"terminal", "user", "password"); err != nil {
		return err
	}
	g.cfg = cfg
	g.baseURL = defaultBaseURL
	if override := cfg.Setting("base_url"); override != "" {
		g.baseURL = strings.TrimRight(override, "/")
	}
	g.configured = true
	return nil
}

// webhookSecret falls back to the terminal password when no dedicated
// signing secret was provisioned.
func (g *Gateway) webhookSecret() string {
	if s := g.cfg.Credentials["webhook_secret"]; s != "" {
		return s
	}
	return g.cfg.Credentials["password"]
}

func (g *Gateway) auth() map[string]string {
	return map[string]string{
		"terminal": g.cfg.Credentials["terminal"],
		"user":     g.cfg.Credentials["user"],
		"password": g.cfg.Credentials["password"],
	}
}

func currencyCode(c string) string {
	if code, ok := currencyCodes[strings.ToUpper(c)]; ok {
		return code
	}
	return currencyCodes["ILS"]
}

type apiError struct {
	ErrCode payment.FlexString `json:"ErrCode"`
	ErrMsg  string             `json:"ErrMsg"`
}

type initRequest struct {
	Terminal                   string `json:"terminal"`
	User                       string `json:"user"`
	Password                   string `json:"password"`
	GoodURL                    string `json:"GoodURL"`
	ErrorURL                   string `json:"ErrorURL"`
	CancelURL                  string `json:"CancelURL,omitempty"`
	ServerSideGoodFeedbackURL  string `json:"ServerSideGoodFeedbackURL,omitempty"`
	ServerSideErrorFeedbackURL string `json:"ServerSideErrorFeedbackURL,omitempty"`
	ActionType                 string `json:"ActionType"`
	Currency                   string `json:"Currency"`
	Total                      int64  `json:"Total"`
	ParamX                     string `json:"ParamX"`
	Language                   string `json:"Language"`
	CustomerEmailField         string `json:"CustomerEmailField,omitempty"`
	CardHolderName             string `json:"CardHolderName,omitempty"`
	FeedbackDataTransferMethod string `json:"FeedbackDataTransferMethod"`
}

type initResponse struct {
	URL   string   `json:"URL"`
	Error apiError `json:"Error"`
}

type resultData struct {
	TransactionID         string             `json:"TransactionId"`
	PelecardTransactionID string             `json:"PelecardTransactionId"`
	StatusCode            payment.FlexString `json:"StatusCode"`
	ShvaResult            payment.FlexString `json:"ShvaResult"`
	DebitTotal            payment.FlexString `json:"DebitTotal"`
	DebitCurrency         payment.FlexString `json:"DebitCurrency"`
	CardNumber            string             `json:"CreditCardNumber"`
	CardCompany           string             `json:"CreditCardCompanyIssuer"`
	CardHolderName        string             `json:"CardHolderName"`
	ApprovalNo            string             `json:"DebitApproveNumber"`
	ParamX                string             `json:"AdditionalDetailsParamX"`
	ErrorMessage          string             `json:"ErrorMessage"`
}

type serviceResponse struct {
	StatusCode   payment.FlexString `json:"StatusCode"`
	ErrorMessage string             `json:"ErrorMessage"`
	ResultData   resultData         `json:"ResultData"`
}

// transactionIDFromURL pulls the page's transaction id out of the iframe URL,
// either from a transactionId query parameter or the last path segment.
func transactionIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	for _, key := range []string{"transactionId", "TransactionId", "transactionid"} {
		if v := u.Query().Get(key); v != "" {
			return v
		}
	}
	last := path.Base(u.Path)
	if last == "." || last == "/" || strings.EqualFold(last, "PaymentGW") {
		return ""
	}
	return last
}

func (g *Gateway) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(payment.ProviderPelecard)),
		zap.String("order_reference", req.OrderReference),
	)

	lang := strings.ToUpper(g.cfg.Setting("language"))
	if lang == "" {
		lang = "HE"
	}

	creds := g.auth()
	body := initRequest{
		Terminal:                   creds["terminal"],
		User:                       creds["user"],
		Password:                   creds["password"],
		GoodURL:                    req.SuccessURL,
		ErrorURL:                   req.FailureURL,
		CancelURL:                  req.CancelURL,
		ServerSideGoodFeedbackURL:  req.CallbackURL,
		ServerSideErrorFeedbackURL: req.CallbackURL,
		ActionType:                 "J4",
		Currency:                   currencyCode(req.Currency),
		Total:                      payment.ToMinorUnits(req.Amount),
		ParamX:                     req.OrderReference,
		Language:                   lang,
		CustomerEmailField:         req.Customer.Email,
		CardHolderName:             req.Customer.Name,
		FeedbackDataTransferMethod: "POST",
	}

	resp, err := g.client.Do(ctx, "initiate", http.MethodPost,
		g.baseURL+"/PaymentGW/init", nil, body)
	if err != nil {
		return nil, err
	}

	var out initResponse
	if decodeErr := resp.Decode(&out); decodeErr != nil {
		log.Warn("undecodable init response", zap.Error(decodeErr))
		return &payment.InitiateResult{
			ErrorCode:    "INVALID_RESPONSE",
			ErrorMessage: "payment page could not be created",
			Raw:          resp.Body,
		}, nil
	}

	code := out.Error.ErrCode.String()
	if !resp.OK() || (code != "" && code != approvedCode && code != "0") || out.URL == "" {
		log.Warn("pelecard refused init",
			zap.Int("http_status", resp.StatusCode),
			zap.String("code", code),
			zap.String("message", out.Error.ErrMsg),
		)
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return &payment.InitiateResult{
			ErrorCode:    code,
			ErrorMessage: out.Error.ErrMsg,
			Raw:          resp.Body,
		}, nil
	}

	txID := transactionIDFromURL(out.URL)
	log.Info("pelecard iframe created", zap.String("transaction_id", txID))

	return &payment.InitiateResult{
		Success:           true,
		PaymentURL:        out.URL,
		ProviderRequestID: txID,
		Raw:               resp.Body,
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	body := g.auth()
	body["TransactionId"] = req.ProviderTransactionID
	body["Total"] = fmt.Sprintf("%d", payment.ToMinorUnits(req.Amount))
	body["Currency"] = currencyCode(req.Currency)

	resp, err := g.client.Do(ctx, "refund", http.MethodPost,
		g.baseURL+"/services/RefundTransaction", nil, body)
	if err != nil {
		return nil, err
	}

	var out serviceResponse
	if err := resp.Decode(&out); err != nil || !resp.OK() || out.StatusCode.String() != approvedCode {
		return &payment.RefundResult{
			ErrorCode:    out.StatusCode.String(),
			ErrorMessage: out.ErrorMessage,
			Raw:          resp.Body,
		}, nil
	}

	refunded := req.Amount
	if minor, ok := parseMinor(out.ResultData.DebitTotal.String()); ok {
		refunded = payment.FromMinorUnits(minor)
	}

	return &payment.RefundResult{
		Success:          true,
		RefundedAmount:   refunded,
		ProviderRefundID: out.ResultData.PelecardTransactionID,
		Raw:              resp.Body,
	}, nil
}

func (g *Gateway) GetTransactionStatus(ctx context.Context, req payment.StatusRequest) (*payment.StatusResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	body := g.auth()
	body["TransactionId"] = req.ProviderRequestID
	if body["TransactionId"] == "" {
		body["TransactionId"] = req.ProviderTransactionID
	}

	resp, err := g.client.Do(ctx, "status", http.MethodPost,
		g.baseURL+"/PaymentGW/GetTransaction", nil, body)
	if err != nil {
		return nil, err
	}

	var out serviceResponse
	if err := resp.Decode(&out); err != nil || !resp.OK() {
		return &payment.StatusResult{Status: payment.StatusFailed, Raw: resp.Body}, nil
	}

	code := resultCode(out.StatusCode.String(), out.ResultData)
	minor, _ := parseMinor(out.ResultData.DebitTotal.String())

	return &payment.StatusResult{
		Status:                statusCodes.Resolve(code),
		ProviderStatus:        code,
		ProviderTransactionID: out.ResultData.PelecardTransactionID,
		Amount:                payment.FromMinorUnits(minor),
		Raw:                   resp.Body,
	}, nil
}

// resultCode prefers the per-transaction code over the envelope's.
func resultCode(envelope string, d resultData) string {
	if c := d.StatusCode.String(); c != "" {
		return c
	}
	if c := d.ShvaResult.String(); c != "" {
		return c
	}
	return envelope
}

func parseMinor(s string) (int64, bool) {
	var n int64
	if _, err := fmt.Sscan(strings.TrimSpace(s), &n); err != nil {
		return 0, false
	}
	return n, true
}

func (g *Gateway) ValidateWebhook(body []byte, headers http.Header) payment.WebhookValidation {
	if !g.configured {
		return payment.WebhookValidation{Error: payment.ErrNotConfigured.Error()}
	}
	if !strings.HasPrefix(headers.Get("User-Agent"), sourceUserAgent) {
		return payment.WebhookValidation{Error: "unexpected callback source"}
	}
	sig := headers.Get(signatureHeader)
	if sig == "" {
		return payment.WebhookValidation{Error: "missing " + signatureHeader + " header"}
	}
	if !payment.VerifyHexSignature(g.webhookSecret(), body, sig) {
		return payment.WebhookValidation{Error: "invalid webhook signature"}
	}
	return payment.WebhookValidation{IsValid: true}
}

func (g *Gateway) ParseCallback(body []byte) payment.ParsedCallback {
	raw, ok := payment.UnwrapPayload(body, "ResultData", "data")
	if !ok {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback body is not readable")
	}

	var env serviceResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", err.Error())
	}
	d := env.ResultData
	if d.TransactionID == "" && d.PelecardTransactionID == "" {
		// Some terminals post ResultData's fields at the top level.
		if err := json.Unmarshal(raw, &d); err != nil || (d.TransactionID == "" && d.PelecardTransactionID == "") {
			return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback carries no transaction identifiers")
		}
	}

	code := resultCode(env.StatusCode.String(), d)
	status := statusCodes.Resolve(code)
	minor, _ := parseMinor(d.DebitTotal.String())

	cb := payment.ParsedCallback{
		Success:               status == payment.StatusSuccess,
		Status:                status,
		ProviderStatus:        code,
		ProviderTransactionID: d.PelecardTransactionID,
		ProviderRequestID:     d.TransactionID,
		Amount:                payment.FromMinorUnits(minor),
		Currency:              currencyName(d.DebitCurrency.String()),
		OrderReference:        d.ParamX,
		Card: payment.CardInfo{
			Last4:          last4(d.CardNumber),
			Brand:          d.CardCompany,
			HolderName:     d.CardHolderName,
			ApprovalNumber: d.ApprovalNo,
		},
		RawData: raw,
	}
	if !cb.Success {
		cb.ErrorCode = code
		cb.ErrorMessage = firstNonEmpty(d.ErrorMessage, env.ErrorMessage)
	}
	return cb
}

func (g *Gateway) ParseRedirectParams(params url.Values) payment.ParsedCallback {
	requestID := payment.FirstParam(params, "TransactionId", "transactionId")
	txID := payment.FirstParam(params, "PelecardTransactionId")
	if requestID == "" && txID == "" {
		return payment.FailedCallback(payment.ParamsJSON(params), "MALFORMED_PAYLOAD", "redirect carries no transaction identifiers")
	}

	code := payment.FirstParam(params, "PelecardStatusCode", "StatusCode")
	status := statusCodes.Resolve(code)
	minor, _ := parseMinor(params.Get("Total"))

	cb := payment.ParsedCallback{
		Success:               status == payment.StatusSuccess,
		Status:                status,
		ProviderStatus:        code,
		ProviderTransactionID: txID,
		ProviderRequestID:     requestID,
		Amount:                payment.FromMinorUnits(minor),
		OrderReference:        params.Get("ParamX"),
		Card: payment.CardInfo{
			ApprovalNumber: params.Get("ApprovalNo"),
		},
		RawData: payment.ParamsJSON(params),
	}
	if !cb.Success {
		cb.ErrorCode = code
	}
	return cb
}

func (g *Gateway) TestConnection(ctx context.Context) error {
	if !g.configured {
		return payment.ErrNotConfigured
	}

	resp, err := g.client.Do(ctx, "test_connection", http.MethodPost,
		g.baseURL+"/services/CheckGoodParamX", nil, g.auth())
	if err != nil {
		return err
	}

	var out serviceResponse
	if err := resp.Decode(&out); err != nil || !resp.OK() {
		return fmt.Errorf("pelecard: unexpected status %d", resp.StatusCode)
	}
	if out.StatusCode.String() != approvedCode {
		return fmt.Errorf("pelecard: %s: %w", out.ErrorMessage, payment.ErrCredentialsRejected)
	}
	return nil
}

func currencyName(code string) string {
	for name, c := range currencyCodes {
		if c == code {
			return name
		}
	}
	return ""
}

func last4(card string) string {
	card = strings.TrimSpace(card)
	if len(card) <= 4 {
		return card
	}
	return card[len(card)-4:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
