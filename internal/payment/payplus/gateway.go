// Package payplus adapts a PayPlus-style hosted payment page: the server
// generates a one-off payment link, the customer pays on the gateway's page
// and the gateway posts a signed callback.
package payplus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	liveBaseURL = "https://restapi.payplus.co.il/api/v1.0"
	testBaseURL = "https://restapidev.payplus.co.il/api/v1.0"

	// Callbacks are sent with this user agent; anything else is not PayPlus.
	sourceUserAgent = "PayPlus"

	chargeMethodCharge = 1
)

var statusCodes = payment.StatusTable{
	"000":        payment.StatusSuccess,
	"approved":   payment.StatusSuccess,
	"success":    payment.StatusSuccess,
	"pending":    payment.StatusPending,
	"processing": payment.StatusProcessing,
	"3ds":        payment.StatusProcessing,
	"cancelled":  payment.StatusCancelled,
	"canceled":   payment.StatusCancelled,
	"rejected":   payment.StatusFailed,
	"error":      payment.StatusFailed,
}

type Gateway struct {
	client     *payment.Client
	cfg        payment.ProviderConfig
	baseURL    string
	configured bool
}

func New(httpClient *http.Client) *Gateway {
	return &Gateway{client: payment.NewClient(payment.ProviderPayPlus, httpClient)}
}

func (g *Gateway) Type() payment.ProviderType {
	return payment.ProviderPayPlus
}

func (g *Gateway) Configure(cfg payment.ProviderConfig) error {
	if err := payment.RequireCredentials(payment.ProviderPayPlus, cfg.Credentials,
		"api_key", "secret_key", "payment_page_uid"); err != nil {
		return err
	}

	g.cfg = cfg
	g.baseURL = liveBaseURL
	if cfg.TestMode {
		g.baseURL = testBaseURL
	}
	if override := cfg.Setting("base_url"); override != "" {
		g.baseURL = strings.TrimRight(override, "/")
	}
	g.configured = true
	return nil
}

func (g *Gateway) headers() map[string]string {
	auth, _ := json.Marshal(map[string]string{
		"api_key":    g.cfg.Credentials["api_key"],
		"secret_key": g.cfg.Credentials["secret_key"],
	})
	return map[string]string{"Authorization": string(auth)}
}

// ----------------- Wire types -----------------

type apiResults struct {
	Status      string             `json:"status"`
	Code        payment.FlexString `json:"code"`
	Description string             `json:"description"`
}

func (r apiResults) ok() bool {
	return strings.EqualFold(r.Status, "success")
}

type customer struct {
	Name       string `json:"customer_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type item struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
	Barcode  string      `json:"barcode,omitempty"`
}

type generateLinkRequest struct {
	PaymentPageUID    string      `json:"payment_page_uid"`
	ChargeMethod      int         `json:"charge_method"`
	Amount            json.Number `json:"amount"`
	CurrencyCode      string      `json:"currency_code"`
	RefURLSuccess     string      `json:"refURL_success,omitempty"`
	RefURLFailure     string      `json:"refURL_failure,omitempty"`
	RefURLCancel      string      `json:"refURL_cancel,omitempty"`
	RefURLCallback    string      `json:"refURL_callback,omitempty"`
	MoreInfo          string      `json:"more_info"`
	MoreInfo2         string      `json:"more_info_2,omitempty"`
	Customer          customer    `json:"customer"`
	Items             []item      `json:"items"`
	SendEmailApproval bool        `json:"sendEmailApproval"`
	SendEmailFailure  bool        `json:"sendEmailFailure"`
	LanguageCode      string      `json:"language_code,omitempty"`
}

type generateLinkResponse struct {
	Results apiResults `json:"results"`
	Data    struct {
		PageRequestUID  string `json:"page_request_uid"`
		PaymentPageLink string `json:"payment_page_link"`
	} `json:"data"`
}

type transaction struct {
	UID                   string             `json:"uid"`
	PaymentPageRequestUID string             `json:"payment_page_request_uid"`
	StatusCode            payment.FlexString `json:"status_code"`
	Status                string             `json:"status"`
	Amount                payment.Amount     `json:"amount"`
	Currency              string             `json:"currency"`
	MoreInfo              string             `json:"more_info"`
	ApprovalNumber        string             `json:"approval_number"`
	StatusDescription     string             `json:"status_description"`
}

type cardInformation struct {
	FourDigits     string `json:"four_digits"`
	BrandName      string `json:"brand_name"`
	CardHolderName string `json:"card_holder_name"`
}

type callbackPayload struct {
	TransactionType string      `json:"transaction_type"`
	Transaction     transaction `json:"transaction"`
	Data            struct {
		CardInformation cardInformation `json:"card_information"`
	} `json:"data"`
}

// ----------------- InitiatePayment -----------------

func money(d decimal.Decimal) json.Number {
	return json.Number(payment.FormatAmount(d))
}

func (g *Gateway) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(payment.ProviderPayPlus)),
		zap.String("order_reference", req.OrderReference),
		zap.String("amount", req.Amount.String()),
	)

	items := make([]item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, item{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    money(it.Price),
			Barcode:  it.SKU,
		})
	}

	body := generateLinkRequest{
		PaymentPageUID: g.cfg.Credentials["payment_page_uid"],
		ChargeMethod:   chargeMethodCharge,
		Amount:         money(req.Amount),
		CurrencyCode:   strings.ToUpper(req.Currency),
		RefURLSuccess:  req.SuccessURL,
		RefURLFailure:  req.FailureURL,
		RefURLCancel:   req.CancelURL,
		RefURLCallback: req.CallbackURL,
		MoreInfo:       req.OrderReference,
		MoreInfo2:      fmt.Sprintf("%d", req.OrderNumber),
		Customer: customer{
			Name:       req.Customer.Name,
			Email:      req.Customer.Email,
			Phone:      utils.NormalizePhoneIL(req.Customer.Phone),
			Address:    req.Customer.Address,
			City:       req.Customer.City,
			PostalCode: req.Customer.PostalCode,
		},
		Items:             items,
		SendEmailApproval: true,
		SendEmailFailure:  false,
		LanguageCode:      g.cfg.Setting("language"),
	}

	resp, err := g.client.Do(ctx, "initiate", http.MethodPost,
		g.baseURL+"/PaymentPages/generateLink", g.headers(), body)
	if err != nil {
		return nil, err
	}

	var out generateLinkResponse
	if decodeErr := resp.Decode(&out); decodeErr != nil {
		log.Warn("undecodable generateLink response", zap.Error(decodeErr))
		return &payment.InitiateResult{
			ErrorCode:    "INVALID_RESPONSE",
			ErrorMessage: "payment page could not be created",
			Raw:          resp.Body,
		}, nil
	}

	if !resp.OK() || !out.Results.ok() || out.Data.PaymentPageLink == "" {
		log.Warn("payplus refused payment link",
			zap.Int("http_status", resp.StatusCode),
			zap.String("code", out.Results.Code.String()),
			zap.String("description", out.Results.Description),
		)
		code := out.Results.Code.String()
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return &payment.InitiateResult{
			ErrorCode:    code,
			ErrorMessage: out.Results.Description,
			Raw:          resp.Body,
		}, nil
	}

	log.Info("payplus payment link created", zap.String("page_request_uid", out.Data.PageRequestUID))

	return &payment.InitiateResult{
		Success:           true,
		PaymentURL:        out.Data.PaymentPageLink,
		ProviderRequestID: out.Data.PageRequestUID,
		Raw:               resp.Body,
	}, nil
}

// ----------------- Refund -----------------

func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	body := map[string]any{
		"transaction_uid": req.ProviderTransactionID,
		"amount":          money(req.Amount),
		"more_info":       req.Reason,
	}

	resp, err := g.client.Do(ctx, "refund", http.MethodPost,
		g.baseURL+"/Transactions/RefundByTransactionUID", g.headers(), body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results apiResults `json:"results"`
		Data    struct {
			Transaction transaction `json:"transaction"`
		} `json:"data"`
	}
	if err := resp.Decode(&out); err != nil || !resp.OK() || !out.Results.ok() {
		return &payment.RefundResult{
			ErrorCode:    out.Results.Code.String(),
			ErrorMessage: out.Results.Description,
			Raw:          resp.Body,
		}, nil
	}

	refunded := out.Data.Transaction.Amount.Decimal
	if refunded.IsZero() {
		refunded = req.Amount
	}

	return &payment.RefundResult{
		Success:          true,
		RefundedAmount:   refunded,
		ProviderRefundID: out.Data.Transaction.UID,
		Raw:              resp.Body,
	}, nil
}

// ----------------- GetTransactionStatus -----------------

func (g *Gateway) GetTransactionStatus(ctx context.Context, req payment.StatusRequest) (*payment.StatusResult, error) {
	if !g.configured {
		return nil, payment.ErrNotConfigured
	}

	body := map[string]string{}
	if req.ProviderTransactionID != "" {
		body["transaction_uid"] = req.ProviderTransactionID
	} else {
		body["payment_request_uid"] = req.ProviderRequestID
	}

	resp, err := g.client.Do(ctx, "status", http.MethodPost,
		g.baseURL+"/PaymentPages/ipn", g.headers(), body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results apiResults  `json:"results"`
		Data    transaction `json:"data"`
	}
	if err := resp.Decode(&out); err != nil || !resp.OK() || !out.Results.ok() {
		return &payment.StatusResult{
			Status:         payment.StatusFailed,
			ProviderStatus: out.Results.Code.String(),
			Raw:            resp.Body,
		}, nil
	}

	code := out.Data.StatusCode.String()
	if code == "" {
		code = out.Data.Status
	}

	return &payment.StatusResult{
		Status:                statusCodes.Resolve(code),
		ProviderStatus:        code,
		ProviderTransactionID: out.Data.UID,
		Amount:                out.Data.Amount.Decimal,
		Currency:              out.Data.Currency,
		Raw:                   resp.Body,
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
	sig := headers.Get("hash")
	if sig == "" {
		return payment.WebhookValidation{Error: "missing hash header"}
	}
	if !payment.VerifyBase64Signature(g.cfg.Credentials["secret_key"], body, sig) {
		return payment.WebhookValidation{Error: "invalid webhook signature"}
	}
	return payment.WebhookValidation{IsValid: true}
}

func (g *Gateway) ParseCallback(body []byte) payment.ParsedCallback {
	raw, ok := payment.UnwrapPayload(body, "payload", "data")
	if !ok {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback body is not readable")
	}

	var p callbackPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", err.Error())
	}
	tx := p.Transaction
	if tx.UID == "" && tx.PaymentPageRequestUID == "" {
		return payment.FailedCallback(body, "MALFORMED_PAYLOAD", "callback carries no transaction identifiers")
	}

	code := tx.StatusCode.String()
	if code == "" {
		code = tx.Status
	}
	status := statusCodes.Resolve(code)

	cb := payment.ParsedCallback{
		Success:               status == payment.StatusSuccess,
		Status:                status,
		ProviderStatus:        code,
		ProviderTransactionID: tx.UID,
		ProviderRequestID:     tx.PaymentPageRequestUID,
		Amount:                tx.Amount.Decimal,
		Currency:              tx.Currency,
		OrderReference:        tx.MoreInfo,
		Card: payment.CardInfo{
			Last4:          p.Data.CardInformation.FourDigits,
			Brand:          p.Data.CardInformation.BrandName,
			HolderName:     p.Data.CardInformation.CardHolderName,
			ApprovalNumber: tx.ApprovalNumber,
		},
		RawData: raw,
	}
	if !cb.Success {
		cb.ErrorCode = code
		cb.ErrorMessage = tx.StatusDescription
	}
	return cb
}

func (g *Gateway) ParseRedirectParams(params url.Values) payment.ParsedCallback {
	requestID := payment.FirstParam(params, "page_request_uid", "payment_request_uid")
	transactionID := payment.FirstParam(params, "transaction_uid")
	if requestID == "" && transactionID == "" {
		return payment.FailedCallback(payment.ParamsJSON(params), "MALFORMED_PAYLOAD", "redirect carries no transaction identifiers")
	}

	code := payment.FirstParam(params, "status_code", "status")
	status := statusCodes.Resolve(code)

	amount, _ := decimal.NewFromString(params.Get("amount"))

	cb := payment.ParsedCallback{
		Success:               status == payment.StatusSuccess,
		Status:                status,
		ProviderStatus:        code,
		ProviderTransactionID: transactionID,
		ProviderRequestID:     requestID,
		Amount:                amount,
		Currency:              params.Get("currency"),
		OrderReference:        params.Get("more_info"),
		Card: payment.CardInfo{
			Last4:          params.Get("four_digits"),
			Brand:          params.Get("brand_name"),
			ApprovalNumber: payment.FirstParam(params, "approval_num", "approval_number"),
		},
		RawData: payment.ParamsJSON(params),
	}
	if !cb.Success {
		cb.ErrorCode = code
	}
	return cb
}

// ----------------- TestConnection -----------------

func (g *Gateway) TestConnection(ctx context.Context) error {
	if !g.configured {
		return payment.ErrNotConfigured
	}

	resp, err := g.client.Do(ctx, "test_connection", http.MethodGet,
		g.baseURL+"/PaymentPages/list", g.headers(), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("payplus: %w", payment.ErrCredentialsRejected)
	}
	if !resp.OK() {
		return fmt.Errorf("payplus: unexpected status %d", resp.StatusCode)
	}
	return nil
}
