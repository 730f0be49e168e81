package paypal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"storefront-be/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

const tokenBody = `{"access_token":"A21AA-token","token_type":"Bearer","expires_in":32400}`

func newConfigured(t *testing.T) *Gateway {
	t.Helper()
	gw := New(&http.Client{})
	require.NoError(t, gw.Configure(payment.ProviderConfig{
		ProviderType: payment.ProviderPayPal,
		Credentials: map[string]string{
			"client_id":      "cid",
			"client_secret":  "csecret",
			"webhook_secret": "whsec",
		},
		TestMode: true,
	}))
	return gw
}

// route serves the token endpoint and hands every other request to next.
func route(t *testing.T, next func(r *http.Request) *http.Response) MockRoundTripper {
	return func(r *http.Request) *http.Response {
		if r.URL.Path == "/v1/oauth2/token" {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "cid", user)
			assert.Equal(t, "csecret", pass)
			return jsonResponse(http.StatusOK, tokenBody)
		}
		assert.Equal(t, "Bearer A21AA-token", r.Header.Get("Authorization"))
		return next(r)
	}
}

func checkoutRequest() payment.InitiateRequest {
	return payment.InitiateRequest{
		OrderReference: "ORD-55-0001",
		Amount:         decimal.NewFromInt(110),
		Currency:       "usd",
		Items: []payment.LineItem{
			{Kind: payment.LineProduct, Name: "Mug", SKU: "MUG", Price: decimal.NewFromInt(25), Quantity: 4},
			{Kind: payment.LineShipping, Name: "Shipping", Price: decimal.NewFromInt(20), Quantity: 1},
			{Kind: payment.LineDiscount, Name: "SAVE10", Price: decimal.NewFromInt(-10), Quantity: 1},
		},
		SuccessURL: "https://shop.example.com/ok",
		CancelURL:  "https://shop.example.com/cancel",
	}
}

func TestGateway_Configure(t *testing.T) {
	gw := New(nil)
	assert.ErrorIs(t, gw.Configure(payment.ProviderConfig{}), payment.ErrNotConfigured)

	gw = newConfigured(t)
	assert.Equal(t, sandboxBaseURL, gw.baseURL)
}

func TestBuildPurchaseUnit(t *testing.T) {
	unit, err := buildPurchaseUnit(checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, "110.00", unit.Amount.Value)
	assert.Equal(t, "USD", unit.Amount.CurrencyCode)
	require.NotNil(t, unit.Amount.Breakdown)
	assert.Equal(t, "100.00", unit.Amount.Breakdown.ItemTotal.Value)
	assert.Equal(t, "20.00", unit.Amount.Breakdown.Shipping.Value)
	assert.Equal(t, "10.00", unit.Amount.Breakdown.Discount.Value)
	assert.Len(t, unit.Items, 1)

	bad := checkoutRequest()
	bad.Amount = decimal.NewFromInt(111)
	_, err = buildPurchaseUnit(bad)
	assert.Error(t, err)
}

func TestGateway_InitiatePayment(t *testing.T) {
	gw := newConfigured(t)

	t.Run("Success", func(t *testing.T) {
		gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
			assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get("PayPal-Request-Id"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "CAPTURE", body["intent"])

			return jsonResponse(http.StatusCreated, `{
				"id": "5O190127TN364715T",
				"status": "PAYER_ACTION_REQUIRED",
				"links": [
					{"href": "https://api-m.paypal.com/v2/checkout/orders/5O190127TN364715T", "rel": "self"},
					{"href": "https://www.paypal.com/checkoutnow?token=5O190127TN364715T", "rel": "payer-action"}
				]
			}`)
		})

		res, err := gw.InitiatePayment(context.Background(), checkoutRequest())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "5O190127TN364715T", res.ProviderRequestID)
		assert.Contains(t, res.PaymentURL, "checkoutnow")
	})

	t.Run("Unprocessable", func(t *testing.T) {
		gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnprocessableEntity, `{
				"name": "UNPROCESSABLE_ENTITY",
				"details": [{"issue": "ITEM_TOTAL_MISMATCH", "description": "Should equal sum of items"}]
			}`)
		})

		res, err := gw.InitiatePayment(context.Background(), checkoutRequest())
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "ITEM_TOTAL_MISMATCH", res.ErrorCode)
	})

	t.Run("BadCredentials", func(t *testing.T) {
		gw.client.HTTPClient().Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`)
		})

		_, err := gw.InitiatePayment(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, payment.ErrCredentialsRejected)
	})
}

const capturedOrder = `{
	"id": "5O190127TN364715T",
	"status": "COMPLETED",
	"purchase_units": [{
		"reference_id": "ORD-55-0001",
		"custom_id": "ORD-55-0001",
		"payments": {"captures": [{
			"id": "3C679366HH908993F",
			"status": "COMPLETED",
			"amount": {"currency_code": "USD", "value": "110.00"}
		}]}
	}]
}`

func TestGateway_Capture(t *testing.T) {
	gw := newConfigured(t)

	t.Run("Completed", func(t *testing.T) {
		gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
			assert.Equal(t, "/v2/checkout/orders/5O190127TN364715T/capture", r.URL.Path)
			return jsonResponse(http.StatusCreated, capturedOrder)
		})

		cb, err := gw.Capture(context.Background(), "5O190127TN364715T")
		require.NoError(t, err)
		assert.True(t, cb.Success)
		assert.Equal(t, "3C679366HH908993F", cb.ProviderTransactionID)
		assert.Equal(t, "ORD-55-0001", cb.OrderReference)
		assert.True(t, cb.Amount.Equal(decimal.NewFromInt(110)))
	})

	t.Run("AlreadyCaptured", func(t *testing.T) {
		gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
			if strings.HasSuffix(r.URL.Path, "/capture") {
				return jsonResponse(http.StatusUnprocessableEntity,
					`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`)
			}
			assert.Equal(t, http.MethodGet, r.Method)
			return jsonResponse(http.StatusOK, capturedOrder)
		})

		cb, err := gw.Capture(context.Background(), "5O190127TN364715T")
		require.NoError(t, err)
		assert.True(t, cb.Success)
	})

	t.Run("Declined", func(t *testing.T) {
		gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnprocessableEntity,
				`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED","description":"declined"}]}`)
		})

		cb, err := gw.Capture(context.Background(), "5O190127TN364715T")
		require.NoError(t, err)
		assert.False(t, cb.Success)
		assert.Equal(t, payment.StatusFailed, cb.Status)
		assert.Equal(t, "INSTRUMENT_DECLINED", cb.ErrorCode)
		assert.Equal(t, "5O190127TN364715T", cb.ProviderRequestID)
	})
}

func TestGateway_RefundAndStatus(t *testing.T) {
	gw := newConfigured(t)
	gw.client.HTTPClient().Transport = route(t, func(r *http.Request) *http.Response {
		if r.Method == http.MethodGet {
			return jsonResponse(http.StatusOK, capturedOrder)
		}
		assert.Equal(t, "/v2/payments/captures/3C679366HH908993F/refund", r.URL.Path)
		return jsonResponse(http.StatusCreated, `{"id":"1JU08902781691411","status":"COMPLETED","amount":{"value":"30.00","currency_code":"USD"}}`)
	})

	refund, err := gw.Refund(context.Background(), payment.RefundRequest{
		ProviderTransactionID: "3C679366HH908993F",
		Amount:                decimal.NewFromInt(30),
		Currency:              "USD",
	})
	require.NoError(t, err)
	assert.True(t, refund.Success)
	assert.Equal(t, "1JU08902781691411", refund.ProviderRefundID)
	assert.True(t, refund.RefundedAmount.Equal(decimal.NewFromInt(30)))

	status, err := gw.GetTransactionStatus(context.Background(), payment.StatusRequest{ProviderRequestID: "5O190127TN364715T"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, status.Status)

	missing, err := gw.Refund(context.Background(), payment.RefundRequest{Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.False(t, missing.Success)
}

func TestGateway_Webhook(t *testing.T) {
	gw := newConfigured(t)
	body := []byte(`{
		"id": "WH-2WR32451HC0233532-67976317FL4543714",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource_type": "capture",
		"resource": {
			"id": "3C679366HH908993F",
			"status": "COMPLETED",
			"custom_id": "ORD-55-0001",
			"amount": {"currency_code": "USD", "value": "110.00"},
			"supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
		}
	}`)

	headers := http.Header{}
	headers.Set("User-Agent", "PayPal/AUHD-214.0-58473201")
	headers.Set(transmissionHeader, "69cd13f0-d67a-11e5-baa3-778b53f4ae55")
	headers.Set(signatureHeader, base64.StdEncoding.EncodeToString(payment.SignHMACSHA256("whsec", body)))

	assert.True(t, gw.ValidateWebhook(body, headers).IsValid)

	noID := headers.Clone()
	noID.Del(transmissionHeader)
	assert.False(t, gw.ValidateWebhook(body, noID).IsValid)

	forged := headers.Clone()
	forged.Set(signatureHeader, base64.StdEncoding.EncodeToString(payment.SignHMACSHA256("guess", body)))
	assert.False(t, gw.ValidateWebhook(body, forged).IsValid)

	cb := gw.ParseCallback(body)
	assert.True(t, cb.Success)
	assert.Equal(t, "5O190127TN364715T", cb.ProviderRequestID)
	assert.Equal(t, "3C679366HH908993F", cb.ProviderTransactionID)
	assert.Equal(t, "ORD-55-0001", cb.OrderReference)

	denied := gw.ParseCallback([]byte(`{"event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"c","status":"DENIED"}}`))
	assert.False(t, denied.Success)
	assert.Equal(t, payment.StatusFailed, denied.Status, "unknown capture status fails closed")

	approved := gw.ParseCallback([]byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"5O19","status":"APPROVED"}}`))
	assert.Equal(t, payment.StatusProcessing, approved.Status)
	assert.Equal(t, "5O19", approved.ProviderRequestID)

	assert.Equal(t, payment.StatusFailed, gw.ParseCallback([]byte(`{"event_type":"X"}`)).Status)
}

func TestGateway_ParseRedirectParams(t *testing.T) {
	gw := newConfigured(t)

	approved := gw.ParseRedirectParams(url.Values{"token": {"5O19"}, "PayerID": {"QYR5Z8XDVJNXQ"}})
	assert.Equal(t, payment.StatusProcessing, approved.Status)
	assert.False(t, approved.Success)
	assert.Equal(t, "5O19", approved.ProviderRequestID)

	cancelled := gw.ParseRedirectParams(url.Values{"token": {"5O19"}})
	assert.Equal(t, payment.StatusCancelled, cancelled.Status)

	assert.Equal(t, payment.StatusFailed, gw.ParseRedirectParams(url.Values{}).Status)
}

func TestGateway_TestConnection(t *testing.T) {
	gw := newConfigured(t)
	gw.client.HTTPClient().Transport = route(t, nil)
	assert.NoError(t, gw.TestConnection(context.Background()))
}
