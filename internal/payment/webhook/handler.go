package webhook

import (
	"errors"
	"io"
	"net/http"

	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

type Handler struct {
	finalizer *Finalizer
}

func NewHandler(f *Finalizer) *Handler {
	return &Handler{finalizer: f}
}

// Webhook handles POST /webhooks/{provider}/{storeID}. Anything but a 2xx
// makes the gateway retry, so "not found yet" is a 404 rather than a 200.
// A payload without identifiers is a 400; retrying it cannot help.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	providerType := payment.ProviderType(vars["provider"])
	log := logger.FromCtx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	out, err := h.finalizer.HandleWebhook(r.Context(), providerType, vars["storeID"], body, r.Header)
	if err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			log.Error("webhook processing failed", zap.Error(err))
		}
		utils.WriteJSONError(w, publicError(err), code)
		return
	}

	utils.WriteJSON(w, map[string]any{
		"received":  true,
		"status":    out.Status,
		"duplicate": out.Duplicate,
	}, http.StatusOK)
}

// Redirect handles GET|POST /payments/{provider}/return/{storeID}; the
// storefront forwards the gateway's return parameters here.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	providerType := payment.ProviderType(vars["provider"])

	// Form merges the query string with a POSTed form body.
	params := r.URL.Query()
	if err := r.ParseForm(); err == nil {
		params = r.Form
	}

	out, err := h.finalizer.HandleRedirect(r.Context(), providerType, vars["storeID"], params)
	if err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			logger.FromCtx(r.Context()).Error("redirect processing failed", zap.Error(err))
		}
		utils.WriteJSON(w, map[string]any{
			"success": false,
			"status":  payment.StatusFailed,
			"error":   publicError(err),
		}, code)
		return
	}

	utils.WriteJSON(w, map[string]any{
		"success":        out.Status == payment.StatusSuccess,
		"status":         out.Status,
		"orderReference": out.OrderReference,
		"errorCode":      out.ErrorCode,
	}, http.StatusOK)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrUnknownProvider), errors.Is(err, ErrUnidentifiedCallback):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderNotConfigured), errors.Is(err, payment.ErrNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, ErrPaymentNotFound):
		return http.StatusNotFound
	case payment.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, payment.ErrUnknownProvider),
		errors.Is(err, ErrProviderNotConfigured),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrUnidentifiedCallback):
		return err.Error()
	case errors.Is(err, payment.ErrNotConfigured):
		return ErrProviderNotConfigured.Error()
	case payment.IsTransport(err):
		return "payment gateway unavailable"
	default:
		return "internal error"
	}
}
