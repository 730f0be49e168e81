package utils

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

var nonDigitRegex = regexp.MustCompile(`[^0-9]+`)

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NilIfEmpty is the inverse of PtrString for nullable columns.
func NilIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func WriteJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, map[string]any{"success": false, "error": message}, code)
}

// NormalizePhoneIL turns local Israeli numbers into the 05XXXXXXXX shape the
// local gateways accept. +972 / 972 prefixes are folded back to a leading 0.
// Anything that does not look like a phone number is returned digits-only.
func NormalizePhoneIL(phone string) string {
	digits := nonDigitRegex.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "972") {
		digits = "0" + strings.TrimPrefix(digits, "972")
	}
	if len(digits) == 9 && !strings.HasPrefix(digits, "0") {
		digits = "0" + digits
	}
	return digits
}
