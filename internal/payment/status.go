package payment

import "strings"

// StatusTable maps a provider's own status codes to canonical statuses.
type StatusTable map[string]TransactionStatus

// Resolve looks up code case-insensitively. Anything the table does not know
// resolves to StatusFailed.
func (t StatusTable) Resolve(code string) TransactionStatus {
	code = strings.TrimSpace(code)
	if s, ok := t[code]; ok {
		return s
	}
	if s, ok := t[strings.ToUpper(code)]; ok {
		return s
	}
	if s, ok := t[strings.ToLower(code)]; ok {
		return s
	}
	return StatusFailed
}
