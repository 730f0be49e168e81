package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// SanitizeError turns a raw storage/driver error into an error code and a
// customer-safe localized message. The raw error itself is never returned.
func SanitizeError(err error, locale string) (code, msg string) {
	if err == nil {
		return "", ""
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return CodeDuplicate, message(locale, msgDuplicate)
		case "23503": // foreign_key_violation
			return CodeReference, message(locale, msgReference)
		case "57014": // query_canceled
			return CodeTimeout, message(locale, msgTimeout)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, message(locale, msgTimeout)
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "duplicate key"), strings.Contains(s, "unique constraint"):
		return CodeDuplicate, message(locale, msgDuplicate)
	case strings.Contains(s, "foreign key"), strings.Contains(s, "violates foreign"):
		return CodeReference, message(locale, msgReference)
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"), strings.Contains(s, "deadline exceeded"):
		return CodeTimeout, message(locale, msgTimeout)
	}
	return CodeInternal, message(locale, msgGeneric)
}
