package discount

import "errors"

var (
	ErrNotFound          = errors.New("discount code not found")
	ErrInactive          = errors.New("discount code is inactive")
	ErrNotStarted        = errors.New("discount code is not active yet")
	ErrExpired           = errors.New("discount code has expired")
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
	ErrMinimumNotMet     = errors.New("order subtotal below discount minimum")
)

// IsRejection reports whether err is one of the coupon business rejections
// rather than a storage failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInactive, ErrNotStarted, ErrExpired, ErrUsageLimitReached, ErrMinimumNotMet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
