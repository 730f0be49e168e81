package store

import "errors"

var ErrStoreNotFound = errors.New("store not found")

type Store struct {
	ID            string
	Slug          string
	Name          string
	CustomDomain  *string
	Currency      string
	DefaultLocale string
	IsActive      bool
}

// HasCustomDomain reports whether storefront URLs should use the store's own
// domain instead of the platform path prefix.
func (s *Store) HasCustomDomain() bool {
	return s.CustomDomain != nil && *s.CustomDomain != ""
}
