package domain

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrInvalidSort    = errors.New("invalid sort")
	ErrInvalidPage    = errors.New("invalid page")
	ErrInvalidInvoice = errors.New("invalid invoice")
	ErrInvoicePaid    = errors.New("invoice is paid")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)

func ValidateKey(key string) error {
	if key == "" || !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
