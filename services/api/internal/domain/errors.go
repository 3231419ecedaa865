package domain

import "errors"

var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrListingNameRequired = errors.New("listing name required")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrUnsupportedToken    = errors.New("unsupported payment token")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrAmountInUse         = errors.New("unique amount already in use")
	ErrCertificateRevoked  = errors.New("certificate already revoked")
	ErrInvalidID           = errors.New("invalid id")
)
