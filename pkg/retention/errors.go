package retention

import "errors"

var (
	ErrOfferNotFound        = errors.New("retention: offer not found")
	ErrOfferExpired         = errors.New("retention: offer expired")
	ErrOfferAlreadyConsumed = errors.New("retention: offer already consumed")
	ErrStatusConflict       = errors.New("retention: offer status changed concurrently")
	ErrUnknownEffect        = errors.New("retention: unknown offer effect")
	ErrInvalidEffect        = errors.New("retention: invalid offer effect")
)
