package mintinghub

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidRate       = errors.New("mintinghub: rate exceeds 100%")
	ErrPeriodTooShort    = errors.New("mintinghub: period too short")
	ErrPositionTooSmall  = errors.New("mintinghub: position value below minimum")
	ErrChallengeNotFound = errors.New("mintinghub: challenge not found")
	ErrInvalidAmount     = errors.New("mintinghub: amount must be positive")
	ErrBidTooLarge       = errors.New("mintinghub: bid exceeds challenge size")

	errNilState = errors.New("mintinghub: state not configured")
	errNotWired = errors.New("mintinghub: collaborators not configured")
)

// BidTooLargeError reports a bid larger than the remaining bond.
type BidTooLargeError struct {
	Tried     *big.Int
	Available *big.Int
}

func (e *BidTooLargeError) Error() string {
	return fmt.Sprintf("%s: tried %s, available %s", ErrBidTooLarge, e.Tried, e.Available)
}

func (e *BidTooLargeError) Is(target error) bool {
	return target == ErrBidTooLarge
}
