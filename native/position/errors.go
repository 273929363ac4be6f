package position

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNotOwner                   = errors.New("position: caller is not the owner")
	ErrNotHub                     = errors.New("position: caller is not the hub")
	ErrHot                        = errors.New("position: cooldown active")
	ErrExpired                    = errors.New("position: expired")
	ErrTooLate                    = errors.New("position: too late to deny")
	ErrChallenged                 = errors.New("position: challenge pending")
	ErrInsufficientCollateral     = errors.New("position: insufficient collateral")
	ErrLimitExceeded              = errors.New("position: limit exceeded")
	ErrRepaidTooMuch              = errors.New("position: repaid too much")
	ErrChallengeTooSmall          = errors.New("position: challenge too small")
	ErrChallengeExceedsCollateral = errors.New("position: challenge exceeds collateral")
	ErrUnexpectedPrice            = errors.New("position: unexpected price")
	ErrInvalidPos                 = errors.New("position: invalid parent position")
	ErrNotPosition                = errors.New("position: not a registered position")
	ErrPositionExists             = errors.New("position: address already in use")
	ErrPriceTooHigh               = errors.New("position: price exceeds ceiling")
	ErrInvalidExpiration          = errors.New("position: invalid expiration")
	ErrNotExpired                 = errors.New("position: not expired")
	ErrClosed                     = errors.New("position: closed or denied")
	ErrNotQualified               = errors.New("position: objector not qualified")
	ErrInvalidAmount              = errors.New("position: amount must be positive")
	ErrInvalidOwner               = errors.New("position: owner must be set")

	errNilState  = errors.New("position engine: state not configured")
	errNilLedger = errors.New("position engine: ledgers not configured")
)

// InsufficientCollateralError reports the value a mutation needed against the
// value the collateral provides.
type InsufficientCollateralError struct {
	Needed    *big.Int
	Available *big.Int
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("%s: needed %s, available %s", ErrInsufficientCollateral, e.Needed, e.Available)
}

func (e *InsufficientCollateralError) Is(target error) bool {
	return target == ErrInsufficientCollateral
}

// LimitExceededError reports a mint that does not fit the family pool.
type LimitExceededError struct {
	Tried     *big.Int
	Available *big.Int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: tried %s, available %s", ErrLimitExceeded, e.Tried, e.Available)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// RepaidTooMuchError reports the debt a rejected repayment would have
// overshot by.
type RepaidTooMuchError struct {
	Excess *big.Int
}

func (e *RepaidTooMuchError) Error() string {
	return fmt.Sprintf("%s: excess %s", ErrRepaidTooMuch, e.Excess)
}

func (e *RepaidTooMuchError) Is(target error) bool {
	return target == ErrRepaidTooMuch
}

// UnexpectedPriceError is returned when a challenge was submitted against a
// stale price.
type UnexpectedPriceError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *UnexpectedPriceError) Error() string {
	return fmt.Sprintf("%s: expected %s, actual %s", ErrUnexpectedPrice, e.Expected, e.Actual)
}

func (e *UnexpectedPriceError) Is(target error) bool {
	return target == ErrUnexpectedPrice
}
