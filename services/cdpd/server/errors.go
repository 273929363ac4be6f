package server

import (
	"errors"
	"net/http"

	"cdpchain/native/bank"
	"cdpchain/native/common"
	"cdpchain/native/governance"
	"cdpchain/native/mintinghub"
	"cdpchain/native/position"
	"cdpchain/native/roller"
	"cdpchain/native/stable"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorClass struct {
	status int
	code   string
}

var errorClasses = []struct {
	targets []error
	class   errorClass
}{
	{[]error{errBadRequest, position.ErrInvalidAmount, mintinghub.ErrInvalidAmount, roller.ErrInvalidAmount,
		bank.ErrInvalidAmount, stable.ErrInvalidAmount, stable.ErrInvalidRate, mintinghub.ErrInvalidRate,
		mintinghub.ErrPeriodTooShort, mintinghub.ErrPositionTooSmall, mintinghub.ErrBidTooLarge,
		position.ErrInvalidExpiration, position.ErrInvalidPos, position.ErrPriceTooHigh, position.ErrInvalidOwner,
		position.ErrChallengeTooSmall, position.ErrChallengeExceedsCollateral, position.ErrRepaidTooMuch,
		roller.ErrCollateralMismatch, governance.ErrInvalidHelper},
		errorClass{http.StatusBadRequest, "invalid_argument"}},
	{[]error{position.ErrNotOwner, position.ErrNotHub, position.ErrNotQualified, roller.ErrNotOwner,
		governance.ErrNotQualified},
		errorClass{http.StatusForbidden, "permission_denied"}},
	{[]error{position.ErrNotPosition, mintinghub.ErrChallengeNotFound, bank.ErrUnknownAsset},
		errorClass{http.StatusNotFound, "not_found"}},
	{[]error{position.ErrHot, position.ErrExpired, position.ErrTooLate, position.ErrChallenged,
		position.ErrNotExpired, position.ErrClosed, position.ErrPositionExists, position.ErrUnexpectedPrice},
		errorClass{http.StatusConflict, "failed_precondition"}},
	{[]error{position.ErrInsufficientCollateral, position.ErrLimitExceeded, bank.ErrInsufficientBalance},
		errorClass{http.StatusUnprocessableEntity, "insufficient_funds"}},
	{[]error{common.ErrModulePaused},
		errorClass{http.StatusServiceUnavailable, "paused"}},
}

// classify maps an engine error to its HTTP status and stable code.
func classify(err error) errorClass {
	for _, entry := range errorClasses {
		for _, target := range entry.targets {
			if errors.Is(err, target) {
				return entry.class
			}
		}
	}
	return errorClass{http.StatusInternalServerError, "internal"}
}
