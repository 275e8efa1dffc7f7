package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidOption        = errors.New(`invalid option: must be "yes" or "no"`)
	ErrInvalidAmount        = errors.New("invalid amount: must be a positive number")
	ErrMissingCredential    = errors.New("sender address and wallet secret are required")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrAlreadyResolved      = errors.New("prediction already resolved")
	ErrResolutionInProgress = errors.New("resolution already in progress")
	ErrInvalidOutcome       = errors.New(`invalid outcome: must be "yes" or "no"`)
	ErrNoWinners            = errors.New("no votes found for the winning option")
	ErrEmptyPool            = errors.New("no valid votes with positive amounts found")
	ErrRewardTooSmall       = errors.New("calculated reward per winner is below the minimum transferable unit")
	ErrInsufficientBalance  = errors.New("insufficient treasury balance for payout")
	ErrDuplicateTransfer    = errors.New("transfer already recorded")
	ErrInvariant            = errors.New("internal invariant violation")
	ErrLockHeld             = errors.New("lock already held")
	ErrWSDisconnect         = errors.New("websocket disconnected")
)
