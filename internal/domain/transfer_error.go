package domain

import (
	"context"
	"errors"
	"fmt"
)

// TransferError is a ledger-level transfer rejection carrying the engine
// result code. Retryable mirrors the ledger's code classes: tel/ter codes
// may succeed on resubmission, tem/tef/tec codes are final.
type TransferError struct {
	Code   string
	Detail string

	Retryable bool
}

func (e *TransferError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transfer failed with code %s: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("transfer failed with code %s", e.Code)
}

// Unwrap lets errors.Is(err, ErrTransferFailed) match.
func (e *TransferError) Unwrap() error { return ErrTransferFailed }

// RetryableTransfer reports whether a transfer error is worth another
// submission attempt. Timeouts waiting for finality are retryable; final
// rejection codes are not.
func RetryableTransfer(err error) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
