package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidState   = errors.New("invalid_signature_state")
	ErrLaunchPending  = errors.New("signature_launch_pending")
	ErrConcurrentSend = errors.New("concurrent_signature_send")
	ErrTemplateInUse  = errors.New("template_in_use")
	ErrNoDocument     = errors.New("no_attachable_document")
)

// LaunchPendingError is returned when a transaction was created but its
// launch failed. The order keeps the transaction uuid and the launch can be
// retried without creating a new transaction.
type LaunchPendingError struct {
	OrderID         uint
	TransactionUUID string
	Err             error
}

func (e *LaunchPendingError) Error() string {
	return fmt.Sprintf("order %d: transaction %s created but launch failed: %v", e.OrderID, e.TransactionUUID, e.Err)
}

func (e *LaunchPendingError) Unwrap() error { return e.Err }
