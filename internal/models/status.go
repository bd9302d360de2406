package models

import (
	"fmt"
	"strings"
)

// PaymentStatus is the payment state of an order
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentComplete PaymentStatus = "complete"
	PaymentFailed   PaymentStatus = "failed"
)

// ParsePaymentStatus accepts the status names and their single-letter codes (P, C, F)
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "p":
		return PaymentPending, nil
	case "complete", "completed", "c":
		return PaymentComplete, nil
	case "failed", "f":
		return PaymentFailed, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidArgument, s)
}

// Terminal reports whether no further transition is allowed
func (s PaymentStatus) Terminal() bool {
	return s == PaymentComplete || s == PaymentFailed
}

// CheckTransition validates a payment status change.
// A terminal order is rejected before the target is looked at;
// pending orders move only to complete or failed.
func CheckTransition(from, to PaymentStatus) error {
	if from != PaymentPending {
		return fmt.Errorf("%w: order payment is already %s", ErrInvalidState, from)
	}
	if to != PaymentComplete && to != PaymentFailed {
		return fmt.Errorf("%w: cannot move an order to %s", ErrInvalidArgument, to)
	}
	return nil
}
