// Package xerr defines the distinguished error kinds used across the
// engine, mirroring the original source's Error enum: a handful of
// zero-payload sentinels plus a few payload-carrying struct errors matched
// with errors.As.
package xerr

import "fmt"

// Sentinel errors with no payload.
var (
	ErrAssetNotFound    = fmt.Errorf("asset not tradable")
	ErrFloatStringParse = fmt.Errorf("failed to parse numeric string from exchange")
)

// InsufficientFreeMargin is returned by the Margin Book when an allocation
// request exceeds free collateral.
type InsufficientFreeMargin struct {
	Free float64
}

func (e *InsufficientFreeMargin) Error() string {
	return fmt.Sprintf("insufficient free margin: %.8f available", e.Free)
}

// GenericParse wraps a fill/message that could not be reconciled into a
// consistent batch (e.g. a mixed open/close fill-type batch under one oid).
type GenericParse struct {
	Msg string
}

func (e *GenericParse) Error() string { return fmt.Sprintf("parse error: %s", e.Msg) }

// ExecutionFailure wraps an exchange-reported order/cancel rejection.
type ExecutionFailure struct {
	Msg string
}

func (e *ExecutionFailure) Error() string { return fmt.Sprintf("execution failure: %s", e.Msg) }

// Custom is a catch-all non-fatal condition, e.g. a fill batch whose legs
// disagree on oid, coin or side. Callers should treat Custom as
// informational unless documented otherwise at the call site.
type Custom struct {
	Msg string
}

func (e *Custom) Error() string { return e.Msg }
