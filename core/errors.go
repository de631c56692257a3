package core

// core/errors.go — the error taxonomy the rest of the package wraps with
// fmt.Errorf("...: %w", err). Mirrors the teacher's package-level Err*
// sentinel convention (core/storage.go's ErrInvalidState, core/cross_chain.go's
// ErrUnauthorized) rather than a bespoke error-code enum.

import (
	"errors"
	"fmt"
)

// Parse / format errors — hard reject, never persisted or replicated.
var (
	ErrInvalidHeader     = errors.New("invalid record header")
	ErrDeserialize       = errors.New("failed to deserialize record body")
	ErrRecordKeyMismatch = errors.New("record key does not match derived address")
)

// Payment errors.
var (
	ErrInvalidQuote            = errors.New("invalid payment quote")
	ErrQuoteExpired            = errors.New("payment quote has expired")
	ErrPayeesOutOfRange        = errors.New("quote payee is not in the local close-group view")
	ErrInsufficientPayment     = errors.New("payment does not cover quoted cost plus royalty")
	ErrReusedPayment           = errors.New("payment has already been deposited")
	ErrOnChainVerifyFailed     = errors.New("on-chain payment verification failed")
	ErrNoPaymentToOurNode      = errors.New("quote does not list this node as a payee")
	ErrNoNetworkRoyaltiesPaid  = errors.New("payment does not cover network royalties")
	ErrUnexpectedRecordPayment = errors.New("replicated record unexpectedly carries a payment")
)

// Body validation errors.
var (
	ErrInvalidScratchpadSignature   = errors.New("scratchpad signature does not verify against owner key")
	ErrIgnoringOutdatedScratchpad   = errors.New("ignoring outdated scratchpad put")
	ErrAccessDenied                 = errors.New("writer is not permitted to write this register")
	ErrEntryTooBig                  = errors.New("register entry exceeds the maximum entry size")
	ErrTooManyEntries               = errors.New("register already holds the maximum number of entries")
	ErrContentBranchDetected        = errors.New("register has multiple heads; supply explicit parents or merge branches")
	ErrInvalidRequest               = errors.New("invalid request")
	ErrInvalidSignature              = errors.New("signature does not verify")
)

// Storage errors.
var ErrTerminateNode = errors.New("too many consecutive local write failures; node must terminate")

// Concurrency / control-flow errors.
var (
	ErrInternalTaskChannelDropped  = errors.New("internal task channel was dropped")
	ErrUploadStateTrackerIsEmpty   = errors.New("upload state tracker has no items to process")
	ErrSequentialNetworkErrors     = errors.New("too many consecutive network errors")
	ErrSequentialUploadPaymentErr  = errors.New("too many consecutive payment failures")
)

// MaximumRepaymentsReachedError carries the offending address.
type MaximumRepaymentsReachedError struct {
	Address Name
}

func (e *MaximumRepaymentsReachedError) Error() string {
	return fmt.Sprintf("maximum repayments reached for address %x", e.Address[:])
}

// Is allows errors.Is(err, ErrMaximumRepaymentsReached) style checks against
// the sentinel below, regardless of the carried address.
func (e *MaximumRepaymentsReachedError) Is(target error) bool {
	return target == ErrMaximumRepaymentsReached
}

// ErrMaximumRepaymentsReached is the sentinel matched by
// MaximumRepaymentsReachedError.Is — use errors.Is to detect this case
// without caring about the specific address.
var ErrMaximumRepaymentsReached = errors.New("maximum repayments reached")

// ErrNotFound is returned by stores and wallets when a key has no value.
var ErrNotFound = errors.New("not found")
