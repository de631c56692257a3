package core

// core/upload.go — the client upload orchestrator (spec C7): a five-
// stage state machine driving each address from "do we already have a
// register there" through store-cost quoting, payment, and the final
// PUT, with sequential-failure circuit breakers and a per-address
// repayment cap. Stage names, the batch-size default, and every
// threshold below are pinned from the original implementation's
// sn_client uploader (see SPEC_FULL.md §4.7); the state-machine shape
// itself follows the teacher's core/kademlia.go query-state-per-target
// pattern, generalized from a single DHT lookup stage to five upload
// stages per address.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// UploadStage is one step of a single address's upload state machine.
type UploadStage int

const (
	StagePendingGetRegister UploadStage = iota
	StagePendingGetStoreCost
	StagePendingToPay
	StagePendingToUpload
	StageDone
)

func (s UploadStage) String() string {
	switch s {
	case StagePendingGetRegister:
		return "pending_get_register"
	case StagePendingGetStoreCost:
		return "pending_to_get_store_cost"
	case StagePendingToPay:
		return "pending_to_pay"
	case StagePendingToUpload:
		return "pending_to_upload"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Default thresholds, ported from the original implementation.
const (
	DefaultUploadBatchSize               = 16
	DefaultMaxSequentialPaymentFails      = 3
	DefaultMaxSequentialNetworkErrors     = 5
	DefaultFailuresBeforeDifferentPayee   = 3
)

// UploadItem tracks one address's progress through the pipeline.
type UploadItem struct {
	Address NetworkAddress

	mu                     sync.Mutex
	Stage                  UploadStage
	Payee                  PeerID
	Quote                  *PaymentQuote
	Proof                  *ProofOfPayment
	FailuresWithCurPayee   int
	RepaymentCount         int
	Err                    error
}

func (it *UploadItem) setStage(s UploadStage) {
	it.mu.Lock()
	it.Stage = s
	it.mu.Unlock()
}

// UploaderHooks are the network operations the orchestrator drives;
// cmd/client supplies in-process implementations backed by the wallet
// and a local record store, not by a network transport.
type UploaderHooks struct {
	// GetRegister reports whether addr already exists on the network
	// (registers and scratchpads may already be live; re-paying for an
	// existing mutable record is wasted cost).
	GetRegister func(ctx context.Context, addr NetworkAddress) (exists bool, err error)
	// SelectPayee picks a payee for addr, excluding any peer already
	// tried and found uncooperative for this address.
	SelectPayee func(addr NetworkAddress, exclude []PeerID) (PeerID, error)
	// GetStoreCost asks payee for a quote on addr.
	GetStoreCost func(ctx context.Context, addr NetworkAddress, payee PeerID) (*PaymentQuote, error)
	// PayForQuote settles payment for quote and returns the proof to
	// attach to the PUT.
	PayForQuote func(ctx context.Context, quote *PaymentQuote) (*ProofOfPayment, error)
	// PutRecord sends the payment-bearing record body for addr to the
	// network.
	PutRecord func(ctx context.Context, addr NetworkAddress, proof *ProofOfPayment) error
}

// Uploader drives a batch of UploadItems through the five-stage pipeline,
// bounded to BatchSize concurrent in-flight items, with the two circuit
// breakers and repayment cap from the original spec.
type Uploader struct {
	Hooks      UploaderHooks
	PaymentMap *PaymentMap

	BatchSize                    int
	MaxSequentialNetworkErrors   int
	MaxSequentialPaymentFails    int
	FailuresBeforeDifferentPayee int
	MaxRepaymentsPerAddress      int

	sequentialNetworkErrors int64
	sequentialPaymentFails  int64
}

// NewUploader builds an uploader with the original implementation's
// default thresholds; callers may override any field before calling Run.
func NewUploader(hooks UploaderHooks, pm *PaymentMap) *Uploader {
	return &Uploader{
		Hooks:                        hooks,
		PaymentMap:                   pm,
		BatchSize:                    DefaultUploadBatchSize,
		MaxSequentialNetworkErrors:   DefaultMaxSequentialNetworkErrors,
		MaxSequentialPaymentFails:    DefaultMaxSequentialPaymentFails,
		FailuresBeforeDifferentPayee: DefaultFailuresBeforeDifferentPayee,
		MaxRepaymentsPerAddress:      3,
	}
}

// Run drives every item to StageDone or to a terminal error, processing
// at most BatchSize items concurrently. It stops the whole batch as soon
// as either circuit breaker trips, since both indicate a condition no
// amount of per-item retrying will fix (the network or the payer's
// ability to pay, not the specific address).
func (u *Uploader) Run(ctx context.Context, items []*UploadItem) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gate := make(chan struct{}, u.BatchSize)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

launch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break launch
		case gate <- struct{}{}:
		}
		wg.Add(1)
		go func(it *UploadItem) {
			defer wg.Done()
			defer func() { <-gate }()
			if err := u.drive(ctx, it); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				errMu.Unlock()
			}
		}(item)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// drive steps a single item through every stage until done or a
// terminal error.
func (u *Uploader) drive(ctx context.Context, item *UploadItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item.mu.Lock()
		stage := item.Stage
		item.mu.Unlock()

		switch stage {
		case StagePendingGetRegister:
			if u.Hooks.GetRegister != nil {
				exists, err := u.Hooks.GetRegister(ctx, item.Address)
				if err != nil {
					if trip := u.noteNetworkError(); trip {
						return ErrSequentialNetworkErrors
					}
					continue
				}
				u.resetNetworkErrors()
				if exists {
					item.setStage(StageDone)
					continue
				}
			}
			item.setStage(StagePendingGetStoreCost)

		case StagePendingGetStoreCost:
			if item.Payee == "" {
				payee, err := u.Hooks.SelectPayee(item.Address, nil)
				if err != nil {
					return fmt.Errorf("select payee: %w", err)
				}
				item.Payee = payee
			}
			// A GetStoreCost failure is a plain network hiccup — it only
			// feeds the global network-error breaker and retries against
			// the same payee. Payee-switching is reserved for repeated
			// PutRecord failures (StagePendingToUpload below).
			quote, err := u.Hooks.GetStoreCost(ctx, item.Address, item.Payee)
			if err != nil {
				if trip := u.noteNetworkError(); trip {
					return ErrSequentialNetworkErrors
				}
				continue
			}
			u.resetNetworkErrors()
			item.mu.Lock()
			item.Quote = quote
			item.mu.Unlock()
			item.setStage(StagePendingToPay)

		case StagePendingToPay:
			item.mu.Lock()
			quote := item.Quote
			item.mu.Unlock()

			due := u.PaymentMap.AdjustPaymentMap(item.Address.Name, quote.QuotedCost)
			if due == 0 {
				item.mu.Lock()
				item.RepaymentCount++
				repayments := item.RepaymentCount
				item.mu.Unlock()
				if repayments > u.MaxRepaymentsPerAddress {
					return &MaximumRepaymentsReachedError{Address: item.Address.Name}
				}
			}
			proof, err := u.Hooks.PayForQuote(ctx, quote)
			if err != nil {
				if trip := u.notePaymentFailure(); trip {
					return ErrSequentialUploadPaymentErr
				}
				continue
			}
			u.resetPaymentFailures()
			item.mu.Lock()
			item.Proof = proof
			item.mu.Unlock()
			item.setStage(StagePendingToUpload)

		case StagePendingToUpload:
			item.mu.Lock()
			proof := item.Proof
			item.mu.Unlock()
			if err := u.Hooks.PutRecord(ctx, item.Address, proof); err != nil {
				if trip := u.noteNetworkError(); trip {
					return ErrSequentialNetworkErrors
				}
				// Upload failure: increment the per-item counter. After
				// FailuresBeforeDifferentPayee, re-enqueue to
				// StagePendingGetStoreCost against a newly selected payee
				// instead of retrying the same one forever in place.
				item.mu.Lock()
				item.FailuresWithCurPayee++
				tooManyWithPayee := item.FailuresWithCurPayee >= u.FailuresBeforeDifferentPayee
				item.mu.Unlock()
				if tooManyWithPayee {
					newPayee, serr := u.Hooks.SelectPayee(item.Address, []PeerID{item.Payee})
					if serr != nil {
						return fmt.Errorf("select alternate payee: %w", serr)
					}
					item.mu.Lock()
					item.Payee = newPayee
					item.FailuresWithCurPayee = 0
					item.Quote = nil
					item.Proof = nil
					item.mu.Unlock()
					item.setStage(StagePendingGetStoreCost)
				}
				continue
			}
			u.resetNetworkErrors()
			item.setStage(StageDone)

		case StageDone:
			return nil
		}
	}
}

func (u *Uploader) noteNetworkError() (tripped bool) {
	n := atomic.AddInt64(&u.sequentialNetworkErrors, 1)
	return int(n) >= u.MaxSequentialNetworkErrors
}

func (u *Uploader) resetNetworkErrors() { atomic.StoreInt64(&u.sequentialNetworkErrors, 0) }

func (u *Uploader) notePaymentFailure() (tripped bool) {
	n := atomic.AddInt64(&u.sequentialPaymentFails, 1)
	return int(n) >= u.MaxSequentialPaymentFails
}

func (u *Uploader) resetPaymentFailures() { atomic.StoreInt64(&u.sequentialPaymentFails, 0) }
