package main

// cmd/client/hooks.go wires core.UploaderHooks for a single local file
// upload. The actual close-group request/response protocol (dialing a
// libp2p host.Host and exchanging quote/PUT messages over a stream) is
// the transport layer SPEC_FULL.md scopes out of this module; these
// hooks stand in for it with an in-process quote-and-store round trip so
// the orchestrator's state machine and payment logic can be exercised
// end to end without a live network.

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"closegroup/core"
)

func buildHooks(job *core.ChunkJob, completed map[core.Name]bool, engine *core.ChunkingEngine, wallet *core.HDWallet, log *logrus.Logger) core.UploaderHooks {
	localPeer := peer.ID("local-loopback-node")
	nodeKey := core.NewSecretKeyFromSeed([]byte("loopback-node-key"))
	verifier := core.NewPaymentVerifier(localPeer, nodeKey, 1000, 5*time.Minute, loopbackOnChain{}, nil)
	backend := core.NewInMemoryStore()
	store := core.NewRecordStore(backend, verifier, nil)

	return core.UploaderHooks{
		GetRegister: func(ctx context.Context, addr core.NetworkAddress) (bool, error) {
			return completed[addr.Name], nil
		},
		SelectPayee: func(addr core.NetworkAddress, exclude []core.PeerID) (core.PeerID, error) {
			return localPeer, nil
		},
		GetStoreCost: func(ctx context.Context, addr core.NetworkAddress, payee core.PeerID) (*core.PaymentQuote, error) {
			body, err := job.Body(addr.Name)
			if err != nil {
				return nil, err
			}
			localCost := core.NanoTokens(len(body)) // flat per-byte pricing placeholder
			return verifier.CreateQuote(addr.Name, core.KindChunk, localCost, core.QuotingMetrics{}), nil
		},
		PayForQuote: func(ctx context.Context, quote *core.PaymentQuote) (*core.ProofOfPayment, error) {
			required := verifier.RequiredPayment(quote)
			qh := quote.QuoteHash()
			req, err := wallet.LocalSend(required, [][32]byte{qh}, digestFor(quote))
			if err != nil {
				return nil, err
			}
			return &core.ProofOfPayment{
				TransferDigest: req.TransferDigest,
				QuoteHashes:    req.QuoteHashes,
				Quotes:         []*core.PaymentQuote{quote},
			}, nil
		},
		PutRecord: func(ctx context.Context, addr core.NetworkAddress, proof *core.ProofOfPayment) error {
			body, err := job.Body(addr.Name)
			if err != nil {
				return err
			}
			rec := &core.ChunkWithPayment{Chunk: core.Chunk{Value: body}, Proof: *proof}
			key := core.ToRecordKey(core.NetworkAddress{Kind: core.KindChunk, Name: addr.Name})
			if err := store.ValidateAndStoreClientPut(ctx, key, rec.Encode(), []core.PeerID{localPeer}); err != nil {
				return err
			}
			if err := wallet.ConfirmSpend(proof.TransferDigest); err != nil {
				log.WithError(err).Warn("could not clear confirmed spend record")
			}
			return engine.MarkCompleted(job.PathKey, addr.Name)
		},
	}
}

// digestFor derives a pseudo transfer digest for a quote in the absence
// of a live chain to mint a real transaction hash against.
func digestFor(q *core.PaymentQuote) [32]byte {
	return q.QuoteHash()
}

// loopbackOnChain reports a fixed amount of 1<<32 paid for every quote
// hash, more than any quote requires, since this loopback path never
// actually submits anything on-chain.
type loopbackOnChain struct{}

func (loopbackOnChain) Verify(ctx context.Context, digest [32]byte, quoteHashes [][32]byte) (map[[32]byte]core.NanoTokens, error) {
	out := make(map[[32]byte]core.NanoTokens, len(quoteHashes))
	for _, h := range quoteHashes {
		out[h] = 1 << 32 // effectively unlimited for the loopback demo path
	}
	return out, nil
}
