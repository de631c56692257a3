package core

// core/payment.go — payment quoting and verification (spec C3). Grounded
// on the teacher's core/cross_chain.go bridge-proof pattern (a typed
// request, a signature over its canonical bytes, and a pluggable verifier
// interface) and core/security.go's BLS signer. The on-chain leg is
// consumed through OnChainVerifier so the storage core never imports an
// EVM client directly; cmd/node wires the grpc-backed implementation.

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"lukechampine.com/blake3"
)

// PeerID identifies a node in the close group. Aliased directly to
// libp2p's peer identity type rather than re-encoding it, since every
// transport-facing component (replication, uploader) already speaks in
// libp2p host/peer terms.
type PeerID = peer.ID

// NanoTokens is the network's native token unit, matching the teacher's
// convention of keeping on-chain amounts as an unsigned integer rather
// than a floating type.
type NanoTokens uint64

// QuotingMetrics summarizes the local node's state at quote time; it
// feeds into dynamic-pricing decisions and is echoed back to the payer
// for auditability, not interpreted by this package itself.
type QuotingMetrics struct {
	RecordCount    uint64
	MaxRecords     uint64
	ReceivedPayments uint64
	LiveTime       time.Duration
}

// PaymentQuote is the signed price offer a node hands to a payer before
// it will accept a chunk's payment-bearing variant.
type PaymentQuote struct {
	Address        Name
	RecordKind     RecordKind
	Payee          PeerID
	QuotedCost     NanoTokens
	Metrics        QuotingMetrics
	Timestamp      time.Time
	Expiry         time.Duration
	PayeePublicKey []byte // BLS public key bytes of Payee
	Signature      []byte // BLS signature over CanonicalBytes()
}

// CanonicalBytes returns the exact byte sequence the payee signs — every
// field that participates in the signature, in a fixed order, joined
// with length-delimited blake3 domain separation so no two distinct
// quotes can collide onto the same signed message.
func (q *PaymentQuote) CanonicalBytes() []byte {
	h := blake3.New(32, nil)
	writeField := func(b []byte) {
		var n [8]byte
		for i := 0; i < 8; i++ {
			n[i] = byte(len(b) >> (8 * i))
		}
		h.Write(n[:])
		h.Write(b)
	}
	h.Write(q.Address[:])
	h.Write([]byte{byte(q.RecordKind)})
	writeField([]byte(q.Payee))
	var amt [8]byte
	for i := 0; i < 8; i++ {
		amt[i] = byte(q.QuotedCost >> (8 * i))
	}
	h.Write(amt[:])
	ts, _ := q.Timestamp.MarshalBinary()
	writeField(ts)
	writeField([]byte(q.Expiry.String()))
	return h.Sum(nil)
}

// QuoteHash is the digest identifying this quote on-chain; the payer
// references it in its transfer so the verifier can match proof to quote.
func (q *PaymentQuote) QuoteHash() [32]byte {
	return blake3.Sum256(q.CanonicalBytes())
}

// HasExpired reports whether the quote's lifetime has elapsed as of now.
func (q *PaymentQuote) HasExpired(now time.Time) bool {
	return now.After(q.Timestamp.Add(q.Expiry))
}

// PaymentVerifier holds everything one node needs to create and check
// quotes: its own signing key, its own identity, the configured royalty
// rate, and the on-chain leg.
type PaymentVerifier struct {
	Self            PeerID
	SigningKey      *SecretKey
	RoyaltyBasisPts uint32 // e.g. 1000 == 10%
	QuoteLifetime   time.Duration
	OnChain         OnChainVerifier
	Observer        Observer
}

// NewPaymentVerifier constructs a verifier with a NopObserver if obs is nil.
func NewPaymentVerifier(self PeerID, sk *SecretKey, royaltyBasisPts uint32, lifetime time.Duration, onChain OnChainVerifier, obs Observer) *PaymentVerifier {
	return &PaymentVerifier{
		Self:            self,
		SigningKey:      sk,
		RoyaltyBasisPts: royaltyBasisPts,
		QuoteLifetime:   lifetime,
		OnChain:         onChain,
		Observer:        observerOrNop(obs),
	}
}

// CreateQuote prices a record and signs the result under this node's key.
func (v *PaymentVerifier) CreateQuote(addr Name, kind RecordKind, localCost NanoTokens, metrics QuotingMetrics) *PaymentQuote {
	q := &PaymentQuote{
		Address:        addr,
		RecordKind:     kind,
		Payee:          v.Self,
		QuotedCost:     localCost,
		Metrics:        metrics,
		Timestamp:      time.Now().UTC(),
		Expiry:         v.QuoteLifetime,
		PayeePublicKey: v.SigningKey.Public().Bytes(),
	}
	q.Signature = v.SigningKey.Sign(q.CanonicalBytes()).Bytes()
	return q
}

// VerifyForUs checks that a quote actually names this node as payee and
// carries a valid signature from the public key it embeds.
func (v *PaymentVerifier) VerifyForUs(q *PaymentQuote) error {
	if q.Payee != v.Self {
		return ErrNoPaymentToOurNode
	}
	pk, err := ParsePublicKey(q.PayeePublicKey)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(q.Signature)
	if err != nil {
		return err
	}
	if !Verify(pk, sig, q.CanonicalBytes()) {
		return ErrInvalidSignature
	}
	return nil
}

// RequiredPayment returns the minimum amount a transfer to this quote's
// payee must carry: the quoted cost plus the configured royalty share.
func (v *PaymentVerifier) RequiredPayment(q *PaymentQuote) NanoTokens {
	royalty := (uint64(q.QuotedCost) * uint64(v.RoyaltyBasisPts)) / 10000
	return NanoTokens(uint64(q.QuotedCost) + royalty)
}

// VerifyPayeesInCloseRange rejects quotes naming a payee outside the
// caller's current view of the address's close group — a stale or
// maliciously substituted payee should never pass this check.
func VerifyPayeesInCloseRange(q *PaymentQuote, localCloseGroup []PeerID) error {
	for _, p := range localCloseGroup {
		if p == q.Payee {
			return nil
		}
	}
	return fmt.Errorf("%w: payee %s", ErrPayeesOutOfRange, q.Payee)
}

// encodeInto appends this quote's wire representation to e, so every
// *WithPayment record can carry its full quotes instead of just their
// hashes — a verifier needs the quote itself (payee, cost, signature) to
// check VerifyForUs/HasExpired/VerifyPayeesInCloseRange, and a bare hash
// cannot be reversed back into one.
func (q *PaymentQuote) encodeInto(e *encoder) {
	e.writeBytes(q.Address[:])
	e.writeBytes([]byte{byte(q.RecordKind)})
	e.writeBytes([]byte(q.Payee))
	e.writeUint64(uint64(q.QuotedCost))
	e.writeUint64(q.Metrics.RecordCount)
	e.writeUint64(q.Metrics.MaxRecords)
	e.writeUint64(q.Metrics.ReceivedPayments)
	e.writeUint64(uint64(q.Metrics.LiveTime))
	ts, _ := q.Timestamp.MarshalBinary()
	e.writeBytes(ts)
	e.writeUint64(uint64(q.Expiry))
	e.writeBytes(q.PayeePublicKey)
	e.writeBytes(q.Signature)
}

// decodeQuote is encodeInto's exact inverse.
func decodeQuote(d *decoder) (*PaymentQuote, error) {
	addr, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	if len(addr) != 32 {
		return nil, fmt.Errorf("%w: quote address must be 32 bytes", ErrDeserialize)
	}
	kindByte, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	if len(kindByte) != 1 {
		return nil, fmt.Errorf("%w: quote kind must be 1 byte", ErrDeserialize)
	}
	kind, err := recordKindFromByte(kindByte[0])
	if err != nil {
		return nil, err
	}
	payeeBytes, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	cost, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	recordCount, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	maxRecords, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	receivedPayments, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	liveTime, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	tsBytes, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	var ts time.Time
	if err := ts.UnmarshalBinary(tsBytes); err != nil {
		return nil, fmt.Errorf("%w: quote timestamp: %v", ErrDeserialize, err)
	}
	expiry, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	pubkey, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	sig, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	var name Name
	copy(name[:], addr)
	return &PaymentQuote{
		Address:    name,
		RecordKind: kind,
		Payee:      PeerID(payeeBytes),
		QuotedCost: NanoTokens(cost),
		Metrics: QuotingMetrics{
			RecordCount:      recordCount,
			MaxRecords:       maxRecords,
			ReceivedPayments: receivedPayments,
			LiveTime:         time.Duration(liveTime),
		},
		Timestamp:      ts,
		Expiry:         time.Duration(expiry),
		PayeePublicKey: pubkey,
		Signature:      sig,
	}, nil
}

// ProofOfPayment is what a payer attaches to a *WithPayment record: the
// on-chain transfer digest plus every quote (not just its hash) it is
// meant to settle, so the receiving node can verify each quote on its own
// terms rather than trusting an opaque digest.
type ProofOfPayment struct {
	TransferDigest [32]byte
	QuoteHashes    [][32]byte
	Quotes         []*PaymentQuote
}

// encodeInto appends this proof's wire representation to e.
func (p *ProofOfPayment) encodeInto(e *encoder) {
	e.writeBytes(p.TransferDigest[:])
	e.writeUint64(uint64(len(p.QuoteHashes)))
	for _, h := range p.QuoteHashes {
		e.writeBytes(h[:])
	}
	e.writeUint64(uint64(len(p.Quotes)))
	for _, q := range p.Quotes {
		q.encodeInto(e)
	}
}

// decodeProofOfPayment is encodeInto's exact inverse.
func decodeProofOfPayment(d *decoder) (ProofOfPayment, error) {
	digest, err := d.readBytes()
	if err != nil {
		return ProofOfPayment{}, err
	}
	if len(digest) != 32 {
		return ProofOfPayment{}, fmt.Errorf("%w: transfer digest must be 32 bytes", ErrDeserialize)
	}
	hashCount, err := d.readUint64()
	if err != nil {
		return ProofOfPayment{}, err
	}
	hashes := make([][32]byte, 0, hashCount)
	for i := uint64(0); i < hashCount; i++ {
		h, err := d.readBytes()
		if err != nil {
			return ProofOfPayment{}, err
		}
		if len(h) != 32 {
			return ProofOfPayment{}, fmt.Errorf("%w: quote hash must be 32 bytes", ErrDeserialize)
		}
		var arr [32]byte
		copy(arr[:], h)
		hashes = append(hashes, arr)
	}
	quoteCount, err := d.readUint64()
	if err != nil {
		return ProofOfPayment{}, err
	}
	quotes := make([]*PaymentQuote, 0, quoteCount)
	for i := uint64(0); i < quoteCount; i++ {
		q, err := decodeQuote(d)
		if err != nil {
			return ProofOfPayment{}, err
		}
		quotes = append(quotes, q)
	}
	var digestArr [32]byte
	copy(digestArr[:], digest)
	return ProofOfPayment{TransferDigest: digestArr, QuoteHashes: hashes, Quotes: quotes}, nil
}

// CoversQuote reports whether this proof references the given quote.
func (p *ProofOfPayment) CoversQuote(q *PaymentQuote) bool {
	want := q.QuoteHash()
	for _, h := range p.QuoteHashes {
		if h == want {
			return true
		}
	}
	return false
}

// OnChainVerifier checks a transfer digest against the chain and reports
// the amount it actually paid to a given quote hash. Implementations
// live outside core (cmd/node wires a grpc client); core only depends on
// this interface so it stays testable without a live chain.
type OnChainVerifier interface {
	Verify(ctx context.Context, digest [32]byte, quoteHashes [][32]byte) (map[[32]byte]NanoTokens, error)
}

// VerifyOnChain confirms a proof actually transferred at least the
// required amount to this node's quote, deposits the observed reward via
// the verifier's Observer, and returns the verified amount.
func (v *PaymentVerifier) VerifyOnChain(ctx context.Context, q *PaymentQuote, proof *ProofOfPayment) (NanoTokens, error) {
	if !proof.CoversQuote(q) {
		return 0, fmt.Errorf("%w: proof does not reference quote %x", ErrInvalidQuote, q.QuoteHash())
	}
	amounts, err := v.OnChain.Verify(ctx, proof.TransferDigest, proof.QuoteHashes)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOnChainVerifyFailed, err)
	}
	paid := amounts[q.QuoteHash()]
	required := v.RequiredPayment(q)
	if paid < required {
		return 0, fmt.Errorf("%w: paid %d, required %d", ErrInsufficientPayment, paid, required)
	}
	v.Observer.RewardReceived(paid, NetworkAddress{Kind: q.RecordKind, Name: q.Address})
	return paid, nil
}
