package core

// core/wallet.go — the local spend-side wallet (spec C9). Grounded on
// the teacher's core/wallet.go HD-derivation chain (one child key per
// index, derived from a single master seed) and its on-disk JSON
// persistence under a locked directory; derivation itself uses
// x/crypto/hkdf (HKDF-SHA512) rather than the teacher's hand-rolled HMAC
// chain, and the derived leaf keys feed core/crypto.go's BLS SetHashOf
// instead of the teacher's ed25519.NewKeyFromSeed, since this domain's
// cash notes are BLS-keyed. File locking uses syscall.Flock directly —
// the one component with no suitable third-party replacement in the
// examined corpus.

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

// GenerateMnemonic produces a fresh BIP-39 recovery phrase a new wallet's
// master seed can be derived from, so an operator has something to
// write down instead of a raw seed file.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic validates and expands a recovery phrase into the
// master seed HDWallet derives every note key from.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// CashNote is a single spendable output: a unique per-note BLS public
// key and the amount it carries. Real note provenance (parent transfer,
// dummy genesis proof) is out of scope here — cmd/node's EVM leg is
// where value actually originates; this wallet only tracks local
// notes and their on-chain settlement digests.
type CashNote struct {
	UniquePubkey []byte
	Amount       NanoTokens
	Spent        bool
}

func (c *CashNote) keyHex() string { return hex.EncodeToString(c.UniquePubkey) }

// SpendRequest records a transfer this wallet created but has not yet
// confirmed settled on-chain. RequestID is a local correlation id for
// log lines and resend tracking, distinct from the on-chain digest.
type SpendRequest struct {
	RequestID      string
	TransferDigest [32]byte
	Amount         NanoTokens
	QuoteHashes    [][32]byte
}

// walletDisk is the JSON-serializable snapshot persisted to disk.
type walletDisk struct {
	NextIndex         uint64
	CashNotes         []CashNote
	UnconfirmedSpends []SpendRequest
}

// HDWallet derives spend keys from a single master seed and tracks local
// cash notes and unconfirmed spends, persisted under RootDir.
type HDWallet struct {
	mainSeed []byte
	rootDir  string

	mu                sync.Mutex
	nextIndex         uint64
	cashNotes         map[string]*CashNote
	unconfirmedSpends []SpendRequest

	MaxResendPendingTxTries int
}

// NewHDWallet loads (or initializes) a wallet rooted at dir, deriving
// keys from seed.
func NewHDWallet(dir string, seed []byte, maxResendTries int) (*HDWallet, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create wallet dir: %w", err)
	}
	w := &HDWallet{
		mainSeed:                seed,
		rootDir:                 dir,
		cashNotes:               make(map[string]*CashNote),
		MaxResendPendingTxTries: maxResendTries,
	}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *HDWallet) statePath() string { return filepath.Join(w.rootDir, "wallet_state.json") }
func (w *HDWallet) lockPath() string  { return filepath.Join(w.rootDir, "wallet.lock") }

// withFileLock serializes disk access across process instances sharing
// rootDir, the same guarantee the teacher's wallet directory lock gives
// its on-disk keystore.
func (w *HDWallet) withFileLock(fn func() error) error {
	f, err := os.OpenFile(w.lockPath(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open wallet lock: %w", err)
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return fn()
}

func (w *HDWallet) load() error {
	return w.withFileLock(func() error {
		b, err := os.ReadFile(w.statePath())
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read wallet state: %w", err)
		}
		var disk walletDisk
		if err := json.Unmarshal(b, &disk); err != nil {
			return fmt.Errorf("parse wallet state: %w", err)
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		w.nextIndex = disk.NextIndex
		w.unconfirmedSpends = disk.UnconfirmedSpends
		for i := range disk.CashNotes {
			cn := disk.CashNotes[i]
			w.cashNotes[cn.keyHex()] = &cn
		}
		return nil
	})
}

// persist writes the current wallet state to disk under the file lock.
// It takes w.mu itself to snapshot the state, so callers must not hold
// w.mu when calling it.
func (w *HDWallet) persist() error {
	w.mu.Lock()
	disk := walletDisk{NextIndex: w.nextIndex, UnconfirmedSpends: w.unconfirmedSpends}
	for _, cn := range w.cashNotes {
		disk.CashNotes = append(disk.CashNotes, *cn)
	}
	w.mu.Unlock()

	b, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet state: %w", err)
	}
	return w.withFileLock(func() error {
		tmp := w.statePath() + ".tmp"
		if err := os.WriteFile(tmp, b, 0o600); err != nil {
			return err
		}
		return os.Rename(tmp, w.statePath())
	})
}

// deriveNoteKey produces the index'th child secret key via HKDF-SHA512
// over the master seed, with the big-endian index as the info parameter
// — the same one-master-seed-many-children shape as the teacher's HMAC
// derivation chain, built on x/crypto/hkdf instead of a hand-rolled MAC
// construction.
func (w *HDWallet) deriveNoteKey(index uint64) *SecretKey {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	kdf := hkdf.New(sha512.New, w.mainSeed, nil, idx[:])
	out := make([]byte, 64)
	if _, err := io.ReadFull(kdf, out); err != nil {
		panic(fmt.Errorf("derive note key: %w", err))
	}
	return NewSecretKeyFromSeed(out)
}

// DepositAndStoreToDisk derives the next unused note key, assigns it
// amount, and persists it. Every call creates a new note from the next
// derivation index, so repeated calls for the same reward each add a
// note; the only duplicate check rejects a derived key that collides
// with a known note (ErrReusedPayment).
func (w *HDWallet) DepositAndStoreToDisk(amount NanoTokens) (*CashNote, error) {
	w.mu.Lock()
	index := w.nextIndex
	w.nextIndex++
	w.mu.Unlock()

	sk := w.deriveNoteKey(index)
	note := &CashNote{UniquePubkey: sk.Public().Bytes(), Amount: amount}

	w.mu.Lock()
	if _, dup := w.cashNotes[note.keyHex()]; dup {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: derived note key collided", ErrReusedPayment)
	}
	w.cashNotes[note.keyHex()] = note
	w.mu.Unlock()

	if err := w.persist(); err != nil {
		return nil, err
	}
	return note, nil
}

// Balance sums every unspent note.
func (w *HDWallet) Balance() NanoTokens {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total NanoTokens
	for _, cn := range w.cashNotes {
		if !cn.Spent {
			total += cn.Amount
		}
	}
	return total
}

// selectNotesLocked greedily picks unspent notes covering amount. Caller
// must hold w.mu.
func (w *HDWallet) selectNotesLocked(amount NanoTokens) ([]*CashNote, NanoTokens, error) {
	var picked []*CashNote
	var sum NanoTokens
	for _, cn := range w.cashNotes {
		if cn.Spent {
			continue
		}
		picked = append(picked, cn)
		sum += cn.Amount
		if sum >= amount {
			return picked, sum, nil
		}
	}
	return nil, 0, fmt.Errorf("insufficient wallet balance: have %d, need %d", sum, amount)
}

// LocalSend marks enough unspent notes as spent to cover amount and
// records an unconfirmed spend request describing the resulting
// on-chain transfer the caller is about to submit. It does not itself
// talk to the chain — that is cmd/node's EVM leg.
func (w *HDWallet) LocalSend(amount NanoTokens, quoteHashes [][32]byte, digest [32]byte) (*SpendRequest, error) {
	w.mu.Lock()
	picked, _, err := w.selectNotesLocked(amount)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	for _, cn := range picked {
		cn.Spent = true
	}
	req := SpendRequest{RequestID: uuid.NewString(), TransferDigest: digest, Amount: amount, QuoteHashes: quoteHashes}
	w.unconfirmedSpends = append(w.unconfirmedSpends, req)
	w.mu.Unlock()

	if err := w.persist(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ConfirmSpend removes a spend request from the unconfirmed set once the
// caller has observed it settle on-chain.
func (w *HDWallet) ConfirmSpend(digest [32]byte) error {
	w.mu.Lock()
	kept := w.unconfirmedSpends[:0]
	for _, r := range w.unconfirmedSpends {
		if r.TransferDigest != digest {
			kept = append(kept, r)
		}
	}
	w.unconfirmedSpends = kept
	w.mu.Unlock()
	return w.persist()
}

// UnconfirmedSpends returns a copy of the pending-settlement list.
func (w *HDWallet) UnconfirmedSpends() []SpendRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]SpendRequest, len(w.unconfirmedSpends))
	copy(out, w.unconfirmedSpends)
	return out
}

// PaymentMap tracks the highest amount committed per address across an
// upload batch. The uploader uses it to count repayments for an address;
// it does not prevent the uploader from paying a quote in full.
type PaymentMap struct {
	mu   sync.Mutex
	paid map[Name]NanoTokens
}

// NewPaymentMap builds an empty map.
func NewPaymentMap() *PaymentMap { return &PaymentMap{paid: make(map[Name]NanoTokens)} }

// AdjustPaymentMap reduces the amount owed for addr by whatever is
// already recorded as paid, and records any newly-committed amount. It
// never returns a negative adjustment — an address already fully paid
// yields zero due. The uploader treats a zero result as a repayment and
// still pays the new quote in full.
func (m *PaymentMap) AdjustPaymentMap(addr Name, required NanoTokens) NanoTokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	already := m.paid[addr]
	if already >= required {
		return 0
	}
	due := required - already
	m.paid[addr] = required
	return due
}
