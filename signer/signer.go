package signer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/txsign/build"
	"github.com/lightningnetwork/txsign/input"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInputNotFound is reported for an input whose spent output is
	// unknown.
	ErrInputNotFound = errors.New("input not found or already spent")

	// ErrMissingKey is reported when an input could not be signed at all,
	// which usually means a key or script is missing.
	ErrMissingKey = errors.New("unable to sign input, invalid stack " +
		"size (possibly missing key)")

	// ErrNeedMoreSignatures is reported when a signature check failed
	// with signatures present, which usually means a multisig input
	// still lacks signatures.
	ErrNeedMoreSignatures = errors.New("CHECK(MULTI)SIG failing with " +
		"non-zero signature (possibly need more signatures)")

	// ErrInvalidSigHash is returned for a sighash type that cannot
	// produce standard signatures.
	ErrInvalidSigHash = errors.New("invalid sighash type")

	// ErrNoTransactions is returned when there is nothing to combine.
	ErrNoTransactions = errors.New("no transactions to combine")

	// ErrTxMismatch is returned when transactions to combine do not spend
	// the same outputs.
	ErrTxMismatch = errors.New("transactions spend different inputs")
)

const (
	reasonNotFound   = "not_found"
	reasonMissingKey = "missing_key"
	reasonNeedSigs   = "need_signatures"
	reasonInvalid    = "invalid"
)

// InputError describes why an input was left incomplete.
type InputError struct {
	// Index is the input index.
	Index int

	// Err is the reason.
	Err error
}

// Error returns the reason prefixed with the input index.
func (e *InputError) Error() string {
	return fmt.Sprintf("input %d: %v", e.Index, e.Err)
}

// Unwrap returns the reason.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Config holds the signer's dependencies.
type Config struct {
	// Provider supplies private keys, public keys and redeem scripts.
	Provider keychain.SigningProvider

	// HashType is the sighash type of new signatures. Zero selects
	// interp.SigHashDefault.
	HashType txscript.SigHashType

	// MaxWorkers bounds the number of inputs signed concurrently. Zero
	// means one per CPU.
	MaxWorkers int

	// Metrics is optional.
	Metrics *Metrics
}

// Signer signs the inputs of transactions and PSBT packets.
type Signer struct {
	cfg      Config
	hashType txscript.SigHashType
}

// New creates a signer from cfg.
func New(cfg *Config) (*Signer, error) {
	hashType := cfg.HashType
	if hashType == 0 {
		hashType = interp.SigHashDefault
	}
	if err := validateSigHash(hashType); err != nil {
		return nil, err
	}

	if cfg.Provider == nil {
		cfg.Provider = keychain.EmptySigningProvider{}
	}

	return &Signer{
		cfg:      *cfg,
		hashType: hashType,
	}, nil
}

// workers returns the concurrency limit.
func (s *Signer) workers() int {
	if s.cfg.MaxWorkers > 0 {
		return s.cfg.MaxWorkers
	}

	return runtime.GOMAXPROCS(0)
}

// inputResult is the outcome of signing one input.
type inputResult struct {
	// data is nil if the input was not touched.
	data *input.SignatureData
	err  error
}

// SignTransaction signs every input of tx it can, keeping the signatures
// already present. prevOuts supplies the outputs being spent. The returned
// slice lists, in index order, the inputs that are not completely signed.
func (s *Signer) SignTransaction(ctx context.Context, tx *wire.MsgTx,
	prevOuts txscript.PrevOutputFetcher) ([]*InputError, error) {

	start := time.Now()
	defer func() {
		s.cfg.Metrics.observeDuration(time.Since(start).Seconds())
	}()

	// Inputs are signed against a snapshot so that installing one input's
	// script cannot race with the digests of the others.
	snapshot := tx.Copy()
	results := make([]inputResult, len(snapshot.TxIn))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers())
	for i := range snapshot.TxIn {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			results[i] = s.signInput(snapshot, i, prevOuts)

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var inputErrs []*InputError
	for i, res := range results {
		if res.data != nil {
			input.UpdateInput(tx.TxIn[i], res.data)
		}
		if res.err != nil {
			inputErrs = append(inputErrs, &InputError{
				Index: i,
				Err:   res.err,
			})
		}
	}

	log.Debugf("Signed tx %v: %d of %d inputs incomplete", tx.TxHash(),
		len(inputErrs), len(tx.TxIn))
	log.Tracef("Signed tx: %v", build.NewLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return inputErrs, nil
}

// signInput extracts the existing signatures of input idx, adds what the
// provider can sign, and checks the result.
func (s *Signer) signInput(tx *wire.MsgTx, idx int,
	prevOuts txscript.PrevOutputFetcher) inputResult {

	prevOut := prevOuts.FetchPrevOutput(tx.TxIn[idx].PreviousOutPoint)
	if prevOut == nil {
		s.cfg.Metrics.observeInput(false, reasonNotFound, 0)
		return inputResult{err: ErrInputNotFound}
	}

	data, err := input.DataFromTransaction(tx, idx, prevOut)
	if err != nil {
		s.cfg.Metrics.observeInput(false, reasonInvalid, 0)
		return inputResult{err: err}
	}
	extracted := len(data.Signatures)

	// Only sign SIGHASH_SINGLE if there's a corresponding output.
	if baseSigHash(s.hashType) != txscript.SigHashSingle ||
		idx < len(tx.TxOut) {

		creator, err := input.NewTxSignatureCreator(
			tx, idx, prevOut.Value, s.hashType,
		)
		if err != nil {
			s.cfg.Metrics.observeInput(false, reasonInvalid, 0)
			return inputResult{err: err}
		}

		input.ProduceSignature(
			s.cfg.Provider, creator, prevOut.PkScript, data,
		)
	}

	checker, err := interp.NewTxSigChecker(tx, idx, prevOut.Value)
	if err != nil {
		s.cfg.Metrics.observeInput(false, reasonInvalid, extracted)
		return inputResult{data: data, err: err}
	}

	err = interp.VerifyScript(
		data.ScriptSig, prevOut.PkScript, interp.StandardVerifyFlags,
		checker,
	)
	reason, err := classifyVerifyError(err)
	s.cfg.Metrics.observeInput(err == nil, reason, extracted)

	return inputResult{data: data, err: err}
}

// classifyVerifyError maps a verification failure to the error reported for
// the input and its metrics label.
func classifyVerifyError(err error) (string, error) {
	switch {
	case err == nil:
		return "", nil

	case interp.IsErrorCode(err, interp.ErrInvalidStackOperation):
		return reasonMissingKey, fmt.Errorf("%w: %w", ErrMissingKey,
			err)

	case interp.IsErrorCode(err, interp.ErrNullFail):
		return reasonNeedSigs, fmt.Errorf("%w: %w",
			ErrNeedMoreSignatures, err)

	default:
		return reasonInvalid, err
	}
}

// CombineTransactions merges the signatures found in several partially
// signed copies of the same transaction into one. The inputs are
// reassembled without any key material, so no new signatures are created.
func CombineTransactions(txs []*wire.MsgTx,
	prevOuts txscript.PrevOutputFetcher) (*wire.MsgTx, error) {

	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	merged := txs[0].Copy()
	for i, variant := range txs[1:] {
		if !sameInputs(merged, variant) {
			return nil, fmt.Errorf("transaction %d: %w", i+1,
				ErrTxMismatch)
		}
	}

	for i, txIn := range merged.TxIn {
		prevOut := prevOuts.FetchPrevOutput(txIn.PreviousOutPoint)
		if prevOut == nil {
			return nil, &InputError{Index: i, Err: ErrInputNotFound}
		}

		data := input.NewSignatureData()
		for _, variant := range txs {
			extracted, err := input.DataFromTransaction(
				variant, i, prevOut,
			)
			if err != nil {
				return nil, err
			}
			data.Merge(extracted)
		}

		creator, err := input.NewTxSignatureCreator(
			merged, i, prevOut.Value, interp.SigHashDefault,
		)
		if err != nil {
			return nil, err
		}
		input.ProduceSignature(
			keychain.EmptySigningProvider{}, creator,
			prevOut.PkScript, data,
		)
		input.UpdateInput(txIn, data)

		log.Debugf("Combined input %d of %d copies: complete=%v", i,
			len(txs), data.Complete)
	}

	return merged, nil
}

// sameInputs returns whether a and b spend the same outputs in the same
// order.
func sameInputs(a, b *wire.MsgTx) bool {
	if len(a.TxIn) != len(b.TxIn) {
		return false
	}
	for i := range a.TxIn {
		if a.TxIn[i].PreviousOutPoint != b.TxIn[i].PreviousOutPoint {
			return false
		}
	}

	return true
}

// baseSigHash strips the modifier flags from a sighash type.
func baseSigHash(hashType txscript.SigHashType) txscript.SigHashType {
	return hashType &^ (txscript.SigHashAnyOneCanPay | interp.SigHashForkID)
}

// validateSigHash ensures signatures of the given type are standard.
func validateSigHash(hashType txscript.SigHashType) error {
	base := baseSigHash(hashType)
	if base < txscript.SigHashAll || base > txscript.SigHashSingle {
		return fmt.Errorf("%w: 0x%x", ErrInvalidSigHash, hashType)
	}
	if hashType&interp.SigHashForkID == 0 {
		return fmt.Errorf("%w: 0x%x lacks the fork id",
			ErrInvalidSigHash, hashType)
	}

	return nil
}

// sigHashNames maps the names accepted by ParseSigHashType to flags.
var sigHashNames = map[string]txscript.SigHashType{
	"ALL":          txscript.SigHashAll,
	"NONE":         txscript.SigHashNone,
	"SINGLE":       txscript.SigHashSingle,
	"ANYONECANPAY": txscript.SigHashAnyOneCanPay,
	"FORKID":       interp.SigHashForkID,
}

// ParseSigHashType parses names such as "ALL|FORKID" or
// "SINGLE|FORKID|ANYONECANPAY". The fork id is added if it is not given.
func ParseSigHashType(s string) (txscript.SigHashType, error) {
	var (
		hashType txscript.SigHashType
		bases    int
	)
	for _, part := range strings.Split(strings.ToUpper(s), "|") {
		flag, ok := sigHashNames[strings.TrimSpace(part)]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSigHash, s)
		}
		if flag <= txscript.SigHashSingle {
			bases++
		}
		hashType |= flag
	}
	if bases != 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSigHash, s)
	}

	return hashType | interp.SigHashForkID, nil
}
