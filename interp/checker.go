package interp

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInputIndex is returned when a transaction input index is out of
	// range.
	ErrInputIndex = errors.New("transaction input index out of range")
)

// SignatureChecker validates individual signatures on behalf of the script
// verifier. The signature includes its trailing sighash byte and scriptCode
// is the script the signature commits to.
type SignatureChecker interface {
	CheckSig(sig, pubKey, scriptCode []byte, flags ScriptFlags) bool
}

// TxSigChecker checks signatures against the signature digest of a specific
// transaction input.
type TxSigChecker struct {
	tx     *wire.MsgTx
	idx    int
	amount int64

	sigHashes *txscript.TxSigHashes
}

// A compile time check to ensure TxSigChecker implements the
// SignatureChecker interface.
var _ SignatureChecker = (*TxSigChecker)(nil)

// NewTxSigChecker returns a checker for input idx of tx spending an output
// worth amount.
func NewTxSigChecker(tx *wire.MsgTx, idx int,
	amount int64) (*TxSigChecker, error) {

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInputIndex,
			idx, len(tx.TxIn))
	}

	return &TxSigChecker{
		tx:        tx,
		idx:       idx,
		amount:    amount,
		sigHashes: newSigHashes(tx, amount),
	}, nil
}

// SigHash computes the digest a signature of the given type commits to.
func (c *TxSigChecker) SigHash(scriptCode []byte,
	hashType txscript.SigHashType) ([]byte, error) {

	return CalcSigHash(
		scriptCode, c.sigHashes, hashType, c.tx, c.idx, c.amount,
	)
}

// CheckSig returns whether sig is a valid signature by pubKey over the
// input's digest.
func (c *TxSigChecker) CheckSig(sig, pubKey, scriptCode []byte,
	flags ScriptFlags) bool {

	if len(sig) == 0 {
		return false
	}

	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}

	hashType := txscript.SigHashType(sig[len(sig)-1])
	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false
	}

	if hashType&SigHashForkID != 0 &&
		!flags.hasFlag(ScriptEnableSigHashForkID) {

		return false
	}

	digest, err := c.SigHash(scriptCode, hashType)
	if err != nil {
		return false
	}

	return parsed.Verify(digest, key)
}

// CalcSigHash computes the signature digest for the input. Types carrying
// the fork id flag use the BIP143 layout, everything else the original
// digest algorithm.
func CalcSigHash(scriptCode []byte, sigHashes *txscript.TxSigHashes,
	hashType txscript.SigHashType, tx *wire.MsgTx, idx int,
	amount int64) ([]byte, error) {

	if hashType&SigHashForkID != 0 {
		return txscript.CalcWitnessSigHash(
			scriptCode, sigHashes, hashType, tx, idx, amount,
		)
	}

	return txscript.CalcSignatureHash(scriptCode, hashType, tx, idx)
}

// newSigHashes computes the BIP143 midstate for tx. Only legacy scripts are
// signed here, so a canned fetcher without a script is enough to keep the
// taproot midstate from being computed.
func newSigHashes(tx *wire.MsgTx, amount int64) *txscript.TxSigHashes {
	return txscript.NewTxSigHashes(
		tx, txscript.NewCannedPrevOutputFetcher(nil, amount),
	)
}
