package input

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
)

// SignatureCreator produces raw signatures for the solver. Every signature
// it returns carries its trailing sighash byte and is valid under the
// checker it is paired with.
type SignatureCreator interface {
	// Checker returns the signature checker the creator's signatures are
	// verified with.
	Checker() interp.SignatureChecker

	// CreateSig returns a signature by the key identified by keyID over
	// scriptCode, or None if the creator cannot produce one.
	CreateSig(provider keychain.SigningProvider, keyID keychain.KeyID,
		scriptCode []byte) fn.Option[[]byte]
}

// TxSignatureCreator signs a specific input of a transaction with keys
// looked up from the provider.
type TxSignatureCreator struct {
	hashType txscript.SigHashType
	checker  *interp.TxSigChecker
}

// A compile time check to ensure TxSignatureCreator implements the
// SignatureCreator interface.
var _ SignatureCreator = (*TxSignatureCreator)(nil)

// NewTxSignatureCreator returns a creator for input idx of tx, which spends
// an output worth amount, producing signatures of type hashType.
func NewTxSignatureCreator(tx *wire.MsgTx, idx int, amount int64,
	hashType txscript.SigHashType) (*TxSignatureCreator, error) {

	checker, err := interp.NewTxSigChecker(tx, idx, amount)
	if err != nil {
		return nil, err
	}

	return &TxSignatureCreator{
		hashType: hashType,
		checker:  checker,
	}, nil
}

// Checker returns the transaction checker for the bound input.
func (c *TxSignatureCreator) Checker() interp.SignatureChecker {
	return c.checker
}

// CreateSig signs the input's digest for scriptCode with the private key
// from the provider. It returns None only when the provider lacks the key.
func (c *TxSignatureCreator) CreateSig(provider keychain.SigningProvider,
	keyID keychain.KeyID, scriptCode []byte) fn.Option[[]byte] {

	return fn.MapOption(func(key *btcec.PrivateKey) []byte {
		digest, err := c.checker.SigHash(scriptCode, c.hashType)
		if err != nil {
			// The input index was validated on construction, so
			// the digest can only fail on corrupted state.
			panic(fmt.Sprintf("unable to compute sighash for "+
				"key %v: %v", keyID, err))
		}

		sig := ecdsa.Sign(key, digest)

		return append(sig.Serialize(), byte(c.hashType))
	})(provider.GetKey(keyID))
}

const (
	// defaultDummyRLen and defaultDummySLen size a typical low-S
	// signature.
	defaultDummyRLen = 32
	defaultDummySLen = 32

	// maxDummyRLen is the largest R a low-S signature can carry, used
	// when an upper bound on the signature size is needed.
	maxDummyRLen = 33
)

// DummySignatureCreator produces correctly shaped placeholder signatures
// without any key material. It is used to check solvability and to estimate
// the size of a spend, never to sign for real.
type DummySignatureCreator struct {
	rLen int
	sLen int
}

// A compile time check to ensure DummySignatureCreator implements the
// SignatureCreator interface.
var _ SignatureCreator = (*DummySignatureCreator)(nil)

var (
	// DummyCreator creates signatures of the typical size.
	DummyCreator = NewDummySignatureCreator(
		defaultDummyRLen, defaultDummySLen,
	)

	// DummyMaximumCreator creates signatures of the largest size a
	// standard low-S signature can have.
	DummyMaximumCreator = NewDummySignatureCreator(
		maxDummyRLen, defaultDummySLen,
	)

	// DummyChecker accepts every signature.
	DummyChecker interp.SignatureChecker = dummyChecker{}
)

// NewDummySignatureCreator returns a creator whose signatures encode an R of
// rLen bytes and an S of sLen bytes.
func NewDummySignatureCreator(rLen, sLen int) *DummySignatureCreator {
	return &DummySignatureCreator{rLen: rLen, sLen: sLen}
}

// Checker returns DummyChecker.
func (d *DummySignatureCreator) Checker() interp.SignatureChecker {
	return DummyChecker
}

// CreateSig returns a DER signature of rLen+sLen+7 bytes, including the
// sighash byte, in which each integer is 0x01 followed by zeros.
func (d *DummySignatureCreator) CreateSig(keychain.SigningProvider,
	keychain.KeyID, []byte) fn.Option[[]byte] {

	sig := make([]byte, d.rLen+d.sLen+7)
	sig[0] = 0x30
	sig[1] = byte(d.rLen + d.sLen + 4)
	sig[2] = 0x02
	sig[3] = byte(d.rLen)
	sig[4] = 0x01
	sig[4+d.rLen] = 0x02
	sig[5+d.rLen] = byte(d.sLen)
	sig[6+d.rLen] = 0x01
	sig[6+d.rLen+d.sLen] = byte(interp.SigHashDefault)

	return fn.Some(sig)
}

// dummyChecker is the checker paired with the dummy creators.
type dummyChecker struct{}

// CheckSig always succeeds.
func (dummyChecker) CheckSig(_, _, _ []byte, _ interp.ScriptFlags) bool {
	return true
}
