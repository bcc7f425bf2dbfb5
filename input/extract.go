package input

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
)

// extractorChecker wraps a checker and records every signature that passes
// it.
type extractorChecker struct {
	data    *SignatureData
	checker interp.SignatureChecker
}

// A compile time check to ensure extractorChecker implements the
// SignatureChecker interface.
var _ interp.SignatureChecker = (*extractorChecker)(nil)

// CheckSig forwards to the wrapped checker and records valid signatures.
func (e *extractorChecker) CheckSig(sig, pubKey, scriptCode []byte,
	flags interp.ScriptFlags) bool {

	if !e.checker.CheckSig(sig, pubKey, scriptCode, flags) {
		return false
	}

	e.data.Signatures[keychain.NewKeyID(pubKey)] = SigPair{
		PubKey:    bytes.Clone(pubKey),
		Signature: bytes.Clone(sig),
	}

	return true
}

// DataFromTransaction collects the signatures already present in the
// unlocking script of input idx of tx, which spends prevOut. The result is
// complete if the existing script already verifies. Unparsable scripts
// simply yield no signatures; an error is only returned for an invalid
// index.
func DataFromTransaction(tx *wire.MsgTx, idx int,
	prevOut *wire.TxOut) (*SignatureData, error) {

	txChecker, err := interp.NewTxSigChecker(tx, idx, prevOut.Value)
	if err != nil {
		return nil, err
	}

	data := NewSignatureData()
	data.ScriptSig = bytes.Clone(tx.TxIn[idx].SignatureScript)

	// A script that is not push only leaves nothing to harvest.
	stack, _ := interp.PushedStack(data.ScriptSig)

	checker := &extractorChecker{data: data, checker: txChecker}
	err = interp.VerifyScript(
		data.ScriptSig, prevOut.PkScript, interp.StandardVerifyFlags,
		checker,
	)
	if err == nil {
		data.Complete = true
		return data, nil
	}

	solution := interp.Solve(prevOut.PkScript)
	nextScript := prevOut.PkScript

	if solution.Class == txscript.ScriptHashTy && len(stack) > 0 &&
		len(stack[len(stack)-1]) > 0 {

		redeemScript := stack[len(stack)-1]
		data.RedeemScript = bytes.Clone(redeemScript)
		nextScript = redeemScript

		solution = interp.Solve(nextScript)
		stack = stack[:len(stack)-1]
	}

	if solution.Class == txscript.MultiSigTy && len(stack) > 0 {
		matchMultiSig(data, checker, solution.Data, stack, nextScript)
	}

	log.Tracef("Extracted %d signature(s) from input %d",
		len(data.Signatures), idx)

	return data, nil
}

// matchMultiSig pairs the candidate signatures on the stack with the
// multisig keys. Both are walked in script order and a key is never matched
// again once a later key has matched, so signatures presented out of key
// order are not all found. A key that already has a signature counts as a
// match for the current candidate.
func matchMultiSig(data *SignatureData, checker interp.SignatureChecker,
	pubKeys, stack [][]byte, scriptCode []byte) {

	// Every element is a candidate, including the dummy, so scripts that
	// omit the dummy still yield all of their signatures.
	lastSuccess := 0
	for _, sig := range stack {
		for i := lastSuccess; i < len(pubKeys); i++ {
			pubKey := pubKeys[i]

			_, known := data.Signatures[keychain.NewKeyID(pubKey)]
			if known || checker.CheckSig(
				sig, pubKey, scriptCode,
				interp.StandardVerifyFlags,
			) {

				lastSuccess = i + 1
				break
			}
		}
	}
}
