package input

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
)

var (
	// ErrPrevOutIndex is returned when an input refers to an output the
	// previous transaction does not have.
	ErrPrevOutIndex = errors.New("previous output index out of range")
)

// createSig returns a signature by pubKey over scriptCode. A signature
// already held in data is reused. A new one is recorded in data, and a key
// that cannot sign is added to data.MissingSigs.
func createSig(creator SignatureCreator, data *SignatureData,
	provider keychain.SigningProvider, pubKey,
	scriptCode []byte) fn.Option[[]byte] {

	keyID := keychain.NewKeyID(pubKey)
	if pair, ok := data.Signatures[keyID]; ok {
		return fn.Some(pair.Signature)
	}

	provider.GetKeyOrigin(keyID).WhenSome(func(o keychain.KeyOriginInfo) {
		addMiscPubKey(data, keyID, pubKey, o)
	})

	sig := creator.CreateSig(provider, keyID, scriptCode)
	sig.WhenSome(func(sig []byte) {
		data.Signatures[keyID] = SigPair{
			PubKey:    pubKey,
			Signature: sig,
		}
	})
	if sig.IsNone() {
		data.MissingSigs = append(data.MissingSigs, keyID)
	}

	return sig
}

// addMiscPubKey caches a public key and its origin on data. The first entry
// recorded for a key is kept.
func addMiscPubKey(data *SignatureData, keyID keychain.KeyID, pubKey []byte,
	origin keychain.KeyOriginInfo) {

	if _, ok := data.MiscPubKeys[keyID]; ok {
		return
	}

	data.MiscPubKeys[keyID] = PubKeyOrigin{
		PubKey: pubKey,
		Origin: origin,
	}
}

// getPubKey finds the public key for keyID among the signatures in data,
// then the cached public keys, and finally the provider.
func getPubKey(provider keychain.SigningProvider, data *SignatureData,
	keyID keychain.KeyID) fn.Option[[]byte] {

	if pair, ok := data.Signatures[keyID]; ok {
		return fn.Some(pair.PubKey)
	}
	if misc, ok := data.MiscPubKeys[keyID]; ok {
		return fn.Some(misc.PubKey)
	}

	pubKey := provider.GetPubKey(keyID)
	pubKey.WhenSome(func(pubKey []byte) {
		provider.GetKeyOrigin(keyID).WhenSome(
			func(o keychain.KeyOriginInfo) {
				addMiscPubKey(data, keyID, pubKey, o)
			},
		)
	})

	return pubKey
}

// getScript finds the script for id in the provider or, failing that, uses
// the redeem script already recorded in data if it matches.
func getScript(provider keychain.SigningProvider, data *SignatureData,
	id keychain.ScriptID) fn.Option[[]byte] {

	if script := provider.GetScript(id); script.IsSome() {
		return script
	}

	redeem := data.RedeemScript
	if len(redeem) != 0 && keychain.NewScriptID(redeem) == id {
		return fn.Some(redeem)
	}

	return fn.None[[]byte]()
}

// signStep satisfies a single script level. It returns the elements to push,
// the class of script and whether satisfaction succeeded. For a script hash
// the only element is the redeem script, which the caller recurses into.
func signStep(provider keychain.SigningProvider, creator SignatureCreator,
	script []byte, data *SignatureData) ([][]byte, txscript.ScriptClass,
	bool) {

	solution := interp.Solve(script)

	var ret [][]byte
	switch solution.Class {
	case txscript.PubKeyTy:
		sig := createSig(
			creator, data, provider, solution.Data[0], script,
		)
		if sig.IsNone() {
			return nil, solution.Class, false
		}

		return append(ret, sig.UnwrapOr(nil)), solution.Class, true

	case txscript.PubKeyHashTy:
		keyID, err := keychain.KeyIDFromHash(solution.Data[0])
		if err != nil {
			return nil, solution.Class, false
		}

		pubKey := getPubKey(provider, data, keyID)
		if pubKey.IsNone() {
			data.MissingPubKeys = append(data.MissingPubKeys, keyID)
			return nil, solution.Class, false
		}
		key := pubKey.UnwrapOr(nil)

		sig := createSig(creator, data, provider, key, script)
		if sig.IsNone() {
			return nil, solution.Class, false
		}

		return append(ret, sig.UnwrapOr(nil), key), solution.Class, true

	case txscript.ScriptHashTy:
		scriptID, err := keychain.ScriptIDFromHash(solution.Data[0])
		if err != nil {
			return nil, solution.Class, false
		}

		redeem := getScript(provider, data, scriptID)
		if redeem.IsNone() {
			data.MissingRedeemScript = fn.Some(scriptID)
			return nil, solution.Class, false
		}

		return append(ret, redeem.UnwrapOr(nil)), solution.Class, true

	case txscript.MultiSigTy:
		required := solution.Required

		// OP_CHECKMULTISIG consumes one element more than it checks,
		// so an empty element goes first.
		ret = append(ret, []byte{})
		for _, pubKey := range solution.Data {
			if len(ret) >= required+1 {
				break
			}

			sig := createSig(creator, data, provider, pubKey, script)
			sig.WhenSome(func(sig []byte) {
				ret = append(ret, sig)
			})
		}

		ok := len(ret) == required+1
		for len(ret) < required+1 {
			ret = append(ret, []byte{})
		}

		return ret, solution.Class, ok

	default:
		return nil, solution.Class, false
	}
}

// pushAll assembles elements into a script using the smallest push for each
// element.
func pushAll(elements [][]byte) []byte {
	var script []byte
	for _, e := range elements {
		switch {
		case len(e) == 0:
			script = append(script, txscript.OP_0)

		case len(e) == 1 && e[0] >= 1 && e[0] <= 16:
			script = append(script, txscript.OP_1-1+e[0])

		default:
			script = appendDataPush(script, e)
		}
	}

	return script
}

// appendDataPush appends a length prefixed push of data to script.
func appendDataPush(script, data []byte) []byte {
	dataLen := len(data)
	switch {
	case dataLen < txscript.OP_PUSHDATA1:
		script = append(script, byte(dataLen))

	case dataLen <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(dataLen))

	case dataLen <= 0xffff:
		script = append(
			script, txscript.OP_PUSHDATA2, byte(dataLen),
			byte(dataLen>>8),
		)

	default:
		script = append(
			script, txscript.OP_PUSHDATA4, byte(dataLen),
			byte(dataLen>>8), byte(dataLen>>16), byte(dataLen>>24),
		)
	}

	return append(script, data...)
}

// ProduceSignature solves pkScript with keys from provider and signatures
// from creator, storing the result in data. It returns whether the
// assembled unlocking script verifies, which is also recorded as
// data.Complete. A record that is already complete is left untouched.
func ProduceSignature(provider keychain.SigningProvider,
	creator SignatureCreator, pkScript []byte,
	data *SignatureData) bool {

	if data.Complete {
		return true
	}
	data.init()

	result, class, solved := signStep(provider, creator, pkScript, data)

	if solved && class == txscript.ScriptHashTy {
		redeemScript := result[0]
		data.RedeemScript = bytes.Clone(redeemScript)

		result, class, solved = signStep(
			provider, creator, redeemScript, data,
		)
		solved = solved && class != txscript.ScriptHashTy

		result = append(result, redeemScript)
	}

	data.ScriptSig = pushAll(result)

	if !solved {
		log.Tracef("Unable to solve script %x: missing pubkeys=%v, "+
			"missing sigs=%v", pkScript, data.MissingPubKeys,
			data.MissingSigs)

		data.Complete = false
		return false
	}

	err := interp.VerifyScript(
		data.ScriptSig, pkScript, interp.StandardVerifyFlags,
		creator.Checker(),
	)
	if err != nil {
		log.Debugf("Assembled script sig %x fails verification: %v",
			data.ScriptSig, err)
	}
	data.Complete = err == nil

	return data.Complete
}

// SignSignature signs input idx of tx, which spends pkScript worth amount,
// and installs the resulting unlocking script. It returns whether the input
// is now completely signed.
func SignSignature(provider keychain.SigningProvider, pkScript []byte,
	tx *wire.MsgTx, idx int, amount int64,
	hashType txscript.SigHashType) (bool, error) {

	creator, err := NewTxSignatureCreator(tx, idx, amount, hashType)
	if err != nil {
		return false, err
	}

	data := NewSignatureData()
	complete := ProduceSignature(provider, creator, pkScript, data)
	UpdateInput(tx.TxIn[idx], data)

	return complete, nil
}

// SignSignatureFromTx signs input idx of tx, which spends an output of
// prevTx.
func SignSignatureFromTx(provider keychain.SigningProvider, prevTx,
	tx *wire.MsgTx, idx int, hashType txscript.SigHashType) (bool, error) {

	if idx < 0 || idx >= len(tx.TxIn) {
		return false, fmt.Errorf("%w: %d not in [0, %d)",
			interp.ErrInputIndex, idx, len(tx.TxIn))
	}

	outIdx := tx.TxIn[idx].PreviousOutPoint.Index
	if int(outIdx) >= len(prevTx.TxOut) {
		return false, fmt.Errorf("%w: %d not in [0, %d)",
			ErrPrevOutIndex, outIdx, len(prevTx.TxOut))
	}
	prevOut := prevTx.TxOut[outIdx]

	return SignSignature(
		provider, prevOut.PkScript, tx, idx, prevOut.Value, hashType,
	)
}

// IsSolvable returns whether provider knows enough to satisfy script if it
// also held the private keys.
func IsSolvable(provider keychain.SigningProvider, script []byte) bool {
	data := NewSignatureData()
	if !ProduceSignature(provider, DummyCreator, script, data) {
		return false
	}

	err := interp.VerifyScript(
		data.ScriptSig, script, interp.StandardVerifyFlags,
		DummyChecker,
	)
	if err != nil {
		panic(fmt.Sprintf("dummy solution for %x does not verify: %v",
			script, err))
	}

	return true
}
