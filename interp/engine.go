package interp

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// halfOrder is used to tame ECDSA malleability (see BIP0062).
var halfOrder = new(big.Int).Rsh(btcec.S256().N, 1)

// engine evaluates the subset of script needed by the standard output
// templates: data pushes, stack and hash operations, equality and signature
// checks. Anything else fails with ErrUnsupportedOpcode.
type engine struct {
	flags   ScriptFlags
	checker SignatureChecker
}

// VerifyScript executes sigScript followed by pkScript, including the
// pay-to-script-hash redeem step when ScriptBip16 is set, and returns nil only
// if the spend is valid under flags. Every signature check is delegated to
// checker.
func VerifyScript(sigScript, pkScript []byte, flags ScriptFlags,
	checker SignatureChecker) error {

	if flags.hasFlag(ScriptVerifySigPushOnly) && !IsPushOnly(sigScript) {
		return scriptError(ErrNotPushOnly,
			"signature script is not push only")
	}

	vm := &engine{flags: flags, checker: checker}

	var st stack
	if err := vm.execute(&st, sigScript); err != nil {
		return err
	}

	// Keep a copy of the stack for the redeem script evaluation.
	var p2shStack stack
	if flags.hasFlag(ScriptBip16) {
		p2shStack = append(stack(nil), st...)
	}

	if err := vm.execute(&st, pkScript); err != nil {
		return err
	}
	if err := checkTop(st); err != nil {
		return err
	}

	if flags.hasFlag(ScriptBip16) && txscript.IsPayToScriptHash(pkScript) {
		if !IsPushOnly(sigScript) {
			return scriptError(ErrNotPushOnly, "pay to script "+
				"hash is not push only")
		}

		st = p2shStack
		redeemScript, err := st.pop()
		if err != nil {
			return err
		}

		if err := vm.execute(&st, redeemScript); err != nil {
			return err
		}
		if err := checkTop(st); err != nil {
			return err
		}
	}

	if flags.hasFlag(ScriptVerifyCleanStack) && len(st) != 1 {
		str := fmt.Sprintf("stack must contain exactly one item "+
			"(contains %d)", len(st))
		return scriptError(ErrCleanStack, str)
	}

	return nil
}

// checkTop ensures the stack ends with a true element.
func checkTop(st stack) error {
	if len(st) == 0 {
		return scriptError(ErrEmptyStack,
			"stack empty at end of script execution")
	}
	if !asBool(st[len(st)-1]) {
		return scriptError(ErrEvalFalse,
			"false stack entry at end of script execution")
	}

	return nil
}

// execute runs script against st.
func (vm *engine) execute(st *stack, script []byte) error {
	if len(script) > maxScriptSize {
		str := fmt.Sprintf("script size %d is larger than max "+
			"allowed size %d", len(script), maxScriptSize)
		return scriptError(ErrScriptSize, str)
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		data := tokenizer.Data()

		var err error
		switch {
		case op <= txscript.OP_PUSHDATA4:
			err = vm.pushData(st, op, data)

		case op == txscript.OP_1NEGATE:
			st.push([]byte{0x81})

		case op >= txscript.OP_1 && op <= txscript.OP_16:
			st.push([]byte{op - txscript.OP_1 + 1})

		default:
			err = vm.executeOpcode(st, op, script)
		}
		if err != nil {
			return err
		}

		if len(*st) > maxStackSize {
			str := fmt.Sprintf("stack size %d > max allowed %d",
				len(*st), maxStackSize)
			return scriptError(ErrStackOverflow, str)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return scriptError(ErrMalformedPush, err.Error())
	}

	return nil
}

// pushData handles OP_0 through OP_PUSHDATA4.
func (vm *engine) pushData(st *stack, op byte, data []byte) error {
	if len(data) > txscript.MaxScriptElementSize {
		str := fmt.Sprintf("element size %d exceeds max allowed size "+
			"%d", len(data), txscript.MaxScriptElementSize)
		return scriptError(ErrElementTooBig, str)
	}

	if vm.flags.hasFlag(ScriptVerifyMinimalData) {
		if err := checkMinimalDataPush(op, data); err != nil {
			return err
		}
	}

	st.push(append([]byte{}, data...))

	return nil
}

// executeOpcode runs a single non-push opcode. script is the script being
// executed, used as the code signatures commit to.
func (vm *engine) executeOpcode(st *stack, op byte, script []byte) error {
	switch op {
	case txscript.OP_NOP:
		return nil

	case txscript.OP_RETURN:
		return scriptError(ErrEarlyReturn,
			"script returned early")

	case txscript.OP_VERIFY:
		ok, err := st.popBool()
		if err != nil {
			return err
		}
		if !ok {
			return scriptError(ErrVerify, "OP_VERIFY failed")
		}
		return nil

	case txscript.OP_DROP:
		_, err := st.pop()
		return err

	case txscript.OP_DUP:
		top, err := st.peek(0)
		if err != nil {
			return err
		}
		st.push(append([]byte{}, top...))
		return nil

	case txscript.OP_EQUAL, txscript.OP_EQUALVERIFY:
		a, err := st.pop()
		if err != nil {
			return err
		}
		b, err := st.pop()
		if err != nil {
			return err
		}

		equal := bytes.Equal(a, b)
		if op == txscript.OP_EQUALVERIFY {
			if !equal {
				return scriptError(ErrEqualVerify,
					"OP_EQUALVERIFY failed")
			}
			return nil
		}
		st.pushBool(equal)
		return nil

	case txscript.OP_SHA256, txscript.OP_HASH160, txscript.OP_HASH256:
		item, err := st.pop()
		if err != nil {
			return err
		}

		switch op {
		case txscript.OP_SHA256:
			st.push(chainhash.HashB(item))
		case txscript.OP_HASH160:
			st.push(btcutil.Hash160(item))
		default:
			st.push(chainhash.DoubleHashB(item))
		}
		return nil

	case txscript.OP_CHECKSIG, txscript.OP_CHECKSIGVERIFY:
		return vm.opCheckSig(st, op == txscript.OP_CHECKSIGVERIFY, script)

	case txscript.OP_CHECKMULTISIG, txscript.OP_CHECKMULTISIGVERIFY:
		return vm.opCheckMultiSig(
			st, op == txscript.OP_CHECKMULTISIGVERIFY, script,
		)

	default:
		str := fmt.Sprintf("opcode 0x%02x is not supported", op)
		return scriptError(ErrUnsupportedOpcode, str)
	}
}

// opCheckSig implements OP_CHECKSIG and OP_CHECKSIGVERIFY.
func (vm *engine) opCheckSig(st *stack, verify bool, script []byte) error {
	pubKey, err := st.pop()
	if err != nil {
		return err
	}
	sig, err := st.pop()
	if err != nil {
		return err
	}

	valid, err := vm.checkSig(sig, pubKey, vm.scriptCode(script, sig))
	if err != nil {
		return err
	}

	if !valid && len(sig) > 0 &&
		vm.flags.hasFlag(ScriptVerifyNullFail) {

		return scriptError(ErrNullFail, "signature not empty on "+
			"failed checksig")
	}

	if verify {
		if !valid {
			return scriptError(ErrCheckSigVerify,
				"OP_CHECKSIGVERIFY failed")
		}
		return nil
	}
	st.pushBool(valid)

	return nil
}

// opCheckMultiSig implements OP_CHECKMULTISIG and OP_CHECKMULTISIGVERIFY,
// including the extra stack element consumed by the original
// implementation.
func (vm *engine) opCheckMultiSig(st *stack, verify bool,
	script []byte) error {

	requireMinimal := vm.flags.hasFlag(ScriptVerifyMinimalData)

	numPubKeys, err := st.popInt(requireMinimal)
	if err != nil {
		return err
	}
	if numPubKeys < 0 || numPubKeys > txscript.MaxPubKeysPerMultiSig {
		str := fmt.Sprintf("invalid pubkey count %d", numPubKeys)
		return scriptError(ErrInvalidPubKeyCount, str)
	}

	// Keys and signatures are popped top first, so index zero refers to
	// the last one listed in the script.
	pubKeys := make([][]byte, 0, numPubKeys)
	for i := 0; i < numPubKeys; i++ {
		pubKey, err := st.pop()
		if err != nil {
			return err
		}
		pubKeys = append(pubKeys, pubKey)
	}

	numSigs, err := st.popInt(requireMinimal)
	if err != nil {
		return err
	}
	if numSigs < 0 || numSigs > numPubKeys {
		str := fmt.Sprintf("invalid signature count %d for %d "+
			"pubkeys", numSigs, numPubKeys)
		return scriptError(ErrInvalidSignatureCount, str)
	}

	sigs := make([][]byte, 0, numSigs)
	for i := 0; i < numSigs; i++ {
		sig, err := st.pop()
		if err != nil {
			return err
		}
		sigs = append(sigs, sig)
	}

	dummy, err := st.pop()
	if err != nil {
		return err
	}
	if vm.flags.hasFlag(ScriptStrictMultiSig) && len(dummy) != 0 {
		str := fmt.Sprintf("multisig dummy argument has length %d "+
			"instead of 0", len(dummy))
		return scriptError(ErrSigNullDummy, str)
	}

	scriptCode := script
	for _, sig := range sigs {
		scriptCode = vm.scriptCode(scriptCode, sig)
	}

	success := true
	remainingKeys := numPubKeys
	keyIdx, sigIdx := 0, 0
	for sigIdx < numSigs {
		// More signatures left than keys means failure.
		if numSigs-sigIdx > remainingKeys {
			success = false
			break
		}

		sig := sigs[sigIdx]
		pubKey := pubKeys[keyIdx]
		keyIdx++
		remainingKeys--

		if len(sig) == 0 {
			continue
		}

		valid, err := vm.checkSig(sig, pubKey, scriptCode)
		if err != nil {
			return err
		}
		if valid {
			sigIdx++
		}
	}

	if !success && vm.flags.hasFlag(ScriptVerifyNullFail) {
		for _, sig := range sigs {
			if len(sig) > 0 {
				return scriptError(ErrNullFail, "not all "+
					"signatures empty on failed "+
					"checkmultisig")
			}
		}
	}

	if verify {
		if !success {
			return scriptError(ErrCheckMultiSigVerify,
				"OP_CHECKMULTISIGVERIFY failed")
		}
		return nil
	}
	st.pushBool(success)

	return nil
}

// checkSig validates the encodings and hands the signature to the checker.
// An empty signature is never valid.
func (vm *engine) checkSig(sig, pubKey, scriptCode []byte) (bool, error) {
	if len(sig) == 0 {
		return false, nil
	}

	hashType := txscript.SigHashType(sig[len(sig)-1])
	if err := vm.checkHashTypeEncoding(hashType); err != nil {
		return false, err
	}
	if err := vm.checkSignatureEncoding(sig[:len(sig)-1]); err != nil {
		return false, err
	}
	if err := vm.checkPubKeyEncoding(pubKey); err != nil {
		return false, err
	}

	return vm.checker.CheckSig(sig, pubKey, scriptCode, vm.flags), nil
}

// scriptCode returns the code a signature commits to. Signatures using the
// original digest cannot sign themselves, so every push of sig is removed.
func (vm *engine) scriptCode(script, sig []byte) []byte {
	if len(sig) > 0 &&
		vm.flags.hasFlag(ScriptEnableSigHashForkID) &&
		txscript.SigHashType(sig[len(sig)-1])&SigHashForkID != 0 {

		return script
	}

	return removeDataPush(script, sig)
}

// removeDataPush returns script without any data push of data.
func removeDataPush(script, data []byte) []byte {
	if len(data) == 0 {
		return script
	}

	var (
		result    []byte
		prevIndex int32
		removed   bool
	)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		idx := tokenizer.ByteIndex()
		if bytes.Equal(tokenizer.Data(), data) {
			removed = true
		} else {
			result = append(result, script[prevIndex:idx]...)
		}
		prevIndex = idx
	}
	if tokenizer.Err() != nil || !removed {
		return script
	}

	return result
}

// checkHashTypeEncoding enforces a known sighash type, and the fork id rules
// when strict encoding is on.
func (vm *engine) checkHashTypeEncoding(hashType txscript.SigHashType) error {
	if !vm.flags.hasFlag(ScriptVerifyStrictEncoding) {
		return nil
	}

	baseType := hashType & ^(txscript.SigHashAnyOneCanPay | SigHashForkID)
	if baseType < txscript.SigHashAll || baseType > txscript.SigHashSingle {
		str := fmt.Sprintf("invalid hash type 0x%x", hashType)
		return scriptError(ErrSigHashType, str)
	}

	usesForkID := hashType&SigHashForkID != 0
	forkIDEnabled := vm.flags.hasFlag(ScriptEnableSigHashForkID)
	switch {
	case usesForkID && !forkIDEnabled:
		str := fmt.Sprintf("hash type 0x%x uses fork id which is "+
			"not enabled", hashType)
		return scriptError(ErrSigHashType, str)

	case !usesForkID && forkIDEnabled:
		str := fmt.Sprintf("hash type 0x%x must use fork id",
			hashType)
		return scriptError(ErrSigHashType, str)
	}

	return nil
}

// checkPubKeyEncoding returns whether or not the passed public key adheres to
// the strict encoding requirements if enabled.
func (vm *engine) checkPubKeyEncoding(pubKey []byte) error {
	if !vm.flags.hasFlag(ScriptVerifyStrictEncoding) {
		return nil
	}

	if len(pubKey) == 33 && (pubKey[0] == 0x02 || pubKey[0] == 0x03) {
		// Compressed
		return nil
	}
	if len(pubKey) == 65 && pubKey[0] == 0x04 {
		// Uncompressed
		return nil
	}

	return scriptError(ErrPubKeyType, "unsupported public key type")
}

// checkSignatureEncoding returns whether or not the passed signature, without
// its sighash byte, adheres to the strict DER rules if enabled.
func (vm *engine) checkSignatureEncoding(sig []byte) error {
	if !vm.flags.hasFlag(ScriptVerifyDERSignatures) &&
		!vm.flags.hasFlag(ScriptVerifyLowS) &&
		!vm.flags.hasFlag(ScriptVerifyStrictEncoding) {

		return nil
	}

	malformed := func(format string, args ...interface{}) error {
		return scriptError(ErrSigDER, "malformed signature: "+
			fmt.Sprintf(format, args...))
	}

	switch {
	case len(sig) < 8:
		return malformed("too short: %d < 8", len(sig))
	case len(sig) > 72:
		return malformed("too long: %d > 72", len(sig))
	case sig[0] != 0x30:
		return malformed("format has wrong type: 0x%x", sig[0])
	case int(sig[1]) != len(sig)-2:
		return malformed("bad length: %d != %d", sig[1], len(sig)-2)
	}

	rLen := int(sig[3])
	if rLen+5 > len(sig) {
		return malformed("S out of bounds")
	}
	sLen := int(sig[rLen+5])

	switch {
	case rLen+sLen+6 != len(sig):
		return malformed("invalid R length")
	case sig[2] != 0x02:
		return malformed("missing first integer marker")
	case rLen == 0:
		return malformed("R length is zero")
	case sig[4]&0x80 != 0:
		return malformed("R value is negative")
	case rLen > 1 && sig[4] == 0x00 && sig[5]&0x80 == 0:
		return malformed("invalid R value")
	case sig[rLen+4] != 0x02:
		return malformed("missing second integer marker")
	case sLen == 0:
		return malformed("S length is zero")
	case sig[rLen+6]&0x80 != 0:
		return malformed("S value is negative")
	case sLen > 1 && sig[rLen+6] == 0x00 && sig[rLen+7]&0x80 == 0:
		return malformed("invalid S value")
	}

	if vm.flags.hasFlag(ScriptVerifyLowS) {
		sValue := new(big.Int).SetBytes(sig[rLen+6 : rLen+6+sLen])
		if sValue.Cmp(halfOrder) > 0 {
			return scriptError(ErrSigHighS, "signature is not "+
				"canonical due to unnecessarily high S value")
		}
	}

	return nil
}

// checkMinimalDataPush returns whether or not the data push used the smallest
// possible opcode.
func checkMinimalDataPush(op byte, data []byte) error {
	dataLen := len(data)

	var expected byte
	switch {
	case dataLen == 0:
		expected = txscript.OP_0
	case dataLen == 1 && data[0] >= 1 && data[0] <= 16:
		expected = txscript.OP_1 - 1 + data[0]
	case dataLen == 1 && data[0] == 0x81:
		expected = txscript.OP_1NEGATE
	case dataLen <= 75:
		expected = byte(dataLen)
	case dataLen <= 255:
		expected = txscript.OP_PUSHDATA1
	case dataLen <= 65535:
		expected = txscript.OP_PUSHDATA2
	default:
		expected = txscript.OP_PUSHDATA4
	}

	if op != expected {
		str := fmt.Sprintf("data push of %d bytes encoded with opcode "+
			"0x%02x instead of 0x%02x", dataLen, op, expected)
		return scriptError(ErrMinimalData, str)
	}

	return nil
}
