package interp

import "github.com/btcsuite/btcd/txscript"

// ScriptFlags is a bitmask defining additional operations or tests that will
// be done when verifying a script pair.
type ScriptFlags uint32

const (
	// ScriptBip16 defines whether the bip16 threshold has passed and thus
	// pay-to-script hash transactions will be fully validated.
	ScriptBip16 ScriptFlags = 1 << iota

	// ScriptVerifyStrictEncoding defines that signature scripts and
	// public keys must follow the strict encoding requirements.
	ScriptVerifyStrictEncoding

	// ScriptVerifyDERSignatures defines that signatures are required
	// to comply with the DER format.
	ScriptVerifyDERSignatures

	// ScriptVerifyLowS defines that signatures are required to comply with
	// the DER format and whose S value is <= order / 2.
	ScriptVerifyLowS

	// ScriptStrictMultiSig defines whether to verify the stack item used
	// by CHECKMULTISIG is zero length.
	ScriptStrictMultiSig

	// ScriptVerifySigPushOnly defines that signature scripts must contain
	// only pushed data.
	ScriptVerifySigPushOnly

	// ScriptVerifyMinimalData defines that signature scripts must use the
	// smallest push operator.
	ScriptVerifyMinimalData

	// ScriptVerifyCleanStack defines that the stack must contain only
	// one stack element after evaluation and that the element must be
	// true if interpreted as a boolean.
	ScriptVerifyCleanStack

	// ScriptVerifyNullFail defines that signatures must be empty if
	// a CHECKSIG or CHECKMULTISIG operation fails.
	ScriptVerifyNullFail

	// ScriptEnableSigHashForkID requires every signature to commit to the
	// fork id sighash flag and selects the BIP143-style digest for it.
	ScriptEnableSigHashForkID
)

// StandardVerifyFlags are the script flags used when checking whether an
// assembled signature script is complete.
const StandardVerifyFlags = ScriptBip16 |
	ScriptVerifyStrictEncoding |
	ScriptVerifyDERSignatures |
	ScriptVerifyLowS |
	ScriptStrictMultiSig |
	ScriptVerifySigPushOnly |
	ScriptVerifyMinimalData |
	ScriptVerifyCleanStack |
	ScriptVerifyNullFail |
	ScriptEnableSigHashForkID

// LegacyVerifyFlags are the standard flags without the fork id requirement,
// for chains that still use the original signature digest.
const LegacyVerifyFlags = StandardVerifyFlags &^ ScriptEnableSigHashForkID

const (
	// SigHashForkID is the sighash flag that selects the replay protected
	// signature digest.
	SigHashForkID txscript.SigHashType = 0x40

	// SigHashDefault is the sighash type used when none is given.
	SigHashDefault = txscript.SigHashAll | SigHashForkID
)

// hasFlag returns whether flags has the given flag set.
func (f ScriptFlags) hasFlag(flag ScriptFlags) bool {
	return f&flag == flag
}
