package interp

import (
	"github.com/btcsuite/btcd/txscript"
)

// Solution is the result of classifying an output script: its class and the
// raw data elements embedded in it.
type Solution struct {
	// Class is one of NonStandardTy, NullDataTy, PubKeyTy, PubKeyHashTy,
	// ScriptHashTy or MultiSigTy. Witness programs and any other class are
	// reported as NonStandardTy.
	Class txscript.ScriptClass

	// Data holds the public key for PubKeyTy, the 20-byte hash for
	// PubKeyHashTy and ScriptHashTy, and the listed public keys in script
	// order for MultiSigTy.
	Data [][]byte

	// Required is the signature threshold of a MultiSigTy script.
	Required int
}

// Solve classifies script and extracts its data elements.
func Solve(script []byte) Solution {
	nonStandard := Solution{Class: txscript.NonStandardTy}

	class := txscript.GetScriptClass(script)
	switch class {
	case txscript.PubKeyTy, txscript.PubKeyHashTy, txscript.ScriptHashTy:
		data, err := txscript.PushedData(script)
		if err != nil || len(data) != 1 {
			return nonStandard
		}

		return Solution{Class: class, Data: data}

	case txscript.MultiSigTy:
		numPubKeys, required, err := txscript.CalcMultiSigStats(script)
		if err != nil {
			return nonStandard
		}

		pubKeys, err := txscript.PushedData(script)
		if err != nil || len(pubKeys) != numPubKeys {
			return nonStandard
		}

		return Solution{
			Class:    class,
			Data:     pubKeys,
			Required: required,
		}

	case txscript.NullDataTy:
		return Solution{Class: class}

	default:
		return nonStandard
	}
}
