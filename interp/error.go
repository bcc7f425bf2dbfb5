package interp

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of script verification failure.
type ErrorCode int

const (
	// ErrInternal is returned if internal consistency checks fail.
	ErrInternal ErrorCode = iota

	// ErrEvalFalse is returned when the script evaluated without error but
	// terminated with a false top stack element.
	ErrEvalFalse

	// ErrEmptyStack is returned when the script evaluated without error,
	// but terminated with an empty top stack element.
	ErrEmptyStack

	// ErrMalformedPush is returned when a data push opcode tries to push
	// more bytes than are left in the script.
	ErrMalformedPush

	// ErrUnsupportedOpcode is returned when a script contains an opcode
	// outside of the set needed to evaluate the standard templates.
	ErrUnsupportedOpcode

	// ErrEarlyReturn is returned when OP_RETURN is executed.
	ErrEarlyReturn

	// ErrInvalidStackOperation is returned when an opcode requires more
	// items than are on the stack.
	ErrInvalidStackOperation

	// ErrVerify is returned when OP_VERIFY is encountered with a false top
	// stack item.
	ErrVerify

	// ErrEqualVerify is returned when OP_EQUALVERIFY fails.
	ErrEqualVerify

	// ErrCheckSigVerify is returned when OP_CHECKSIGVERIFY fails.
	ErrCheckSigVerify

	// ErrCheckMultiSigVerify is returned when OP_CHECKMULTISIGVERIFY
	// fails.
	ErrCheckMultiSigVerify

	// ErrNumberTooBig is returned when a numeric stack item exceeds four
	// bytes.
	ErrNumberTooBig

	// ErrMinimalData is returned when a push or a number is not minimally
	// encoded.
	ErrMinimalData

	// ErrInvalidPubKeyCount is returned when the number of public keys
	// given to CHECKMULTISIG is negative or too large.
	ErrInvalidPubKeyCount

	// ErrInvalidSignatureCount is returned when the number of signatures
	// given to CHECKMULTISIG is negative or exceeds the number of keys.
	ErrInvalidSignatureCount

	// ErrSigNullDummy is returned when the CHECKMULTISIG dummy element is
	// not empty and StrictMultiSig is set.
	ErrSigNullDummy

	// ErrNullFail is returned when a failed signature check was given a
	// non-empty signature and NullFail is set.
	ErrNullFail

	// ErrSigHashType is returned when a signature has an unknown or
	// disallowed sighash type.
	ErrSigHashType

	// ErrSigDER is returned when a signature is not canonically DER
	// encoded.
	ErrSigDER

	// ErrSigHighS is returned when a signature S value is above half the
	// group order and LowS is set.
	ErrSigHighS

	// ErrPubKeyType is returned when a public key is neither compressed nor
	// uncompressed and StrictEncoding is set.
	ErrPubKeyType

	// ErrNotPushOnly is returned when a signature script contains
	// non-push opcodes where only pushes are permitted.
	ErrNotPushOnly

	// ErrCleanStack is returned when more than one item remains on the
	// stack after evaluation and CleanStack is set.
	ErrCleanStack

	// ErrScriptSize is returned when a script exceeds the size limit.
	ErrScriptSize

	// ErrElementTooBig is returned when a pushed element exceeds the
	// element size limit.
	ErrElementTooBig

	// ErrStackOverflow is returned when the stack grows past its limit.
	ErrStackOverflow
)

var errorCodeStrings = map[ErrorCode]string{
	ErrInternal:              "ErrInternal",
	ErrEvalFalse:             "ErrEvalFalse",
	ErrEmptyStack:            "ErrEmptyStack",
	ErrMalformedPush:         "ErrMalformedPush",
	ErrUnsupportedOpcode:     "ErrUnsupportedOpcode",
	ErrEarlyReturn:           "ErrEarlyReturn",
	ErrInvalidStackOperation: "ErrInvalidStackOperation",
	ErrVerify:                "ErrVerify",
	ErrEqualVerify:           "ErrEqualVerify",
	ErrCheckSigVerify:        "ErrCheckSigVerify",
	ErrCheckMultiSigVerify:   "ErrCheckMultiSigVerify",
	ErrNumberTooBig:          "ErrNumberTooBig",
	ErrMinimalData:           "ErrMinimalData",
	ErrInvalidPubKeyCount:    "ErrInvalidPubKeyCount",
	ErrInvalidSignatureCount: "ErrInvalidSignatureCount",
	ErrSigNullDummy:          "ErrSigNullDummy",
	ErrNullFail:              "ErrNullFail",
	ErrSigHashType:           "ErrSigHashType",
	ErrSigDER:                "ErrSigDER",
	ErrSigHighS:              "ErrSigHighS",
	ErrPubKeyType:            "ErrPubKeyType",
	ErrNotPushOnly:           "ErrNotPushOnly",
	ErrCleanStack:            "ErrCleanStack",
	ErrScriptSize:            "ErrScriptSize",
	ErrElementTooBig:         "ErrElementTooBig",
	ErrStackOverflow:         "ErrStackOverflow",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a script verification failure. The caller can use type
// assertions or IsErrorCode to access the ErrorCode field to ascertain the
// specific reason for the failure.
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// scriptError creates an Error given a set of arguments.
func scriptError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not the provided error is a script error
// with the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var serr Error
	if errors.As(err, &serr) {
		return serr.ErrorCode == c
	}
	return false
}
