package input

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/txsign/keychain"
)

// SigPair is a signature together with the public key that produced it. The
// signature includes its trailing sighash byte.
type SigPair struct {
	PubKey    []byte
	Signature []byte
}

// PubKeyOrigin is a public key seen while signing, along with its origin.
type PubKeyOrigin struct {
	PubKey []byte
	Origin keychain.KeyOriginInfo
}

// SignatureData accumulates the signing state of a single input across
// solving, extraction and merging. A record belongs to one input for one
// signing round and must not be shared between goroutines while in use.
type SignatureData struct {
	// ScriptSig is the latest assembled unlocking script.
	ScriptSig []byte

	// RedeemScript is the pay-to-script-hash redeem script, once known.
	// It is never cleared.
	RedeemScript []byte

	// Signatures holds at most one signature per key.
	Signatures map[keychain.KeyID]SigPair

	// MiscPubKeys caches public keys and origins learned from the
	// provider.
	MiscPubKeys map[keychain.KeyID]PubKeyOrigin

	// MissingPubKeys lists keys whose public key could not be found.
	MissingPubKeys []keychain.KeyID

	// MissingSigs lists keys a signature was needed from but could not be
	// created.
	MissingSigs []keychain.KeyID

	// MissingRedeemScript is the id of a redeem script that could not be
	// found.
	MissingRedeemScript fn.Option[keychain.ScriptID]

	// Complete is set once ScriptSig verifies against the spent output.
	Complete bool
}

// NewSignatureData returns an empty record.
func NewSignatureData() *SignatureData {
	return &SignatureData{
		Signatures:  make(map[keychain.KeyID]SigPair),
		MiscPubKeys: make(map[keychain.KeyID]PubKeyOrigin),
	}
}

// init makes the maps of a zero value record usable.
func (s *SignatureData) init() {
	if s.Signatures == nil {
		s.Signatures = make(map[keychain.KeyID]SigPair)
	}
	if s.MiscPubKeys == nil {
		s.MiscPubKeys = make(map[keychain.KeyID]PubKeyOrigin)
	}
}

// Merge folds other into s. A complete record is never changed, and a
// complete other replaces an incomplete s entirely. Otherwise the redeem
// script is taken from other if s has none, and the signatures and cached
// public keys are unioned with the entries already in s taking precedence.
// The missing lists of s are kept as they are.
func (s *SignatureData) Merge(other *SignatureData) {
	if s.Complete {
		return
	}
	if other.Complete {
		*s = *other.Copy()
		return
	}

	s.init()

	if len(s.RedeemScript) == 0 && len(other.RedeemScript) != 0 {
		s.RedeemScript = bytes.Clone(other.RedeemScript)
	}
	for id, pair := range other.Signatures {
		if _, ok := s.Signatures[id]; !ok {
			s.Signatures[id] = pair
		}
	}
	for id, pubKey := range other.MiscPubKeys {
		if _, ok := s.MiscPubKeys[id]; !ok {
			s.MiscPubKeys[id] = pubKey
		}
	}
}

// Copy returns a deep copy of the record.
func (s *SignatureData) Copy() *SignatureData {
	c := &SignatureData{
		ScriptSig:           bytes.Clone(s.ScriptSig),
		RedeemScript:        bytes.Clone(s.RedeemScript),
		Signatures:          make(map[keychain.KeyID]SigPair),
		MiscPubKeys:         make(map[keychain.KeyID]PubKeyOrigin),
		MissingRedeemScript: s.MissingRedeemScript,
		Complete:            s.Complete,
	}
	c.MissingPubKeys = append(c.MissingPubKeys, s.MissingPubKeys...)
	c.MissingSigs = append(c.MissingSigs, s.MissingSigs...)
	for id, pair := range s.Signatures {
		c.Signatures[id] = pair
	}
	for id, pubKey := range s.MiscPubKeys {
		c.MiscPubKeys[id] = pubKey
	}

	return c
}

// MergeSignatureData returns the merge of a and b without modifying either.
func MergeSignatureData(a, b *SignatureData) *SignatureData {
	merged := a.Copy()
	merged.Merge(b)

	return merged
}

// UpdateInput installs the record's unlocking script on txIn.
func UpdateInput(txIn *wire.TxIn, data *SignatureData) {
	txIn.SignatureScript = bytes.Clone(data.ScriptSig)
}
