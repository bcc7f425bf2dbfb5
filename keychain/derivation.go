package keychain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// KeyID is the Hash160 of a serialized public key, exactly as the key
// appears in scripts. It identifies keys in every provider lookup.
type KeyID [20]byte

// NewKeyID returns the KeyID of a serialized public key.
func NewKeyID(pubKey []byte) KeyID {
	var id KeyID
	copy(id[:], btcutil.Hash160(pubKey))
	return id
}

// KeyIDFromHash converts a 20-byte hash, such as the one embedded in a
// pay-to-pubkey-hash script, into a KeyID.
func KeyIDFromHash(hash []byte) (KeyID, error) {
	var id KeyID
	if len(hash) != len(id) {
		return id, fmt.Errorf("invalid key hash length %d", len(hash))
	}
	copy(id[:], hash)
	return id, nil
}

// String returns the hex encoding of the id.
func (k KeyID) String() string {
	return hex.EncodeToString(k[:])
}

// ScriptID is the Hash160 of a script, as committed to by pay-to-script-hash
// outputs.
type ScriptID [20]byte

// NewScriptID returns the ScriptID of a serialized script.
func NewScriptID(script []byte) ScriptID {
	var id ScriptID
	copy(id[:], btcutil.Hash160(script))
	return id
}

// ScriptIDFromHash converts a 20-byte script hash into a ScriptID.
func ScriptIDFromHash(hash []byte) (ScriptID, error) {
	var id ScriptID
	if len(hash) != len(id) {
		return id, fmt.Errorf("invalid script hash length %d",
			len(hash))
	}
	copy(id[:], hash)
	return id, nil
}

// String returns the hex encoding of the id.
func (s ScriptID) String() string {
	return hex.EncodeToString(s[:])
}

// KeyOriginInfo describes where a key came from: the fingerprint of the
// master key it was derived from and the BIP32 path used. It is advisory
// and never needed to produce a valid signature.
type KeyOriginInfo struct {
	// Fingerprint is the first four bytes of the Hash160 of the master
	// public key.
	Fingerprint [4]byte

	// Path is the derivation path from the master key. Hardened steps
	// have hdkeychain.HardenedKeyStart added.
	Path []uint32
}

// String renders the origin in the common fingerprint/path notation, for
// example d34db33f/44'/0'/0'/0/1.
func (k KeyOriginInfo) String() string {
	var b strings.Builder
	b.WriteString(hex.EncodeToString(k.Fingerprint[:]))
	for _, step := range k.Path {
		b.WriteByte('/')
		if step >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(step-hdkeychain.HardenedKeyStart), 10,
			))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(step), 10))
	}

	return b.String()
}

// ParseDerivationPath parses a path such as m/44'/0'/0'/0/1 or 44h/0h/1. The
// leading "m" is optional.
func ParseDerivationPath(path string) ([]uint32, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "m")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	parts := strings.Split(path, "/")
	steps := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") ||
			strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path element %q: %w",
				part, err)
		}
		if index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("path element %d out of range",
				index)
		}

		step := uint32(index)
		if hardened {
			step += hdkeychain.HardenedKeyStart
		}
		steps = append(steps, step)
	}

	return steps, nil
}

// masterFingerprint returns the BIP32 fingerprint of an extended key.
func masterFingerprint(master *hdkeychain.ExtendedKey) ([4]byte, error) {
	var fingerprint [4]byte

	pubKey, err := master.ECPubKey()
	if err != nil {
		return fingerprint, err
	}
	copy(fingerprint[:], btcutil.Hash160(pubKey.SerializeCompressed()))

	return fingerprint, nil
}
