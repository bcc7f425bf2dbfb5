package keychain

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// FlatSigningProvider is an in-memory SigningProvider backed by plain maps.
// It is safe for concurrent use.
type FlatSigningProvider struct {
	mu sync.RWMutex

	scripts map[ScriptID][]byte
	pubKeys map[KeyID][]byte
	keys    map[KeyID]*btcec.PrivateKey
	origins map[KeyID]KeyOriginInfo
}

// A compile time check to ensure FlatSigningProvider implements the
// SigningProvider interface.
var _ SigningProvider = (*FlatSigningProvider)(nil)

// NewFlatSigningProvider returns an empty flat provider.
func NewFlatSigningProvider() *FlatSigningProvider {
	return &FlatSigningProvider{
		scripts: make(map[ScriptID][]byte),
		pubKeys: make(map[KeyID][]byte),
		keys:    make(map[KeyID]*btcec.PrivateKey),
		origins: make(map[KeyID]KeyOriginInfo),
	}
}

// GetScript returns the script with the given id.
func (f *FlatSigningProvider) GetScript(id ScriptID) fn.Option[[]byte] {
	f.mu.RLock()
	defer f.mu.RUnlock()

	script, ok := f.scripts[id]
	if !ok {
		return fn.None[[]byte]()
	}
	return fn.Some(bytes.Clone(script))
}

// GetPubKey returns the serialized public key with the given id.
func (f *FlatSigningProvider) GetPubKey(id KeyID) fn.Option[[]byte] {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pubKey, ok := f.pubKeys[id]
	if !ok {
		return fn.None[[]byte]()
	}
	return fn.Some(bytes.Clone(pubKey))
}

// GetKey returns the private key for the given id.
func (f *FlatSigningProvider) GetKey(id KeyID) fn.Option[*btcec.PrivateKey] {
	f.mu.RLock()
	defer f.mu.RUnlock()

	key, ok := f.keys[id]
	if !ok {
		return fn.None[*btcec.PrivateKey]()
	}
	return fn.Some(key)
}

// GetKeyOrigin returns the derivation origin of the given key.
func (f *FlatSigningProvider) GetKeyOrigin(id KeyID) fn.Option[KeyOriginInfo] {
	f.mu.RLock()
	defer f.mu.RUnlock()

	origin, ok := f.origins[id]
	if !ok {
		return fn.None[KeyOriginInfo]()
	}
	return fn.Some(origin)
}

// AddScript stores script under its ScriptID and returns that id.
func (f *FlatSigningProvider) AddScript(script []byte) ScriptID {
	id := NewScriptID(script)

	f.mu.Lock()
	f.scripts[id] = bytes.Clone(script)
	f.mu.Unlock()

	return id
}

// AddPubKey stores a serialized public key under its KeyID and returns that
// id. The encoding is kept as given, so compressed and uncompressed forms of
// the same key get distinct ids.
func (f *FlatSigningProvider) AddPubKey(pubKey []byte) KeyID {
	id := NewKeyID(pubKey)

	f.mu.Lock()
	f.pubKeys[id] = bytes.Clone(pubKey)
	f.mu.Unlock()

	return id
}

// AddKey stores a private key together with its public key. The compressed
// flag selects the public key encoding, and therefore the KeyID, the key is
// filed under.
func (f *FlatSigningProvider) AddKey(key *btcec.PrivateKey,
	compressed bool) KeyID {

	var pubKey []byte
	if compressed {
		pubKey = key.PubKey().SerializeCompressed()
	} else {
		pubKey = key.PubKey().SerializeUncompressed()
	}
	id := NewKeyID(pubKey)

	f.mu.Lock()
	f.keys[id] = key
	f.pubKeys[id] = pubKey
	f.mu.Unlock()

	return id
}

// AddWIF decodes a WIF-encoded private key and stores it.
func (f *FlatSigningProvider) AddWIF(encoded string) (KeyID, error) {
	wif, err := btcutil.DecodeWIF(encoded)
	if err != nil {
		return KeyID{}, fmt.Errorf("unable to decode wif: %w", err)
	}

	return f.AddKey(wif.PrivKey, wif.CompressPubKey), nil
}

// AddKeyOrigin records the origin of the key with the given id.
func (f *FlatSigningProvider) AddKeyOrigin(id KeyID, origin KeyOriginInfo) {
	origin.Path = append([]uint32(nil), origin.Path...)

	f.mu.Lock()
	f.origins[id] = origin
	f.mu.Unlock()
}

// AddExtendedKey derives the child of master at path and stores it along
// with its origin. A public extended key only contributes the public key.
func (f *FlatSigningProvider) AddExtendedKey(master *hdkeychain.ExtendedKey,
	path []uint32) (KeyID, error) {

	fingerprint, err := masterFingerprint(master)
	if err != nil {
		return KeyID{}, err
	}

	child := master
	for _, step := range path {
		child, err = child.Derive(step)
		if err != nil {
			return KeyID{}, fmt.Errorf("unable to derive %d: %w",
				step, err)
		}
	}

	var id KeyID
	if child.IsPrivate() {
		privKey, err := child.ECPrivKey()
		if err != nil {
			return KeyID{}, err
		}
		id = f.AddKey(privKey, true)
	} else {
		pubKey, err := child.ECPubKey()
		if err != nil {
			return KeyID{}, err
		}
		id = f.AddPubKey(pubKey.SerializeCompressed())
	}

	f.AddKeyOrigin(id, KeyOriginInfo{
		Fingerprint: fingerprint,
		Path:        path,
	})

	return id, nil
}

// MergeProviders returns a new provider holding the union of a and b. When
// both hold an entry under the same id, b's entry is kept. Each of the four
// maps is merged independently.
func MergeProviders(a, b *FlatSigningProvider) *FlatSigningProvider {
	merged := NewFlatSigningProvider()
	for _, p := range []*FlatSigningProvider{a, b} {
		p.mu.RLock()
		for id, script := range p.scripts {
			merged.scripts[id] = script
		}
		for id, pubKey := range p.pubKeys {
			merged.pubKeys[id] = pubKey
		}
		for id, key := range p.keys {
			merged.keys[id] = key
		}
		for id, origin := range p.origins {
			merged.origins[id] = origin
		}
		p.mu.RUnlock()
	}

	return merged
}
