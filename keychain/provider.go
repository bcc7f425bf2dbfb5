package keychain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// SigningProvider is the source of key material consulted while solving a
// script. Lookups signal failure by returning None; a missing entry is an
// ordinary outcome, never an error.
type SigningProvider interface {
	// GetScript returns the script with the given id.
	GetScript(id ScriptID) fn.Option[[]byte]

	// GetPubKey returns the serialized public key with the given id.
	GetPubKey(id KeyID) fn.Option[[]byte]

	// GetKey returns the private key for the given id.
	GetKey(id KeyID) fn.Option[*btcec.PrivateKey]

	// GetKeyOrigin returns the derivation origin of the given key.
	GetKeyOrigin(id KeyID) fn.Option[KeyOriginInfo]
}

// EmptySigningProvider knows nothing. It is the safe default when no key
// material is available.
type EmptySigningProvider struct{}

// A compile time check to ensure EmptySigningProvider implements the
// SigningProvider interface.
var _ SigningProvider = EmptySigningProvider{}

// GetScript always returns None.
func (EmptySigningProvider) GetScript(ScriptID) fn.Option[[]byte] {
	return fn.None[[]byte]()
}

// GetPubKey always returns None.
func (EmptySigningProvider) GetPubKey(KeyID) fn.Option[[]byte] {
	return fn.None[[]byte]()
}

// GetKey always returns None.
func (EmptySigningProvider) GetKey(KeyID) fn.Option[*btcec.PrivateKey] {
	return fn.None[*btcec.PrivateKey]()
}

// GetKeyOrigin always returns None.
func (EmptySigningProvider) GetKeyOrigin(KeyID) fn.Option[KeyOriginInfo] {
	return fn.None[KeyOriginInfo]()
}

// HidingSigningProvider forwards lookups to another provider but can refuse
// to hand out private keys and/or key origins. It is used to build
// providers that only expose public data.
type HidingSigningProvider struct {
	provider   SigningProvider
	hideSecret bool
	hideOrigin bool
}

// A compile time check to ensure HidingSigningProvider implements the
// SigningProvider interface.
var _ SigningProvider = (*HidingSigningProvider)(nil)

// NewHidingSigningProvider wraps provider, hiding private keys if hideSecret
// is set and key origins if hideOrigin is set.
func NewHidingSigningProvider(provider SigningProvider, hideSecret,
	hideOrigin bool) *HidingSigningProvider {

	return &HidingSigningProvider{
		provider:   provider,
		hideSecret: hideSecret,
		hideOrigin: hideOrigin,
	}
}

// GetScript forwards to the wrapped provider.
func (h *HidingSigningProvider) GetScript(id ScriptID) fn.Option[[]byte] {
	return h.provider.GetScript(id)
}

// GetPubKey forwards to the wrapped provider.
func (h *HidingSigningProvider) GetPubKey(id KeyID) fn.Option[[]byte] {
	return h.provider.GetPubKey(id)
}

// GetKey forwards to the wrapped provider unless secrets are hidden.
func (h *HidingSigningProvider) GetKey(id KeyID) fn.Option[*btcec.PrivateKey] {
	if h.hideSecret {
		return fn.None[*btcec.PrivateKey]()
	}
	return h.provider.GetKey(id)
}

// GetKeyOrigin forwards to the wrapped provider unless origins are hidden.
func (h *HidingSigningProvider) GetKeyOrigin(
	id KeyID) fn.Option[KeyOriginInfo] {

	if h.hideOrigin {
		return fn.None[KeyOriginInfo]()
	}
	return h.provider.GetKeyOrigin(id)
}
