package input

import (
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
)

// MockCreator wraps a SignatureCreator and counts how often it is asked for
// a signature.
type MockCreator struct {
	SignatureCreator

	calls atomic.Int32
}

// NewMockCreator wraps creator.
func NewMockCreator(creator SignatureCreator) *MockCreator {
	return &MockCreator{SignatureCreator: creator}
}

// Checker returns the wrapped creator's checker.
func (m *MockCreator) Checker() interp.SignatureChecker {
	return m.SignatureCreator.Checker()
}

// CreateSig counts the call and forwards it.
func (m *MockCreator) CreateSig(provider keychain.SigningProvider,
	keyID keychain.KeyID, scriptCode []byte) fn.Option[[]byte] {

	m.calls.Add(1)

	return m.SignatureCreator.CreateSig(provider, keyID, scriptCode)
}

// Calls returns the number of CreateSig calls so far.
func (m *MockCreator) Calls() int {
	return int(m.calls.Load())
}
