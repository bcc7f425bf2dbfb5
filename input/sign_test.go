package input

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testAmount = 50_000

// testPrivKey returns the i-th deterministic test key.
func testPrivKey(i int) *btcec.PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(chainhash.HashB([]byte{byte(i)}))
	return key
}

// testPubKey returns the compressed public key of the i-th test key.
func testPubKey(i int) []byte {
	return testPrivKey(i).PubKey().SerializeCompressed()
}

// keyProvider returns a provider holding the private keys with the given
// indexes.
func keyProvider(idxs ...int) *keychain.FlatSigningProvider {
	p := keychain.NewFlatSigningProvider()
	for _, i := range idxs {
		p.AddKey(testPrivKey(i), true)
	}

	return p
}

func p2pkScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddData(pubKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	return script
}

func p2pkhScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	return script
}

func multiSigScript(t *testing.T, required int, pubKeys ...[]byte) []byte {
	t.Helper()

	builder := txscript.NewScriptBuilder().AddInt64(int64(required))
	for _, pubKey := range pubKeys {
		builder.AddData(pubKey)
	}
	script, err := builder.
		AddInt64(int64(len(pubKeys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	return script
}

func p2shScript(t *testing.T, redeemScript []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	require.NoError(t, err)

	return script
}

// fundingTx returns a transaction paying testAmount to pkScript.
func fundingTx(pkScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}},
	})
	tx.AddTxOut(wire.NewTxOut(testAmount, pkScript))

	return tx
}

// spendingTx returns a transaction spending the first output of prevTx.
func spendingTx(prevTx *wire.MsgTx) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevTx.TxHash()},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(testAmount-1_000, []byte{txscript.OP_TRUE}))

	return tx
}

// newCreator returns a real creator for the first input of tx.
func newCreator(t *testing.T, tx *wire.MsgTx) *TxSignatureCreator {
	t.Helper()

	creator, err := NewTxSignatureCreator(
		tx, 0, testAmount, interp.SigHashDefault,
	)
	require.NoError(t, err)

	return creator
}

// requireVerifies asserts that input 0 of tx validly spends pkScript.
func requireVerifies(t *testing.T, tx *wire.MsgTx, pkScript []byte) {
	t.Helper()

	checker, err := interp.NewTxSigChecker(tx, 0, testAmount)
	require.NoError(t, err)

	err = interp.VerifyScript(
		tx.TxIn[0].SignatureScript, pkScript,
		interp.StandardVerifyFlags, checker,
	)
	require.NoError(t, err)
}

// scriptElements decodes a push only script.
func scriptElements(t *testing.T, script []byte) [][]byte {
	t.Helper()

	elements, ok := interp.PushedStack(script)
	require.True(t, ok)

	return elements
}

// TestProduceSignatureSingleKey checks the pay-to-pubkey and
// pay-to-pubkey-hash templates with the key available.
func TestProduceSignatureSingleKey(t *testing.T) {
	t.Parallel()

	pubKey := testPubKey(0)

	tests := []struct {
		name        string
		pkScript    []byte
		numElements int
	}{
		{
			name:        "p2pk",
			pkScript:    p2pkScript(t, pubKey),
			numElements: 1,
		},
		{
			name:        "p2pkh",
			pkScript:    p2pkhScript(t, pubKey),
			numElements: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tx := spendingTx(fundingTx(tc.pkScript))
			data := NewSignatureData()

			complete := ProduceSignature(
				keyProvider(0), newCreator(t, tx), tc.pkScript,
				data,
			)
			require.True(t, complete)
			require.True(t, data.Complete)
			require.Len(t, data.Signatures, 1)

			elements := scriptElements(t, data.ScriptSig)
			require.Len(t, elements, tc.numElements)

			pair := data.Signatures[keychain.NewKeyID(pubKey)]
			require.Equal(t, pair.Signature, elements[0])
			require.Equal(
				t, byte(interp.SigHashDefault),
				elements[0][len(elements[0])-1],
			)
			if tc.numElements == 2 {
				require.Equal(t, pubKey, elements[1])
			}

			UpdateInput(tx.TxIn[0], data)
			requireVerifies(t, tx, tc.pkScript)
		})
	}
}

// TestProduceSignatureIdempotent checks that signing a complete record again
// changes nothing and creates no signatures.
func TestProduceSignatureIdempotent(t *testing.T) {
	t.Parallel()

	pkScript := multiSigScript(t, 2, testPubKey(0), testPubKey(1))
	tx := spendingTx(fundingTx(pkScript))
	creator := NewMockCreator(newCreator(t, tx))
	provider := keyProvider(0, 1)

	data := NewSignatureData()
	require.True(t, ProduceSignature(provider, creator, pkScript, data))
	require.Equal(t, 2, creator.Calls())

	before := data.Copy()
	require.True(t, ProduceSignature(provider, creator, pkScript, data))
	require.Equal(t, 2, creator.Calls())
	require.Equal(t, before, data)
}

// TestProduceSignatureReusesSignatures checks that a key with a recorded
// signature is never asked to sign again.
func TestProduceSignatureReusesSignatures(t *testing.T) {
	t.Parallel()

	pkScript := multiSigScript(t, 2, testPubKey(0), testPubKey(1))
	tx := spendingTx(fundingTx(pkScript))

	first := NewSignatureData()
	require.False(t, ProduceSignature(
		keyProvider(0), newCreator(t, tx), pkScript, first,
	))
	require.Len(t, first.Signatures, 1)

	creator := NewMockCreator(newCreator(t, tx))
	require.True(t, ProduceSignature(
		keyProvider(1), creator, pkScript, first,
	))
	require.Equal(t, 1, creator.Calls())
	require.Len(t, first.Signatures, 2)
}

// TestProduceSignatureMultiSig checks the stack shape of multisig
// solutions with varying numbers of available keys.
func TestProduceSignatureMultiSig(t *testing.T) {
	t.Parallel()

	pubKeys := [][]byte{testPubKey(0), testPubKey(1), testPubKey(2)}
	pkScript := multiSigScript(t, 2, pubKeys...)

	tests := []struct {
		name     string
		keys     []int
		complete bool

		// signers holds, per element after the leading empty one,
		// the index of the key whose signature is expected, or -1 for
		// an empty element.
		signers []int
	}{
		{
			name:     "all keys",
			keys:     []int{0, 1, 2},
			complete: true,
			signers:  []int{0, 1},
		},
		{
			name:     "first and last",
			keys:     []int{2, 0},
			complete: true,
			signers:  []int{0, 2},
		},
		{
			name:     "last two",
			keys:     []int{1, 2},
			complete: true,
			signers:  []int{1, 2},
		},
		{
			name:    "one key",
			keys:    []int{1},
			signers: []int{1, -1},
		},
		{
			name:    "no keys",
			signers: []int{-1, -1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tx := spendingTx(fundingTx(pkScript))
			data := NewSignatureData()

			complete := ProduceSignature(
				keyProvider(tc.keys...), newCreator(t, tx),
				pkScript, data,
			)
			require.Equal(t, tc.complete, complete)

			elements := scriptElements(t, data.ScriptSig)
			require.Len(t, elements, 3)
			require.Empty(t, elements[0])

			for i, signer := range tc.signers {
				element := elements[i+1]
				if signer < 0 {
					require.Empty(t, element)
					continue
				}

				id := keychain.NewKeyID(pubKeys[signer])
				require.Equal(
					t, data.Signatures[id].Signature,
					element,
				)
			}

			// Keys that were tried without success are reported.
			if !tc.complete {
				require.Len(t, data.MissingSigs, 3-len(tc.keys))
			}
		})
	}
}

// TestProduceSignatureMissingData checks the diagnostics recorded when
// keys or scripts are unavailable.
func TestProduceSignatureMissingData(t *testing.T) {
	t.Parallel()

	pubKey := testPubKey(0)
	keyID := keychain.NewKeyID(pubKey)

	t.Run("missing pubkey", func(t *testing.T) {
		t.Parallel()

		pkScript := p2pkhScript(t, pubKey)
		tx := spendingTx(fundingTx(pkScript))
		data := NewSignatureData()

		require.False(t, ProduceSignature(
			keychain.EmptySigningProvider{}, newCreator(t, tx),
			pkScript, data,
		))
		require.Equal(t, []keychain.KeyID{keyID}, data.MissingPubKeys)
		require.Empty(t, data.MissingSigs)
		require.Empty(t, data.ScriptSig)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()

		pkScript := p2pkhScript(t, pubKey)
		tx := spendingTx(fundingTx(pkScript))
		data := NewSignatureData()

		provider := keychain.NewHidingSigningProvider(
			keyProvider(0), true, false,
		)
		require.False(t, ProduceSignature(
			provider, newCreator(t, tx), pkScript, data,
		))
		require.Empty(t, data.MissingPubKeys)
		require.Equal(t, []keychain.KeyID{keyID}, data.MissingSigs)
	})

	t.Run("missing redeem script", func(t *testing.T) {
		t.Parallel()

		redeemScript := p2pkhScript(t, pubKey)
		pkScript := p2shScript(t, redeemScript)
		tx := spendingTx(fundingTx(pkScript))
		data := NewSignatureData()

		require.False(t, ProduceSignature(
			keyProvider(0), newCreator(t, tx), pkScript, data,
		))
		require.Equal(
			t, keychain.NewScriptID(redeemScript),
			data.MissingRedeemScript.UnwrapOr(keychain.ScriptID{}),
		)
		require.Empty(t, data.RedeemScript)
	})
}

// TestProduceSignatureKeyOrigin checks that key origins known to the
// provider are cached on the record.
func TestProduceSignatureKeyOrigin(t *testing.T) {
	t.Parallel()

	provider := keyProvider(0)
	keyID := keychain.NewKeyID(testPubKey(0))
	origin := keychain.KeyOriginInfo{
		Fingerprint: [4]byte{1, 2, 3, 4},
		Path:        []uint32{0, 1},
	}
	provider.AddKeyOrigin(keyID, origin)

	pkScript := p2pkhScript(t, testPubKey(0))
	tx := spendingTx(fundingTx(pkScript))
	data := NewSignatureData()
	require.True(t, ProduceSignature(
		provider, newCreator(t, tx), pkScript, data,
	))

	misc, ok := data.MiscPubKeys[keyID]
	require.True(t, ok)
	require.Equal(t, testPubKey(0), misc.PubKey)
	require.Equal(t, origin, misc.Origin)
}

// TestProduceSignatureKeyOriginKept checks that an origin already cached on
// the record is not replaced by the provider's.
func TestProduceSignatureKeyOriginKept(t *testing.T) {
	t.Parallel()

	provider := keyProvider(0)
	keyID := keychain.NewKeyID(testPubKey(0))
	provider.AddKeyOrigin(keyID, keychain.KeyOriginInfo{
		Fingerprint: [4]byte{1, 2, 3, 4},
		Path:        []uint32{0, 1},
	})

	cached := PubKeyOrigin{
		PubKey: testPubKey(0),
		Origin: keychain.KeyOriginInfo{
			Fingerprint: [4]byte{9, 9, 9, 9},
			Path:        []uint32{7},
		},
	}

	pkScript := p2pkScript(t, testPubKey(0))
	tx := spendingTx(fundingTx(pkScript))
	data := NewSignatureData()
	data.MiscPubKeys[keyID] = cached
	require.True(t, ProduceSignature(
		provider, newCreator(t, tx), pkScript, data,
	))

	require.Len(t, data.Signatures, 1)
	require.Equal(t, cached, data.MiscPubKeys[keyID])
}

// TestProduceSignatureP2SH checks script hash spends, including the
// rejection of a script hash nested in another.
func TestProduceSignatureP2SH(t *testing.T) {
	t.Parallel()

	pubKey := testPubKey(0)

	t.Run("p2pkh redeem script", func(t *testing.T) {
		t.Parallel()

		redeemScript := p2pkhScript(t, pubKey)
		pkScript := p2shScript(t, redeemScript)
		tx := spendingTx(fundingTx(pkScript))

		provider := keyProvider(0)
		provider.AddScript(redeemScript)

		data := NewSignatureData()
		require.True(t, ProduceSignature(
			provider, newCreator(t, tx), pkScript, data,
		))
		require.Equal(t, redeemScript, data.RedeemScript)

		elements := scriptElements(t, data.ScriptSig)
		require.Len(t, elements, 3)
		require.Equal(
			t, data.Signatures[keychain.NewKeyID(pubKey)].Signature,
			elements[0],
		)
		require.Equal(t, pubKey, elements[1])
		require.Equal(t, redeemScript, elements[2])

		UpdateInput(tx.TxIn[0], data)
		requireVerifies(t, tx, pkScript)
	})

	t.Run("redeem script from record", func(t *testing.T) {
		t.Parallel()

		redeemScript := multiSigScript(
			t, 1, testPubKey(1), testPubKey(0),
		)
		pkScript := p2shScript(t, redeemScript)
		tx := spendingTx(fundingTx(pkScript))

		data := NewSignatureData()
		data.RedeemScript = redeemScript
		require.True(t, ProduceSignature(
			keyProvider(0), newCreator(t, tx), pkScript, data,
		))

		elements := scriptElements(t, data.ScriptSig)
		require.Len(t, elements, 3)
		require.Empty(t, elements[0])
		require.Equal(t, redeemScript, elements[2])
	})

	t.Run("nested script hash", func(t *testing.T) {
		t.Parallel()

		inner := p2pkhScript(t, pubKey)
		redeemScript := p2shScript(t, inner)
		pkScript := p2shScript(t, redeemScript)
		tx := spendingTx(fundingTx(pkScript))

		provider := keyProvider(0)
		provider.AddScript(inner)
		provider.AddScript(redeemScript)

		data := NewSignatureData()
		require.False(t, ProduceSignature(
			provider, newCreator(t, tx), pkScript, data,
		))
		require.False(t, data.Complete)
		require.Equal(t, redeemScript, data.RedeemScript)
	})
}

// TestProduceSignatureUnsupported checks that data carrier and
// non-standard scripts are never solved.
func TestProduceSignatureUnsupported(t *testing.T) {
	t.Parallel()

	nullData, err := txscript.NullDataScript([]byte("txsign"))
	require.NoError(t, err)

	for _, pkScript := range [][]byte{
		nullData,
		{txscript.OP_TRUE},
		{txscript.OP_1, txscript.OP_1, txscript.OP_ADD},
	} {
		tx := spendingTx(fundingTx(pkScript))
		data := NewSignatureData()
		require.False(t, ProduceSignature(
			keyProvider(0), newCreator(t, tx), pkScript, data,
		))
		require.Empty(t, data.ScriptSig)
	}
}

// TestSignSignatureFromTx checks signing against a previous transaction and
// the index validation.
func TestSignSignatureFromTx(t *testing.T) {
	t.Parallel()

	pkScript := p2pkhScript(t, testPubKey(3))
	prevTx := fundingTx(pkScript)
	tx := spendingTx(prevTx)

	complete, err := SignSignatureFromTx(
		keyProvider(3), prevTx, tx, 0, interp.SigHashDefault,
	)
	require.NoError(t, err)
	require.True(t, complete)
	requireVerifies(t, tx, pkScript)

	_, err = SignSignatureFromTx(
		keyProvider(3), prevTx, tx, 1, interp.SigHashDefault,
	)
	require.ErrorIs(t, err, interp.ErrInputIndex)

	tx.TxIn[0].PreviousOutPoint.Index = 1
	_, err = SignSignatureFromTx(
		keyProvider(3), prevTx, tx, 0, interp.SigHashDefault,
	)
	require.ErrorIs(t, err, ErrPrevOutIndex)

	_, err = NewTxSignatureCreator(tx, 2, 0, interp.SigHashDefault)
	require.ErrorIs(t, err, interp.ErrInputIndex)
}

// TestLegacySignatureMatchesBtcd checks that signatures without the fork id
// use the same digest and nonce as btcd's own signer.
func TestLegacySignatureMatchesBtcd(t *testing.T) {
	t.Parallel()

	key := testPrivKey(4)
	pkScript := p2pkhScript(t, testPubKey(4))
	tx := spendingTx(fundingTx(pkScript))

	creator, err := NewTxSignatureCreator(
		tx, 0, testAmount, txscript.SigHashAll,
	)
	require.NoError(t, err)

	sig := creator.CreateSig(
		keyProvider(4), keychain.NewKeyID(testPubKey(4)), pkScript,
	).UnwrapOr(nil)

	expected, err := txscript.RawTxInSignature(
		tx, 0, pkScript, txscript.SigHashAll, key,
	)
	require.NoError(t, err)
	require.Equal(t, expected, sig)

	// A legacy signature is not acceptable under the standard flags.
	data := NewSignatureData()
	require.False(t, ProduceSignature(
		keyProvider(4), creator, pkScript, data,
	))
	require.Len(t, data.Signatures, 1)
}

// TestDummySignatures checks the size and determinism of the placeholder
// signatures.
func TestDummySignatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		creator *DummySignatureCreator
		size    int
	}{
		{name: "default", creator: DummyCreator, size: 71},
		{name: "maximum", creator: DummyMaximumCreator, size: 72},
		{
			name:    "custom",
			creator: NewDummySignatureCreator(20, 30),
			size:    57,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var id keychain.KeyID
			first := tc.creator.CreateSig(nil, id, nil).UnwrapOr(nil)
			second := tc.creator.CreateSig(
				keychain.EmptySigningProvider{}, id, []byte{1},
			).UnwrapOr(nil)

			require.Len(t, first, tc.size)
			require.Equal(t, first, second)
			require.Equal(t, byte(0x30), first[0])
			require.Equal(
				t, byte(interp.SigHashDefault),
				first[len(first)-1],
			)
			require.True(t, tc.creator.Checker().CheckSig(
				first, nil, nil, interp.StandardVerifyFlags,
			))
		})
	}
}

// TestDummySignatureShape checks that a placeholder signature of any size is
// a deterministic DER encoding of the requested lengths.
func TestDummySignatureShape(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		rLen := rapid.IntRange(1, maxDummyRLen).Draw(t, "rLen")
		sLen := rapid.IntRange(1, maxDummyRLen).Draw(t, "sLen")
		creator := NewDummySignatureCreator(rLen, sLen)

		var id keychain.KeyID
		sig := creator.CreateSig(nil, id, nil).UnwrapOr(nil)
		require.Len(t, sig, rLen+sLen+7)
		require.Equal(
			t, sig, creator.CreateSig(nil, id, nil).UnwrapOr(nil),
		)

		require.Equal(t, byte(0x30), sig[0])
		require.Equal(t, byte(rLen+sLen+4), sig[1])
		require.Equal(t, byte(rLen), sig[3])
		require.Equal(t, byte(0x02), sig[4+rLen])
		require.Equal(t, byte(sLen), sig[5+rLen])
		require.Equal(
			t, byte(interp.SigHashDefault), sig[len(sig)-1],
		)
	})
}

// TestIsSolvable checks solvability for the supported templates.
func TestIsSolvable(t *testing.T) {
	t.Parallel()

	pubKey := testPubKey(0)
	p2pkh := p2pkhScript(t, pubKey)
	multiSig := multiSigScript(t, 2, testPubKey(1), testPubKey(2))

	watchOnly := keychain.NewFlatSigningProvider()
	watchOnly.AddPubKey(pubKey)
	watchOnly.AddScript(p2pkh)

	nullData, err := txscript.NullDataScript(nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		provider keychain.SigningProvider
		script   []byte
		solvable bool
	}{
		{
			name:     "p2pk without keys",
			provider: keychain.EmptySigningProvider{},
			script:   p2pkScript(t, pubKey),
			solvable: true,
		},
		{
			name:     "p2pkh with pubkey",
			provider: watchOnly,
			script:   p2pkh,
			solvable: true,
		},
		{
			name:     "p2pkh without pubkey",
			provider: keychain.EmptySigningProvider{},
			script:   p2pkh,
		},
		{
			name:     "bare multisig",
			provider: keychain.EmptySigningProvider{},
			script:   multiSig,
			solvable: true,
		},
		{
			name:     "p2sh with redeem script",
			provider: watchOnly,
			script:   p2shScript(t, p2pkh),
			solvable: true,
		},
		{
			name:     "p2sh without redeem script",
			provider: watchOnly,
			script:   p2shScript(t, multiSig),
		},
		{
			name:     "null data",
			provider: watchOnly,
			script:   nullData,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(
				t, tc.solvable, IsSolvable(tc.provider, tc.script),
			)
		})
	}
}

// TestPushAll checks the minimal encoding of assembled elements.
func TestPushAll(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte{0xaa}, 300)
	script := pushAll([][]byte{
		{}, {0x01}, {0x10}, {0x11}, {0x00}, {0x81}, big,
	})

	expected, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddOp(txscript.OP_1).
		AddOp(txscript.OP_16).
		AddFullData([]byte{0x11}).
		AddFullData([]byte{0x00}).
		AddFullData([]byte{0x81}).
		AddFullData(big).
		Script()
	require.NoError(t, err)
	require.Equal(t, expected, script)
}
