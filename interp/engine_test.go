package interp

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const testAmount = 100_000

func testKey(i int) *btcec.PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(chainhash.HashB([]byte{byte(i)}))
	return key
}

func testPub(i int) []byte {
	return testKey(i).PubKey().SerializeCompressed()
}

func testTx() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x02}},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(testAmount/2, []byte{txscript.OP_TRUE}))

	return tx
}

func testChecker(t *testing.T, tx *wire.MsgTx) *TxSigChecker {
	t.Helper()

	checker, err := NewTxSigChecker(tx, 0, testAmount)
	require.NoError(t, err)

	return checker
}

func mustScript(t *testing.T, b *txscript.ScriptBuilder) []byte {
	t.Helper()

	script, err := b.Script()
	require.NoError(t, err)

	return script
}

func p2pkh(t *testing.T, pubKey []byte) []byte {
	return mustScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG),
	)
}

func p2pk(t *testing.T, pubKey []byte) []byte {
	return mustScript(t, txscript.NewScriptBuilder().
		AddData(pubKey).
		AddOp(txscript.OP_CHECKSIG),
	)
}

func multiSig(t *testing.T, required int, pubKeys ...[]byte) []byte {
	b := txscript.NewScriptBuilder().AddInt64(int64(required))
	for _, pubKey := range pubKeys {
		b.AddData(pubKey)
	}

	return mustScript(t, b.
		AddInt64(int64(len(pubKeys))).
		AddOp(txscript.OP_CHECKMULTISIG),
	)
}

// forkIDSig signs input 0 of tx for scriptCode with the fork id digest.
func forkIDSig(t *testing.T, tx *wire.MsgTx, key *btcec.PrivateKey,
	scriptCode []byte, amount int64) []byte {

	t.Helper()

	digest, err := CalcSigHash(
		scriptCode, newSigHashes(tx, amount), SigHashDefault, tx, 0,
		amount,
	)
	require.NoError(t, err)

	sig := ecdsa.Sign(key, digest)

	return append(sig.Serialize(), byte(SigHashDefault))
}

// highS rewrites a DER signature with its S value negated.
func highS(sig []byte) []byte {
	rLen := int(sig[3])
	r := sig[4 : 4+rLen]
	s := new(big.Int).SetBytes(sig[6+rLen:])
	sBytes := new(big.Int).Sub(btcec.S256().N, s).Bytes()
	if sBytes[0]&0x80 != 0 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	der := []byte{0x30, byte(4 + len(r) + len(sBytes)), 0x02, byte(rLen)}
	der = append(der, r...)
	der = append(der, 0x02, byte(len(sBytes)))

	return append(der, sBytes...)
}

// TestVerifyLegacySignatures checks signatures made by btcd's own signer
// against the legacy flags.
func TestVerifyLegacySignatures(t *testing.T) {
	t.Parallel()

	tx := testTx()

	t.Run("p2pkh", func(t *testing.T) {
		t.Parallel()

		pkScript := p2pkh(t, testPub(0))
		sigScript, err := txscript.SignatureScript(
			tx, 0, pkScript, txscript.SigHashAll, testKey(0), true,
		)
		require.NoError(t, err)

		checker := testChecker(t, tx)
		err = VerifyScript(
			sigScript, pkScript, LegacyVerifyFlags, checker,
		)
		require.NoError(t, err)

		// The fork id is mandatory under the standard flags.
		err = VerifyScript(
			sigScript, pkScript, StandardVerifyFlags, checker,
		)
		require.True(t, IsErrorCode(err, ErrSigHashType))
	})

	t.Run("multisig", func(t *testing.T) {
		t.Parallel()

		pkScript := multiSig(t, 2, testPub(0), testPub(1), testPub(2))

		sig0, err := txscript.RawTxInSignature(
			tx, 0, pkScript, txscript.SigHashAll, testKey(0),
		)
		require.NoError(t, err)
		sig2, err := txscript.RawTxInSignature(
			tx, 0, pkScript, txscript.SigHashAll, testKey(2),
		)
		require.NoError(t, err)

		checker := testChecker(t, tx)
		build := func(dummy int64, sigs ...[]byte) []byte {
			b := txscript.NewScriptBuilder().AddInt64(dummy)
			for _, sig := range sigs {
				b.AddData(sig)
			}
			return mustScript(t, b)
		}

		err = VerifyScript(
			build(0, sig0, sig2), pkScript, LegacyVerifyFlags,
			checker,
		)
		require.NoError(t, err)

		err = VerifyScript(
			build(1, sig0, sig2), pkScript, LegacyVerifyFlags,
			checker,
		)
		require.True(t, IsErrorCode(err, ErrSigNullDummy))

		// Signatures must follow the order of the keys.
		err = VerifyScript(
			build(0, sig2, sig0), pkScript, LegacyVerifyFlags,
			checker,
		)
		require.True(t, IsErrorCode(err, ErrNullFail))
	})
}

// TestVerifyForkIDSignatures checks the replay protected digest, including
// its commitment to the spent amount.
func TestVerifyForkIDSignatures(t *testing.T) {
	t.Parallel()

	tx := testTx()
	pkScript := p2pk(t, testPub(1))
	sig := forkIDSig(t, tx, testKey(1), pkScript, testAmount)
	sigScript := mustScript(t, txscript.NewScriptBuilder().AddData(sig))

	checker := testChecker(t, tx)
	require.NoError(t, VerifyScript(
		sigScript, pkScript, StandardVerifyFlags, checker,
	))

	err := VerifyScript(sigScript, pkScript, LegacyVerifyFlags, checker)
	require.True(t, IsErrorCode(err, ErrSigHashType))

	// Without strict encoding the checker itself still refuses the fork
	// id.
	require.False(t, checker.CheckSig(
		sig, testPub(1), pkScript, ScriptBip16,
	))

	wrongAmount, err := NewTxSigChecker(tx, 0, testAmount+1)
	require.NoError(t, err)
	err = VerifyScript(
		sigScript, pkScript, StandardVerifyFlags, wrongAmount,
	)
	require.True(t, IsErrorCode(err, ErrNullFail))

	_, err = NewTxSigChecker(tx, 1, testAmount)
	require.ErrorIs(t, err, ErrInputIndex)
}

// TestVerifyScriptFailures checks the error reported for various invalid
// spends.
func TestVerifyScriptFailures(t *testing.T) {
	t.Parallel()

	tx := testTx()
	checker := testChecker(t, tx)

	pkScript := p2pk(t, testPub(3))
	sig := forkIDSig(t, tx, testKey(3), pkScript, testAmount)
	highSig := append(
		highS(sig[:len(sig)-1]), byte(SigHashDefault),
	)

	tests := []struct {
		name      string
		sigScript []byte
		pkScript  []byte
		code      ErrorCode
	}{
		{
			name:      "empty stack",
			sigScript: nil,
			pkScript:  nil,
			code:      ErrEmptyStack,
		},
		{
			name:      "false result",
			sigScript: nil,
			pkScript:  []byte{txscript.OP_0},
			code:      ErrEvalFalse,
		},
		{
			name:      "early return",
			sigScript: []byte{txscript.OP_1},
			pkScript:  []byte{txscript.OP_RETURN},
			code:      ErrEarlyReturn,
		},
		{
			name:      "unsupported opcode",
			sigScript: nil,
			pkScript: []byte{
				txscript.OP_1, txscript.OP_1, txscript.OP_ADD,
			},
			code: ErrUnsupportedOpcode,
		},
		{
			name:      "not push only",
			sigScript: []byte{txscript.OP_1, txscript.OP_DUP},
			pkScript:  []byte{txscript.OP_EQUAL},
			code:      ErrNotPushOnly,
		},
		{
			name: "unclean stack",
			sigScript: mustScript(t, txscript.NewScriptBuilder().
				AddOp(txscript.OP_1).AddData(sig)),
			pkScript: pkScript,
			code:     ErrCleanStack,
		},
		{
			name: "high s",
			sigScript: mustScript(t, txscript.NewScriptBuilder().
				AddData(highSig)),
			pkScript: pkScript,
			code:     ErrSigHighS,
		},
		{
			name:      "non minimal push",
			sigScript: []byte{0x01, 0x05},
			pkScript:  []byte{txscript.OP_DROP, txscript.OP_1},
			code:      ErrMinimalData,
		},
		{
			name:      "malformed push",
			sigScript: []byte{0x05, 0x01},
			pkScript:  []byte{txscript.OP_1},
			code:      ErrNotPushOnly,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := VerifyScript(
				tc.sigScript, tc.pkScript, StandardVerifyFlags,
				checker,
			)
			require.Error(t, err)
			require.True(
				t, IsErrorCode(err, tc.code), "got %v", err,
			)
		})
	}
}

// TestVerifyPayToScriptHash checks that the redeem script is evaluated
// after the hash matches.
func TestVerifyPayToScriptHash(t *testing.T) {
	t.Parallel()

	tx := testTx()
	checker := testChecker(t, tx)

	redeemScript := p2pk(t, testPub(4))
	pkScript := mustScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL),
	)

	sig := forkIDSig(t, tx, testKey(4), redeemScript, testAmount)
	sigScript := mustScript(t, txscript.NewScriptBuilder().
		AddData(sig).
		AddData(redeemScript),
	)
	require.NoError(t, VerifyScript(
		sigScript, pkScript, StandardVerifyFlags, checker,
	))

	// A signature over the wrong script code fails inside the redeem
	// script.
	badSig := forkIDSig(t, tx, testKey(4), pkScript, testAmount)
	sigScript = mustScript(t, txscript.NewScriptBuilder().
		AddData(badSig).
		AddData(redeemScript),
	)
	err := VerifyScript(sigScript, pkScript, StandardVerifyFlags, checker)
	require.True(t, IsErrorCode(err, ErrNullFail))

	// The hash must match.
	sigScript = mustScript(t, txscript.NewScriptBuilder().
		AddData(sig).
		AddData(p2pk(t, testPub(5))),
	)
	err = VerifyScript(sigScript, pkScript, StandardVerifyFlags, checker)
	require.True(t, IsErrorCode(err, ErrEvalFalse))
}

// TestRemoveDataPush checks that legacy signatures are stripped from the
// code they commit to.
func TestRemoveDataPush(t *testing.T) {
	t.Parallel()

	sig := []byte{0x30, 0x01, 0x02}
	script := mustScript(t, txscript.NewScriptBuilder().
		AddData(sig).
		AddOp(txscript.OP_DROP).
		AddData(sig).
		AddOp(txscript.OP_1),
	)

	require.Equal(
		t, []byte{txscript.OP_DROP, txscript.OP_1},
		removeDataPush(script, sig),
	)
	require.Equal(t, script, removeDataPush(script, []byte{0x01}))
	require.Equal(t, script, removeDataPush(script, nil))
}
