package interp

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// TestSolve checks classification and data extraction for every supported
// template and a few that are not.
func TestSolve(t *testing.T) {
	t.Parallel()

	pub0, pub1 := testPub(0), testPub(1)
	hash := btcutil.Hash160(pub0)

	p2sh := mustScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL),
	)
	witness := mustScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash),
	)
	nullData, err := txscript.NullDataScript([]byte{0x01, 0x02})
	require.NoError(t, err)

	tests := []struct {
		name     string
		script   []byte
		class    txscript.ScriptClass
		data     [][]byte
		required int
	}{
		{
			name:   "pubkey",
			script: p2pk(t, pub0),
			class:  txscript.PubKeyTy,
			data:   [][]byte{pub0},
		},
		{
			name:   "pubkey hash",
			script: p2pkh(t, pub0),
			class:  txscript.PubKeyHashTy,
			data:   [][]byte{hash},
		},
		{
			name:   "script hash",
			script: p2sh,
			class:  txscript.ScriptHashTy,
			data:   [][]byte{hash},
		},
		{
			name:     "multisig",
			script:   multiSig(t, 1, pub0, pub1),
			class:    txscript.MultiSigTy,
			data:     [][]byte{pub0, pub1},
			required: 1,
		},
		{
			name:   "null data",
			script: nullData,
			class:  txscript.NullDataTy,
		},
		{
			name:   "witness program",
			script: witness,
			class:  txscript.NonStandardTy,
		},
		{
			name:   "empty",
			script: nil,
			class:  txscript.NonStandardTy,
		},
		{
			name:   "truncated",
			script: []byte{txscript.OP_DATA_33, 0x02},
			class:  txscript.NonStandardTy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			solution := Solve(tc.script)
			require.Equal(t, tc.class, solution.Class)
			require.Equal(t, tc.data, solution.Data)
			require.Equal(t, tc.required, solution.Required)
		})
	}
}
