package input

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/txsign/keychain"
)

var (
	// ErrMissingUtxo is returned when a PSBT input carries no information
	// about the output it spends.
	ErrMissingUtxo = errors.New("psbt input has no utxo")

	byteOrder = binary.LittleEndian
)

// FromPsbtInput builds a signing record from the data already present in a
// PSBT input. An input with a final script sig yields a complete record.
func FromPsbtInput(pInput *psbt.PInput) *SignatureData {
	data := NewSignatureData()

	if len(pInput.FinalScriptSig) != 0 {
		data.ScriptSig = bytes.Clone(pInput.FinalScriptSig)
		data.Complete = true
		return data
	}

	for _, partial := range pInput.PartialSigs {
		data.Signatures[keychain.NewKeyID(partial.PubKey)] = SigPair{
			PubKey:    bytes.Clone(partial.PubKey),
			Signature: bytes.Clone(partial.Signature),
		}
	}

	if len(pInput.RedeemScript) != 0 {
		data.RedeemScript = bytes.Clone(pInput.RedeemScript)
	}

	for _, derivation := range pInput.Bip32Derivation {
		var origin keychain.KeyOriginInfo
		byteOrder.PutUint32(
			origin.Fingerprint[:], derivation.MasterKeyFingerprint,
		)
		origin.Path = append(origin.Path, derivation.Bip32Path...)

		id := keychain.NewKeyID(derivation.PubKey)
		data.MiscPubKeys[id] = PubKeyOrigin{
			PubKey: bytes.Clone(derivation.PubKey),
			Origin: origin,
		}
	}

	return data
}

// ToPsbtInput writes a signing record back into a PSBT input. A complete
// record finalizes the input and drops the partial data; otherwise the
// signatures, redeem script and key origins are added to what the input
// already has.
func ToPsbtInput(data *SignatureData, pInput *psbt.PInput) {
	if data.Complete {
		pInput.PartialSigs = nil
		pInput.Bip32Derivation = nil
		pInput.RedeemScript = nil
		pInput.FinalScriptSig = bytes.Clone(data.ScriptSig)

		return
	}

	known := make(map[keychain.KeyID]struct{})
	for _, partial := range pInput.PartialSigs {
		known[keychain.NewKeyID(partial.PubKey)] = struct{}{}
	}
	for id, pair := range data.Signatures {
		if _, ok := known[id]; ok {
			continue
		}
		pInput.PartialSigs = append(pInput.PartialSigs, &psbt.PartialSig{
			PubKey:    bytes.Clone(pair.PubKey),
			Signature: bytes.Clone(pair.Signature),
		})
	}
	sort.Slice(pInput.PartialSigs, func(i, j int) bool {
		return bytes.Compare(
			pInput.PartialSigs[i].PubKey,
			pInput.PartialSigs[j].PubKey,
		) < 0
	})

	if len(pInput.RedeemScript) == 0 && len(data.RedeemScript) != 0 {
		pInput.RedeemScript = bytes.Clone(data.RedeemScript)
	}

	known = make(map[keychain.KeyID]struct{})
	for _, derivation := range pInput.Bip32Derivation {
		known[keychain.NewKeyID(derivation.PubKey)] = struct{}{}
	}
	for id, misc := range data.MiscPubKeys {
		if _, ok := known[id]; ok {
			continue
		}
		pInput.Bip32Derivation = append(
			pInput.Bip32Derivation, &psbt.Bip32Derivation{
				PubKey: bytes.Clone(misc.PubKey),
				MasterKeyFingerprint: byteOrder.Uint32(
					misc.Origin.Fingerprint[:],
				),
				Bip32Path: append(
					[]uint32(nil), misc.Origin.Path...,
				),
			},
		)
	}
	sort.Slice(pInput.Bip32Derivation, func(i, j int) bool {
		return bytes.Compare(
			pInput.Bip32Derivation[i].PubKey,
			pInput.Bip32Derivation[j].PubKey,
		) < 0
	})
}

// SpentOutput returns the output spent by input idx of the packet, taken
// from the witness utxo if present and from the full previous transaction
// otherwise.
func SpentOutput(packet *psbt.Packet, idx int) (*wire.TxOut, error) {
	if idx < 0 || idx >= len(packet.Inputs) ||
		idx >= len(packet.UnsignedTx.TxIn) {

		return nil, fmt.Errorf("psbt input %d out of range", idx)
	}

	pInput := &packet.Inputs[idx]
	if pInput.WitnessUtxo != nil {
		return pInput.WitnessUtxo, nil
	}

	if pInput.NonWitnessUtxo != nil {
		outPoint := packet.UnsignedTx.TxIn[idx].PreviousOutPoint
		if pInput.NonWitnessUtxo.TxHash() != outPoint.Hash {
			return nil, fmt.Errorf("psbt input %d: non witness "+
				"utxo does not match outpoint %v", idx,
				outPoint)
		}

		prevOuts := pInput.NonWitnessUtxo.TxOut
		if int(outPoint.Index) >= len(prevOuts) {
			return nil, fmt.Errorf("psbt input %d: %w", idx,
				ErrPrevOutIndex)
		}

		return prevOuts[outPoint.Index], nil
	}

	return nil, fmt.Errorf("psbt input %d: %w", idx, ErrMissingUtxo)
}
