package signer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/txsign/input"
)

// ErrSigHashMismatch is returned when a PSBT input asks for a different
// sighash type than the signer produces.
var ErrSigHashMismatch = errors.New("specified sighash and sighash in " +
	"PSBT do not match")

// SignPacket adds every signature the provider can create to the inputs of
// packet. Inputs that become completely signed are finalized. It returns
// whether all inputs are now final.
func (s *Signer) SignPacket(ctx context.Context,
	packet *psbt.Packet) (bool, error) {

	start := time.Now()
	defer func() {
		s.cfg.Metrics.observeDuration(time.Since(start).Seconds())
	}()

	if len(packet.Inputs) != len(packet.UnsignedTx.TxIn) {
		return false, fmt.Errorf("psbt has %d inputs for %d tx inputs",
			len(packet.Inputs), len(packet.UnsignedTx.TxIn))
	}

	// Check all inputs before touching any of them.
	for i := range packet.Inputs {
		hashType := packet.Inputs[i].SighashType
		if hashType != 0 && hashType != s.hashType {
			return false, &InputError{
				Index: i,
				Err:   ErrSigHashMismatch,
			}
		}
	}

	results := make([]bool, len(packet.Inputs))
	for i := range packet.Inputs {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		complete, err := s.signPacketInput(packet, i)
		if err != nil {
			return false, &InputError{Index: i, Err: err}
		}
		results[i] = complete
	}

	for _, complete := range results {
		if !complete {
			return false, nil
		}
	}

	return true, nil
}

// signPacketInput signs input idx of packet in place.
func (s *Signer) signPacketInput(packet *psbt.Packet, idx int) (bool, error) {
	pInput := &packet.Inputs[idx]

	prevOut, err := input.SpentOutput(packet, idx)
	if err != nil {
		s.cfg.Metrics.observeInput(false, reasonNotFound, 0)
		return false, err
	}

	data := input.FromPsbtInput(pInput)
	extracted := len(data.Signatures)

	// Only sign SIGHASH_SINGLE if there's a corresponding output.
	tx := packet.UnsignedTx
	if baseSigHash(s.hashType) != txscript.SigHashSingle ||
		idx < len(tx.TxOut) {

		creator, err := input.NewTxSignatureCreator(
			tx, idx, prevOut.Value, s.hashType,
		)
		if err != nil {
			return false, err
		}
		input.ProduceSignature(
			s.cfg.Provider, creator, prevOut.PkScript, data,
		)
	}

	if !data.Complete {
		s.cfg.Metrics.observeInput(false, reasonNeedSigs, extracted)
	} else {
		s.cfg.Metrics.observeInput(true, "", extracted)
	}

	if pInput.SighashType == 0 && !data.Complete {
		pInput.SighashType = s.hashType
	}
	input.ToPsbtInput(data, pInput)

	log.Debugf("Signed psbt input %d: complete=%v, signatures=%d", idx,
		data.Complete, len(data.Signatures))

	return data.Complete, nil
}

// ExtractTransaction returns the final transaction of a packet whose inputs
// are all finalized.
func ExtractTransaction(packet *psbt.Packet) (*wire.MsgTx, error) {
	if !packet.IsComplete() {
		return nil, psbt.ErrIncompletePSBT
	}

	return psbt.Extract(packet)
}
