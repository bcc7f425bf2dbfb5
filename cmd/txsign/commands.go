package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/txsign/build"
	"github.com/lightningnetwork/txsign/input"
	"github.com/lightningnetwork/txsign/interp"
	"github.com/lightningnetwork/txsign/keychain"
	"github.com/lightningnetwork/txsign/signer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
)

// actionDecorator sets up logging around a command action.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		closeLog, err := setupLogging(ctx)
		if err != nil {
			return err
		}
		defer closeLog()

		return f(ctx)
	}
}

// getContext returns a context that is canceled on interrupt.
func getContext() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// printJSON writes resp as indented JSON to the app's output.
func printJSON(ctx *cli.Context, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, err = out.WriteTo(ctx.App.Writer)

	return err
}

var (
	prevTxsFlag = cli.StringFlag{
		Name: "prevtxs",
		Usage: "A JSON array of the outputs spent, e.g. " +
			`'[{"txid":"<hex>","vout":0,"scriptPubKey":"<hex>",` +
			`"amount":0.001,"redeemScript":"<hex>"}]'.`,
	}
	sigHashFlag = cli.StringFlag{
		Name: "sighashtype",
		Usage: "The signature hash type, e.g. ALL, NONE, SINGLE, " +
			"optionally combined with ANYONECANPAY.",
		Value: "ALL|FORKID",
	}
	workersFlag = cli.IntFlag{
		Name:  "workers",
		Usage: "Number of inputs to sign in parallel, 0 for one " +
			"per CPU.",
	}
)

var signRawTransactionCommand = cli.Command{
	Name:      "signrawtransaction",
	Category:  "Signing",
	Usage:     "Sign the inputs of a raw transaction.",
	ArgsUsage: "hextx",
	Description: `
	Sign every input of the hex encoded transaction that the given keys
	can sign. Signatures already present are kept. The outputs spent by
	the inputs must be passed with --prevtxs.
	`,
	Flags: append([]cli.Flag{
		prevTxsFlag, sigHashFlag, workersFlag,
	}, keyFlags...),
	Action: actionDecorator(signRawTransaction),
}

// inputErrorResp describes an input that is not completely signed.
type inputErrorResp struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ScriptSig string `json:"scriptSig"`
	Sequence  uint32 `json:"sequence"`
	Error     string `json:"error"`
}

type signRawTransactionResp struct {
	Hex      string            `json:"hex"`
	Complete bool              `json:"complete"`
	Errors   []*inputErrorResp `json:"errors,omitempty"`
}

func signRawTransaction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "signrawtransaction")
	}

	tx, err := parseTx(ctx.Args().First())
	if err != nil {
		return err
	}

	provider, err := newProvider(ctx)
	if err != nil {
		return err
	}
	prevOuts, err := parsePrevTxs(ctx.String("prevtxs"), provider)
	if err != nil {
		return err
	}

	hashType, err := signer.ParseSigHashType(ctx.String("sighashtype"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := signer.NewMetrics(reg)
	if err != nil {
		return err
	}

	s, err := signer.New(&signer.Config{
		Provider:   provider,
		HashType:   hashType,
		MaxWorkers: ctx.Int("workers"),
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	ctxc, cancel := getContext()
	defer cancel()

	inputErrs, err := s.SignTransaction(ctxc, tx, prevOuts)
	if err != nil {
		return err
	}
	logMetrics(reg)

	hexTx, err := serializeTx(tx)
	if err != nil {
		return err
	}

	resp := &signRawTransactionResp{
		Hex:      hexTx,
		Complete: len(inputErrs) == 0,
	}
	for _, inputErr := range inputErrs {
		txIn := tx.TxIn[inputErr.Index]
		resp.Errors = append(resp.Errors, &inputErrorResp{
			TxID:      txIn.PreviousOutPoint.Hash.String(),
			Vout:      txIn.PreviousOutPoint.Index,
			ScriptSig: hex.EncodeToString(txIn.SignatureScript),
			Sequence:  txIn.Sequence,
			Error:     inputErr.Err.Error(),
		})
	}

	return printJSON(ctx, resp)
}

var combineRawTransactionCommand = cli.Command{
	Name:      "combinerawtransaction",
	Category:  "Signing",
	Usage:     "Combine partially signed copies of a transaction.",
	ArgsUsage: "hextx hextx [hextx...]",
	Description: `
	Merge the signatures found in several partially signed copies of the
	same transaction into one transaction. The outputs spent by the inputs
	must be passed with --prevtxs.
	`,
	Flags:  []cli.Flag{prevTxsFlag},
	Action: actionDecorator(combineRawTransaction),
}

func combineRawTransaction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.ShowCommandHelp(ctx, "combinerawtransaction")
	}

	txs := make([]*wire.MsgTx, 0, ctx.NArg())
	for _, arg := range ctx.Args() {
		tx, err := parseTx(arg)
		if err != nil {
			return err
		}
		txs = append(txs, tx)
	}

	prevOuts, err := parsePrevTxs(
		ctx.String("prevtxs"), keychain.NewFlatSigningProvider(),
	)
	if err != nil {
		return err
	}

	combined, err := signer.CombineTransactions(txs, prevOuts)
	if err != nil {
		return err
	}

	hexTx, err := serializeTx(combined)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.App.Writer, hexTx)

	return err
}

var signPsbtCommand = cli.Command{
	Name:      "signpsbt",
	Category:  "Signing",
	Usage:     "Sign the inputs of a PSBT.",
	ArgsUsage: "psbt",
	Description: `
	Add every signature the given keys can create to the base64 encoded
	PSBT. Inputs that become completely signed are finalized. With
	--extract the final transaction is also returned once all inputs are
	final.
	`,
	Flags: append([]cli.Flag{
		sigHashFlag,
		cli.BoolFlag{
			Name:  "extract",
			Usage: "Return the final transaction if complete.",
		},
	}, keyFlags...),
	Action: actionDecorator(signPsbt),
}

type signPsbtResp struct {
	Psbt     string `json:"psbt"`
	Complete bool   `json:"complete"`
	Hex      string `json:"hex,omitempty"`
}

func signPsbt(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "signpsbt")
	}

	packet, err := psbt.NewFromRawBytes(
		strings.NewReader(strings.TrimSpace(ctx.Args().First())), true,
	)
	if err != nil {
		return fmt.Errorf("unable to decode psbt: %w", err)
	}

	provider, err := newProvider(ctx)
	if err != nil {
		return err
	}
	hashType, err := signer.ParseSigHashType(ctx.String("sighashtype"))
	if err != nil {
		return err
	}

	s, err := signer.New(&signer.Config{
		Provider: provider,
		HashType: hashType,
	})
	if err != nil {
		return err
	}

	ctxc, cancel := getContext()
	defer cancel()

	complete, err := s.SignPacket(ctxc, packet)
	if err != nil {
		return err
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}
	resp := &signPsbtResp{
		Psbt:     encoded,
		Complete: complete,
	}

	if complete && ctx.Bool("extract") {
		final, err := signer.ExtractTransaction(packet)
		if err != nil {
			return err
		}
		resp.Hex, err = serializeTx(final)
		if err != nil {
			return err
		}
	}

	return printJSON(ctx, resp)
}

var isSolvableCommand = cli.Command{
	Name:      "issolvable",
	Category:  "Scripts",
	Usage:     "Check whether a script could be signed for.",
	ArgsUsage: "hexscript",
	Description: `
	Report whether the given public keys and redeem scripts are enough to
	satisfy the hex encoded output script, assuming the private keys were
	available.
	`,
	Flags:  keyFlags,
	Action: actionDecorator(isSolvable),
}

func isSolvable(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "issolvable")
	}

	script, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("unable to decode script: %w", err)
	}

	provider, err := newProvider(ctx)
	if err != nil {
		return err
	}

	return printJSON(ctx, map[string]bool{
		"solvable": input.IsSolvable(provider, script),
	})
}

var decodeScriptCommand = cli.Command{
	Name:      "decodescript",
	Category:  "Scripts",
	Usage:     "Decode a hex encoded script.",
	ArgsUsage: "hexscript",
	Action:    actionDecorator(decodeScript),
}

type decodeScriptResp struct {
	Asm       string   `json:"asm"`
	Type      string   `json:"type"`
	ReqSigs   int      `json:"reqSigs,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	P2SH      string   `json:"p2sh,omitempty"`
}

func decodeScript(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "decodescript")
	}

	script, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("unable to decode script: %w", err)
	}

	params, err := networkParams(ctx)
	if err != nil {
		return err
	}

	resp, err := describeScript(script, params)
	if err != nil {
		return err
	}
	return printJSON(ctx, resp)
}

// parseTx decodes a hex encoded transaction.
func parseTx(hexTx string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexTx))
	if err != nil {
		return nil, fmt.Errorf("unable to decode tx hex: %w", err)
	}

	tx := &wire.MsgTx{}
	if err := tx.DeserializeNoWitness(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("unable to decode tx: %w", err)
	}

	return tx, nil
}

// serializeTx hex encodes a transaction.
func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.SerializeNoWitness(&buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

// prevTx is one entry of the prevtxs flag.
type prevTx struct {
	TxID         string  `json:"txid"`
	Vout         uint32  `json:"vout"`
	ScriptPubKey string  `json:"scriptPubKey"`
	RedeemScript string  `json:"redeemScript"`
	Amount       float64 `json:"amount"`
}

// parsePrevTxs decodes the prevtxs flag. Redeem scripts are added to
// provider.
func parsePrevTxs(raw string, provider *keychain.FlatSigningProvider) (
	*txscript.MultiPrevOutFetcher, error) {

	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	if raw == "" {
		return prevOuts, nil
	}

	var entries []prevTx
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("unable to decode prevtxs: %w", err)
	}

	for i, entry := range entries {
		hash, err := chainhash.NewHashFromStr(entry.TxID)
		if err != nil {
			return nil, fmt.Errorf("prevtxs %d: %w", i, err)
		}

		pkScript, err := hex.DecodeString(entry.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("prevtxs %d: invalid "+
				"scriptPubKey: %w", i, err)
		}

		amount, err := btcutil.NewAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("prevtxs %d: %w", i, err)
		}
		if amount < 0 {
			return nil, fmt.Errorf("prevtxs %d: negative amount", i)
		}

		if entry.RedeemScript != "" {
			redeemScript, err := hex.DecodeString(
				entry.RedeemScript,
			)
			if err != nil {
				return nil, fmt.Errorf("prevtxs %d: invalid "+
					"redeemScript: %w", i, err)
			}
			provider.AddScript(redeemScript)
		}

		prevOuts.AddPrevOut(
			wire.OutPoint{Hash: *hash, Index: entry.Vout},
			wire.NewTxOut(int64(amount), pkScript),
		)
	}

	log.Debugf("Loaded %d spent outputs", len(entries))

	return prevOuts, nil
}

// logMetrics logs the values gathered by reg.
func logMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Warnf("Unable to gather metrics: %v", err)
		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				log.Debugf("%s%v %v", family.GetName(),
					metric.GetLabel(),
					metric.GetCounter().GetValue())

			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				log.Debugf("%s count=%d sum=%v",
					family.GetName(), h.GetSampleCount(),
					h.GetSampleSum())
			}
		}
	}
}

// describeScript decodes script for the decodescript command.
func describeScript(script []byte,
	params *chaincfg.Params) (*decodeScriptResp, error) {

	asm, err := txscript.DisasmString(script)
	if err != nil {
		return nil, fmt.Errorf("unable to disassemble script: %w", err)
	}

	solution := interp.Solve(script)
	resp := &decodeScriptResp{
		Asm:     asm,
		Type:    solution.Class.String(),
		ReqSigs: solution.Required,
	}

	_, addrs, reqSigs, err := txscript.ExtractPkScriptAddrs(script, params)
	if err == nil {
		for _, addr := range addrs {
			resp.Addresses = append(
				resp.Addresses, addr.EncodeAddress(),
			)
		}
		if resp.ReqSigs == 0 && len(addrs) != 0 {
			resp.ReqSigs = reqSigs
		}
	}

	// A script hash of a script hash is not spendable.
	if solution.Class != txscript.ScriptHashTy {
		p2sh, err := btcutil.NewAddressScriptHash(script, params)
		if err != nil {
			return nil, err
		}
		resp.P2SH = p2sh.EncodeAddress()
	}

	log.Tracef("Decoded script: %v", build.NewLogClosure(func() string {
		return spew.Sdump(solution)
	}))

	return resp, nil
}
