package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightningnetwork/txsign/keychain"
	"github.com/urfave/cli"
)

// keyFlags are the flags that fill the signing provider.
var keyFlags = []cli.Flag{
	cli.StringSliceFlag{
		Name:  "privkey",
		Usage: "A WIF encoded private key. May be repeated.",
	},
	cli.StringFlag{
		Name:  "xprv",
		Usage: "An extended key to derive keys from, see --path.",
	},
	cli.StringSliceFlag{
		Name: "path",
		Usage: "A derivation path below --xprv, e.g. m/44'/0'/0'/0/1. " +
			"May be repeated.",
	},
	cli.StringSliceFlag{
		Name:  "pubkey",
		Usage: "A hex encoded public key. May be repeated.",
	},
	cli.StringSliceFlag{
		Name:  "redeemscript",
		Usage: "A hex encoded redeem script. May be repeated.",
	},
}

// newProvider builds a signing provider from the key flags.
func newProvider(ctx *cli.Context) (*keychain.FlatSigningProvider, error) {
	provider := keychain.NewFlatSigningProvider()

	for _, wif := range ctx.StringSlice("privkey") {
		if _, err := provider.AddWIF(wif); err != nil {
			return nil, err
		}
	}

	for _, pubKey := range ctx.StringSlice("pubkey") {
		raw, err := hex.DecodeString(pubKey)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey %v: %w", pubKey,
				err)
		}
		provider.AddPubKey(raw)
	}

	for _, script := range ctx.StringSlice("redeemscript") {
		raw, err := hex.DecodeString(script)
		if err != nil {
			return nil, fmt.Errorf("invalid redeem script: %w", err)
		}
		provider.AddScript(raw)
	}

	if err := addExtendedKeys(ctx, provider); err != nil {
		return nil, err
	}

	return provider, nil
}

// addExtendedKeys derives the keys selected by the path flags.
func addExtendedKeys(ctx *cli.Context,
	provider *keychain.FlatSigningProvider) error {

	paths := ctx.StringSlice("path")
	encoded := ctx.String("xprv")
	switch {
	case encoded == "" && len(paths) == 0:
		return nil

	case encoded == "":
		return fmt.Errorf("--path requires --xprv")
	}

	master, err := hdkeychain.NewKeyFromString(encoded)
	if err != nil {
		return fmt.Errorf("unable to decode extended key: %w", err)
	}

	params, err := networkParams(ctx)
	if err != nil {
		return err
	}
	if !master.IsForNet(params) {
		return fmt.Errorf("extended key is not for %v", params.Name)
	}

	for _, path := range paths {
		steps, err := keychain.ParseDerivationPath(path)
		if err != nil {
			return err
		}

		id, err := provider.AddExtendedKey(master, steps)
		if err != nil {
			return fmt.Errorf("unable to derive %v: %w", path, err)
		}
		log.Debugf("Derived key %v at %v", id, path)
	}

	return nil
}
