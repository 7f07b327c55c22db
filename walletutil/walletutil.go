// Package walletutil builds and signs spend transactions against a
// chain.Engine's UTXO set, grounded on palaseus-Adrenochain's
// pkg/wallet.Wallet.CreateTransaction, generalized from that wallet's
// uint64-value, explicit-fee model to this spec's float64-amount,
// feeless transactions, and from btcsuite/btcd's btcec key handling to
// this module's crypto package.
package walletutil

import (
	"github.com/pkg/errors"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/crypto"
)

// KeyPair is a generated signing identity: a private key and its
// corresponding address.
type KeyPair struct {
	PrivateKey *crypto.PrivateKey
	Address    string
}

// GenerateKeyPair creates a fresh private key and its Base58Check
// address, the wallet-level equivalent of crypto.GenerateKeyPair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, address, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key pair")
	}
	return &KeyPair{PrivateKey: priv, Address: address}, nil
}

// CreateTransaction selects unspent outputs owned by sender sufficient
// to cover amount, builds a transaction paying recipient, appends a
// change output back to sender only when change is strictly positive
// (SPEC_FULL.md §D.4, following original_source/blockchain.py's
// create_transaction), and signs every input with priv.
//
// engine is any type exposing FindInputs, satisfied by *chain.Engine.
func CreateTransaction(engine interface {
	FindInputs(sender string, amount float64) (float64, []chain.Input)
}, priv *crypto.PrivateKey, sender, recipient string, amount float64) (*chain.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	total, inputs := engine.FindInputs(sender, amount)
	if total < amount {
		return nil, errors.Errorf("insufficient funds: need %f, have %f", amount, total)
	}

	outputs := []chain.Output{{Address: recipient, Amount: amount}}
	if change := total - amount; change > 0 {
		outputs = append(outputs, chain.Output{Address: sender, Amount: change})
	}

	tx := &chain.Transaction{Inputs: inputs, Outputs: outputs}
	if err := tx.Sign(priv); err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return tx, nil
}
