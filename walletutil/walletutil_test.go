package walletutil_test

import (
	"testing"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/walletutil"
)

type stubEngine struct {
	total  float64
	inputs []chain.Input
}

func (s stubEngine) FindInputs(sender string, amount float64) (float64, []chain.Input) {
	return s.total, s.inputs
}

func TestCreateTransactionAddsChangeWhenPositive(t *testing.T) {
	kp, err := walletutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}

	engine := stubEngine{total: 10, inputs: []chain.Input{{PrevTxID: "tx1", Vout: 0}}}
	tx, err := walletutil.CreateTransaction(engine, kp.PrivateKey, kp.Address, "recipient", 6)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %s", err)
	}

	if len(tx.Outputs) != 2 {
		t.Fatalf("len(Outputs) = %d, want 2 (recipient + change)", len(tx.Outputs))
	}
	if tx.Outputs[0].Address != "recipient" || tx.Outputs[0].Amount != 6 {
		t.Errorf("Outputs[0] = %+v, want {recipient 6}", tx.Outputs[0])
	}
	if tx.Outputs[1].Address != kp.Address || tx.Outputs[1].Amount != 4 {
		t.Errorf("Outputs[1] = %+v, want change of 4 back to sender", tx.Outputs[1])
	}
	if len(tx.Inputs[0].Signature) == 0 {
		t.Error("input was not signed")
	}
}

func TestCreateTransactionSuppressesZeroChange(t *testing.T) {
	kp, err := walletutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}

	engine := stubEngine{total: 6, inputs: []chain.Input{{PrevTxID: "tx1", Vout: 0}}}
	tx, err := walletutil.CreateTransaction(engine, kp.PrivateKey, kp.Address, "recipient", 6)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %s", err)
	}

	if len(tx.Outputs) != 1 {
		t.Fatalf("len(Outputs) = %d, want 1 (no dust change output)", len(tx.Outputs))
	}
}

func TestCreateTransactionRejectsInsufficientFunds(t *testing.T) {
	kp, err := walletutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}

	engine := stubEngine{total: 2, inputs: nil}
	if _, err := walletutil.CreateTransaction(engine, kp.PrivateKey, kp.Address, "recipient", 6); err == nil {
		t.Error("CreateTransaction should fail when funds are insufficient")
	}
}

func TestCreateTransactionRejectsNonPositiveAmount(t *testing.T) {
	kp, err := walletutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}

	engine := stubEngine{total: 10, inputs: []chain.Input{{PrevTxID: "tx1", Vout: 0}}}
	if _, err := walletutil.CreateTransaction(engine, kp.PrivateKey, kp.Address, "recipient", 0); err == nil {
		t.Error("CreateTransaction should reject a zero amount")
	}
	if _, err := walletutil.CreateTransaction(engine, kp.PrivateKey, kp.Address, "recipient", -1); err == nil {
		t.Error("CreateTransaction should reject a negative amount")
	}
}
