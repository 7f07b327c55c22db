package chain_test

import (
	"testing"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/crypto"
)

func newTestEngine(t *testing.T) *chain.Engine {
	t.Helper()
	e := chain.New(2, nil)
	if err := e.CreateGenesis(2); err != nil {
		t.Fatalf("CreateGenesis failed: %s", err)
	}
	return e
}

func TestCreateGenesisTwiceFails(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateGenesis(2); err == nil {
		t.Error("expected second CreateGenesis to fail")
	}
}

func TestMineOneAppendsBlockAndPaysCoinbase(t *testing.T) {
	e := newTestEngine(t)
	index, ok := e.MineOne("miner-address")
	if !ok {
		t.Fatal("MineOne did not solve a block")
	}
	if index != 1 {
		t.Errorf("mined block index = %d, want 1", index)
	}
	if got := e.Balance("miner-address"); got != chain.CoinbaseReward {
		t.Errorf("miner balance = %f, want %f", got, float64(chain.CoinbaseReward))
	}
}

func TestSignedSpendIsAcceptedAndUpdatesBalances(t *testing.T) {
	e := newTestEngine(t)

	priv, addr, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}
	if _, ok := e.MineOne(addr); !ok {
		t.Fatal("MineOne did not solve a block")
	}

	_, recipientAddr, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}

	total, inputs := e.FindInputs(addr, chain.CoinbaseReward)
	if total < chain.CoinbaseReward {
		t.Fatalf("FindInputs returned insufficient total %f", total)
	}
	tx := &chain.Transaction{
		Inputs:  inputs,
		Outputs: []chain.Output{{Address: recipientAddr, Amount: chain.CoinbaseReward}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign failed: %s", err)
	}
	if !e.ReceiveTransaction(tx) {
		t.Fatal("ReceiveTransaction rejected a valid spend")
	}

	if _, ok := e.MineOne(addr); !ok {
		t.Fatal("MineOne did not solve the confirming block")
	}

	if got := e.Balance(recipientAddr); got != chain.CoinbaseReward {
		t.Errorf("recipient balance = %f, want %f", got, float64(chain.CoinbaseReward))
	}
	if got := e.Balance(addr); got != chain.CoinbaseReward {
		t.Errorf("sender balance after spend = %f, want %f (the confirming block's coinbase)", got, float64(chain.CoinbaseReward))
	}
}

func TestDoubleSpendWithinMempoolRejected(t *testing.T) {
	e := newTestEngine(t)
	priv, addr, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %s", err)
	}
	if _, ok := e.MineOne(addr); !ok {
		t.Fatal("MineOne did not solve a block")
	}

	_, inputs := e.FindInputs(addr, chain.CoinbaseReward)

	first := &chain.Transaction{Inputs: inputs, Outputs: []chain.Output{{Address: "x", Amount: chain.CoinbaseReward}}}
	if err := first.Sign(priv); err != nil {
		t.Fatalf("Sign failed: %s", err)
	}
	if !e.ReceiveTransaction(first) {
		t.Fatal("first spend should be accepted")
	}

	second := &chain.Transaction{Inputs: inputs, Outputs: []chain.Output{{Address: "y", Amount: chain.CoinbaseReward}}}
	if err := second.Sign(priv); err != nil {
		t.Fatalf("Sign failed: %s", err)
	}
	if e.ReceiveTransaction(second) {
		t.Error("ReceiveTransaction accepted a transaction double-spending a pending input")
	}
}

func TestCoinbaseRejectedFromReceiveTransaction(t *testing.T) {
	e := newTestEngine(t)
	coinbase := &chain.Transaction{Outputs: []chain.Output{{Address: "miner", Amount: chain.CoinbaseReward}}}
	if e.ReceiveTransaction(coinbase) {
		t.Error("ReceiveTransaction accepted a coinbase-shaped transaction")
	}
}

func TestCumulativeDifficultySumsPowersOfTwo(t *testing.T) {
	e := newTestEngine(t) // genesis at difficulty 2: cum_diff = 4
	if _, ok := e.MineOne("m"); !ok {
		t.Fatal("MineOne failed")
	}
	got := e.CumulativeDifficulty()
	// Two blocks, each mined at the engine's configured difficulty (2
	// below the retarget threshold): 2^2 + 2^2 = 8.
	if got.Int64() != 8 {
		t.Errorf("CumulativeDifficulty = %s, want 8", got.String())
	}
}
