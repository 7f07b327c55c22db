package chain_test

import (
	"testing"

	"github.com/ledgerd/ledgerd/chain"
)

func TestReceiveBlockRejectsWrongPreviousHash(t *testing.T) {
	e := newTestEngine(t)
	candidate := e.ComposeCandidate("m")
	candidate.PreviousHash = "not-the-real-tip"
	chain.ProveWork(candidate, func() bool { return false })

	if e.ReceiveBlock(candidate) {
		t.Error("ReceiveBlock accepted a block with the wrong previous_hash")
	}
}

func TestReceiveBlockRejectsBadMerkleRoot(t *testing.T) {
	e := newTestEngine(t)
	candidate := e.ComposeCandidate("m")
	candidate.MerkleRoot = "tampered"
	chain.ProveWork(candidate, func() bool { return false })

	if e.ReceiveBlock(candidate) {
		t.Error("ReceiveBlock accepted a block with a mismatched merkle root")
	}
}

func TestReceiveBlockRejectsFutureTimestamp(t *testing.T) {
	e := newTestEngine(t)
	candidate := e.ComposeCandidate("m")
	candidate.Timestamp = 1 << 62 // far in the future
	chain.ProveWork(candidate, func() bool { return false })

	if e.ReceiveBlock(candidate) {
		t.Error("ReceiveBlock accepted a block whose timestamp is not strictly in the past")
	}
}

func TestReceiveBlockRejectsUnderfundedTransaction(t *testing.T) {
	e := newTestEngine(t)
	if _, ok := e.MineOne("payer"); !ok {
		t.Fatal("MineOne failed")
	}

	_, inputs := e.FindInputs("payer", chain.CoinbaseReward)
	candidate := e.ComposeCandidate("m")
	candidate.Transactions = append(candidate.Transactions, chain.Transaction{
		Inputs:  inputs,
		Outputs: []chain.Output{{Address: "thief", Amount: chain.CoinbaseReward * 100}},
	})
	candidate.MerkleRoot = chain.MerkleRoot(candidate.Transactions)
	chain.ProveWork(candidate, func() bool { return false })

	if e.ReceiveBlock(candidate) {
		t.Error("ReceiveBlock accepted a transaction whose outputs exceed its inputs")
	}
}
