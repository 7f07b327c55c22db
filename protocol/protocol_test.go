package protocol_test

import (
	"testing"
	"time"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/peer"
	"github.com/ledgerd/ledgerd/protocol"
)

// TestForkResolutionAdoptsHigherCumulativeDifficulty reproduces the
// fork-resolution walkthrough: chain A is three blocks of difficulty
// two (cumulative difficulty 12), chain B is a shared genesis plus one
// block of difficulty four (cumulative difficulty 20). A must
// request B's block, rewind to the shared ancestor, and adopt it.
func TestForkResolutionAdoptsHigherCumulativeDifficulty(t *testing.T) {
	engineA := chain.New(2, nil)
	if err := engineA.CreateGenesis(2); err != nil {
		t.Fatalf("CreateGenesis failed: %s", err)
	}
	genesis, _ := engineA.BlockAt(0)

	engineB := chain.New(2, nil)
	if !engineB.ReceiveBlock(&genesis) {
		t.Fatal("engineB failed to adopt the shared genesis block")
	}

	if _, ok := engineA.MineOne("minerA"); !ok {
		t.Fatal("failed to mine A1")
	}
	if _, ok := engineA.MineOne("minerA"); !ok {
		t.Fatal("failed to mine A2")
	}

	b1 := engineB.ComposeCandidate("minerB")
	b1.Difficulty = 4
	chain.ProveWork(b1, func() bool { return false })
	if !engineB.ReceiveBlock(b1) {
		t.Fatal("engineB failed to accept its own higher-difficulty block")
	}

	if got, want := engineA.CumulativeDifficulty().Int64(), int64(12); got != want {
		t.Fatalf("engineA cumulative difficulty = %d, want %d", got, want)
	}
	if got, want := engineB.CumulativeDifficulty().Int64(), int64(20); got != want {
		t.Fatalf("engineB cumulative difficulty = %d, want %d", got, want)
	}

	nodeA := peer.NewNode("127.0.0.1", "19411", 8)
	nodeB := peer.NewNode("127.0.0.1", "19412", 8)

	protocol.New(engineA, nodeA).Start()
	protocol.New(engineB, nodeB).Start()

	if err := nodeA.Listen(); err != nil {
		t.Fatalf("nodeA.Listen failed: %s", err)
	}
	defer nodeA.Close()
	if err := nodeB.Listen(); err != nil {
		t.Fatalf("nodeB.Listen failed: %s", err)
	}
	defer nodeB.Close()

	// Dial's post-handshake GET_LATEST_BLOCK (spec.md §4.4) is enough to
	// kick off fork resolution on its own: B's reply carries a lower
	// index than A's tip, which drives A to request B's consensus data.
	if err := nodeA.Dial("127.0.0.1", "19412"); err != nil {
		t.Fatalf("nodeA.Dial failed: %s", err)
	}

	deadline := time.After(5 * time.Second)
	for engineA.Len() != 2 {
		select {
		case <-deadline:
			t.Fatalf("fork resolution did not converge in time; engineA.Len() = %d", engineA.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}

	tip := engineA.Tip()
	if tip.Difficulty != 4 {
		t.Errorf("engineA adopted tip has difficulty %d, want 4", tip.Difficulty)
	}
	if tip.Hash() != b1.Hash() {
		t.Error("engineA's tip is not B's higher-difficulty block")
	}
}
