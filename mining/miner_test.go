package mining_test

import (
	"testing"
	"time"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/mining"
)

func TestMinerProducesBlocksUntilStopped(t *testing.T) {
	engine := chain.New(1, nil)
	if err := engine.CreateGenesis(1); err != nil {
		t.Fatalf("CreateGenesis failed: %s", err)
	}

	m := mining.New(engine, "miner-address")

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for engine.Len() < 2 {
		select {
		case <-deadline:
			t.Fatal("miner did not produce a second block in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	m.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("miner did not stop after Stop was called")
	}
}

func TestEngineAcceptsExternalBlockWithMinerSubscribed(t *testing.T) {
	engine := chain.New(1, nil)
	if err := engine.CreateGenesis(1); err != nil {
		t.Fatalf("CreateGenesis failed: %s", err)
	}

	m := mining.New(engine, "miner-address")
	_ = m // subscribed to OnBlockAccepted as a side effect of New

	if _, ok := engine.MineOne("someone-else"); !ok {
		t.Fatal("MineOne failed")
	}
	if engine.Len() != 2 {
		t.Fatalf("chain length = %d, want 2", engine.Len())
	}
}
