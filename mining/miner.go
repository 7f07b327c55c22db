// Package mining implements the single cooperative proof-of-work
// worker described by spec.md §4.2. It is grounded on the shape of the
// teacher's mining.BlkTmplGenerator (candidate composition) and
// blockdag's solve loop, generalized from block-template/priority-heap
// selection to the spec's simpler "coinbase then full mempool" rule,
// and from a one-shot solver to a continuously preemptible worker.
package mining

import (
	"sync/atomic"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/logger"
)

var log = logger.Get(logger.SubsystemTags.MINR)

// Miner runs exactly one proof-of-work worker against a chain.Engine.
// It is preempted whenever the engine accepts a block from any source
// (including itself), per spec.md §5's cooperative-preemption model: a
// boolean (here, an atomic flag) observed once per hash attempt.
type Miner struct {
	engine       *chain.Engine
	minerAddress string

	active  int32
	preempt int32
}

// New creates a Miner that will pay its coinbase reward to
// minerAddress, and subscribes it to engine's block-accepted hook so
// that any externally accepted block preempts an in-flight attempt.
func New(engine *chain.Engine, minerAddress string) *Miner {
	m := &Miner{engine: engine, minerAddress: minerAddress}
	engine.OnBlockAccepted(func(*chain.Block) {
		atomic.StoreInt32(&m.preempt, 1)
	})
	return m
}

// Run mines continuously until Stop is called. Each iteration composes
// a fresh candidate (coinbase first, then the full mempool, per
// spec.md §4.2) against the engine's current tip and dynamic
// difficulty, then runs proof-of-work until either a solution is found
// or preemption is observed. A solved block is submitted through
// ReceiveBlock so that the engine performs the same validation,
// UTXO update, and broadcast-hook dispatch as it would for a block
// arriving from a peer.
func (m *Miner) Run() {
	atomic.StoreInt32(&m.active, 1)
	for atomic.LoadInt32(&m.active) == 1 {
		atomic.StoreInt32(&m.preempt, 0)

		candidate := m.engine.ComposeCandidate(m.minerAddress)
		solved := chain.ProveWork(candidate, m.shouldPreempt)
		if !solved {
			continue
		}

		if m.engine.ReceiveBlock(candidate) {
			log.Infof("mined block %d with difficulty %d", candidate.Index, candidate.Difficulty)
		}
	}
}

// Stop halts Run after its current hash attempt.
func (m *Miner) Stop() {
	atomic.StoreInt32(&m.active, 0)
	atomic.StoreInt32(&m.preempt, 1)
}

func (m *Miner) shouldPreempt() bool {
	return atomic.LoadInt32(&m.active) == 0 || atomic.LoadInt32(&m.preempt) == 1
}
