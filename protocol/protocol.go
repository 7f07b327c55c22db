// Package protocol implements the message dispatch table described by
// spec.md §4.5: one handler per MType, wiring a chain.Engine to a
// peer.Node. It is grounded on original_source/node.py's handle_message
// match statement, translated into a closed Go switch over peer.MType,
// and on the teacher's netadapter router pattern for how a single
// incoming-message callback fans out to per-type handlers.
package protocol

import (
	"math/big"

	"github.com/ledgerd/ledgerd/chain"
	"github.com/ledgerd/ledgerd/logger"
	"github.com/ledgerd/ledgerd/peer"
)

var log = logger.Get(logger.SubsystemTags.PROT)

// consensusData is the wire payload of GET_CONSENSUS_DATA's reply, per
// spec.md §4.5: a chain fingerprint plus the sender's cumulative
// difficulty, since fork choice requires comparing the two.
type consensusData struct {
	ChainHashes []chain.HashAtIndex `json:"chain_hashes"`
	CumDiff     string              `json:"cum_diff"`
}

// Manager dispatches inbound peer messages against a chain engine and
// reacts to the engine's own block/transaction acceptance by
// broadcasting to the rest of the network.
type Manager struct {
	engine *chain.Engine
	node   *peer.Node
}

// New wires a protocol Manager for engine and node. It does not start
// dispatch; call Start for that.
func New(engine *chain.Engine, node *peer.Node) *Manager {
	return &Manager{engine: engine, node: node}
}

// Start installs the Manager as node's message handler and subscribes
// to engine's acceptance hooks so that locally produced or
// newly-accepted blocks and transactions are gossiped onward.
func (m *Manager) Start() {
	m.node.SetHandler(m.handle)

	m.engine.OnBlockAccepted(func(b *chain.Block) {
		msg, err := peer.NewMessage(peer.MTypeNewBlock, b)
		if err != nil {
			log.Warnf("failed to encode NEW_BLOCK: %s", err)
			return
		}
		m.node.Broadcast(msg)
	})
	m.engine.OnTransactionAccepted(func(tx *chain.Transaction) {
		msg, err := peer.NewMessage(peer.MTypeNewTransaction, tx)
		if err != nil {
			log.Warnf("failed to encode NEW_TRANSACTION: %s", err)
			return
		}
		m.node.Broadcast(msg)
	})
}

func (m *Manager) handle(remote string, msg peer.Message) {
	switch msg.MType {
	case peer.MTypeGetPeers:
		m.handleGetPeers(remote)
	case peer.MTypePeersList:
		m.handlePeersList(msg)
	case peer.MTypeGetLatestBlock:
		m.handleGetLatestBlock(remote)
	case peer.MTypeLatestBlock:
		m.handleLatestBlock(remote, msg)
	case peer.MTypeGetBlock:
		m.handleGetBlock(remote, msg)
	case peer.MTypeBlock:
		m.handleBlock(remote, msg)
	case peer.MTypeNewBlock:
		m.handleNewBlock(msg)
	case peer.MTypeNewTransaction:
		m.handleNewTransaction(msg)
	case peer.MTypeGetConsensusData:
		m.handleGetConsensusData(remote)
	case peer.MTypeConsensusData:
		m.handleConsensusData(remote, msg)
	default:
		log.Debugf("unrecognized message type %q from %s", msg.MType, remote)
	}
}

func (m *Manager) handleGetPeers(remote string) {
	reply, err := peer.NewMessage(peer.MTypePeersList, m.node.Table().ListenAddrs())
	if err != nil {
		return
	}
	m.send(remote, reply)
}

func (m *Manager) handlePeersList(msg peer.Message) {
	var addrs []string
	if err := msg.Unmarshal(&addrs); err != nil {
		log.Debugf("malformed PEERS_LIST: %s", err)
		return
	}
	m.node.Discover(addrs)
}

func (m *Manager) handleGetLatestBlock(remote string) {
	tip := m.engine.Tip()
	if tip == nil {
		return
	}
	reply, err := peer.NewMessage(peer.MTypeLatestBlock, tip)
	if err != nil {
		return
	}
	m.send(remote, reply)
}

func (m *Manager) handleLatestBlock(remote string, msg peer.Message) {
	var remoteTip chain.Block
	if err := msg.Unmarshal(&remoteTip); err != nil {
		log.Debugf("malformed LATEST_BLOCK: %s", err)
		return
	}

	localTip := m.engine.Tip()
	switch {
	case localTip == nil, remoteTip.Index > localTip.Index:
		m.requestBlock(remote, localTipIndexOrZero(localTip)+1)
	case remoteTip.Index == localTip.Index && remoteTip.Hash() != localTip.Hash():
		m.requestConsensusData(remote)
	case remoteTip.Index < localTip.Index:
		m.requestConsensusData(remote)
	}
}

func localTipIndexOrZero(tip *chain.Block) uint64 {
	if tip == nil {
		return 0
	}
	return tip.Index
}

func (m *Manager) handleGetBlock(remote string, msg peer.Message) {
	var index uint64
	if err := msg.Unmarshal(&index); err != nil {
		log.Debugf("malformed GET_BLOCK: %s", err)
		return
	}
	b, ok := m.engine.BlockAt(index)
	if !ok {
		return
	}
	reply, err := peer.NewMessage(peer.MTypeBlock, &b)
	if err != nil {
		return
	}
	m.send(remote, reply)
}

func (m *Manager) handleBlock(remote string, msg peer.Message) {
	var b chain.Block
	if err := msg.Unmarshal(&b); err != nil {
		log.Debugf("malformed BLOCK: %s", err)
		return
	}
	if m.engine.ReceiveBlock(&b) {
		m.requestBlock(remote, b.Index+1)
		return
	}
	if m.reorgOnto(&b) && m.engine.ReceiveBlock(&b) {
		m.requestBlock(remote, b.Index+1)
		return
	}
	m.requestConsensusData(remote)
}

// reorgOnto rewinds the local chain to b's declared previous block when
// that block is already held locally at a position other than the
// current tip. A fork-resolution BLOCK extends the common ancestor
// rather than the local tip, so ReceiveBlock rejects it on the first
// attempt; rewinding onto the shared ancestor lets the retry succeed.
func (m *Manager) reorgOnto(b *chain.Block) bool {
	if b.Index == 0 {
		return false
	}
	prev, ok := m.engine.BlockAt(b.Index - 1)
	if !ok || prev.Hash() != b.PreviousHash {
		return false
	}
	if err := m.engine.Reorganize(int(b.Index) - 1); err != nil {
		log.Debugf("reorg to %d failed: %s", b.Index-1, err)
		return false
	}
	return true
}

func (m *Manager) handleNewBlock(msg peer.Message) {
	var b chain.Block
	if err := msg.Unmarshal(&b); err != nil {
		log.Debugf("malformed NEW_BLOCK: %s", err)
		return
	}
	m.engine.ReceiveBlock(&b)
}

func (m *Manager) handleNewTransaction(msg peer.Message) {
	var tx chain.Transaction
	if err := msg.Unmarshal(&tx); err != nil {
		log.Debugf("malformed NEW_TRANSACTION: %s", err)
		return
	}
	m.engine.ReceiveTransaction(&tx)
}

func (m *Manager) handleGetConsensusData(remote string) {
	data := consensusData{
		ChainHashes: m.engine.Fingerprint(),
		CumDiff:     m.engine.CumulativeDifficulty().String(),
	}
	reply, err := peer.NewMessage(peer.MTypeConsensusData, data)
	if err != nil {
		return
	}
	m.send(remote, reply)
}

// handleConsensusData implements spec.md §4.1's fork resolution: find
// the common ancestor, then compare cumulative difficulties to decide
// whether to push the next local block or request the next remote one.
func (m *Manager) handleConsensusData(remote string, msg peer.Message) {
	var data consensusData
	if err := msg.Unmarshal(&data); err != nil {
		log.Debugf("malformed CONSENSUS_DATA: %s", err)
		return
	}

	ancestor := m.engine.CommonAncestor(data.ChainHashes)
	if ancestor < 0 {
		log.Debugf("no common ancestor with %s; ignoring fork offer", remote)
		return
	}

	local := m.engine.CumulativeDifficulty()
	remoteDiff, ok := new(big.Int).SetString(data.CumDiff, 10)
	if !ok {
		log.Debugf("malformed cum_diff from %s", remote)
		return
	}

	switch local.Cmp(remoteDiff) {
	case 1:
		b, ok := m.engine.BlockAt(uint64(ancestor) + 1)
		if !ok {
			return
		}
		reply, err := peer.NewMessage(peer.MTypeBlock, &b)
		if err != nil {
			return
		}
		m.send(remote, reply)
	case -1:
		m.requestBlock(remote, uint64(ancestor)+1)
	default:
		// Equal cumulative difficulty: prefer the locally held chain.
	}
}

func (m *Manager) requestBlock(remote string, index uint64) {
	msg, err := peer.NewMessage(peer.MTypeGetBlock, index)
	if err != nil {
		return
	}
	m.send(remote, msg)
}

func (m *Manager) requestConsensusData(remote string) {
	msg, err := peer.NewMessage(peer.MTypeGetConsensusData, nil)
	if err != nil {
		return
	}
	m.send(remote, msg)
}

func (m *Manager) send(remote string, msg peer.Message) {
	if err := m.node.Send(remote, msg); err != nil {
		log.Debugf("send to %s failed: %s", remote, err)
	}
}
