package peer

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgerd/ledgerd/logger"
	"github.com/ledgerd/ledgerd/util/panics"
)

var log = logger.Get(logger.SubsystemTags.PEER)

// syncInterval is the periodic resync period of spec.md §4.4: every
// tick, a node asks its peers for their latest block and, if under the
// peer cap, requests more peers.
const syncInterval = 600 * time.Second

// readTimeout bounds how long a per-peer read may block, so a stalled
// or malicious peer cannot pin a goroutine forever.
const readTimeout = 60 * time.Second

// Handler dispatches an inbound, already-deduplicated message from
// remote to the protocol layer.
type Handler func(remote string, msg Message)

// Node owns the TCP listener, the peer table, and the gossip
// deduplication set described by spec.md §4.4, generalized from the
// teacher's NetAdapter/connmanager/addrmgr trio into a single type
// per spec.md §9's redesign flag.
type Node struct {
	listenHost string
	listenPort string
	maxPeers   int

	table   *Table
	seen    *SeenSet
	handler Handler

	listener net.Listener
	active   int32
}

// NewNode creates a Node that will advertise listenHost:listenPort to
// peers and accept at most maxPeers simultaneous connections.
func NewNode(listenHost, listenPort string, maxPeers int) *Node {
	return &Node{
		listenHost: listenHost,
		listenPort: listenPort,
		maxPeers:   maxPeers,
		table:      NewTable(),
		seen:       NewSeenSet(),
	}
}

// SetHandler installs the callback invoked for every inbound message
// not already seen.
func (n *Node) SetHandler(h Handler) {
	n.handler = h
}

// ListenAddr is this node's own advertised endpoint, sent in PORT
// handshakes and used to filter self-dials out of a received
// PEERS_LIST (SPEC_FULL.md §D.1).
func (n *Node) ListenAddr() string {
	return net.JoinHostPort(n.listenHost, n.listenPort)
}

// Table exposes the peer table for protocol-layer broadcast/peer-list
// construction.
func (n *Node) Table() *Table {
	return n.table
}

// Listen binds the TCP listener and starts accepting inbound
// connections in the background. It returns once the bind succeeds or
// fails; bind failure is the Fatal error class of spec.md §7.
func (n *Node) Listen() error {
	l, err := net.Listen("tcp", net.JoinHostPort(n.listenHost, n.listenPort))
	if err != nil {
		return errors.Wrap(err, "failed to bind listener")
	}
	n.listener = l
	atomic.StoreInt32(&n.active, 1)

	panics.GoroutineWrapperFunc(log)(n.acceptLoop)
	return nil
}

// Close stops accepting new connections and closes every connected
// peer's socket, unblocking any in-flight reads, per spec.md §5's
// cancellation procedure.
func (n *Node) Close() {
	atomic.StoreInt32(&n.active, 0)
	if n.listener != nil {
		_ = n.listener.Close()
	}
	n.table.CloseAll()
}

func (n *Node) acceptLoop() {
	for atomic.LoadInt32(&n.active) == 1 {
		conn, err := n.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&n.active) == 0 {
				return
			}
			log.Warnf("accept error: %s", err)
			continue
		}
		panics.GoroutineWrapperFunc(log)(func() { n.handleInbound(conn) })
	}
}

// handleInbound waits for the new peer's PORT handshake before
// admitting it to the table, enforcing the connection cap
// symmetrically with outbound dials (SPEC_FULL.md §D.5).
func (n *Node) handleInbound(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	if n.table.Count() >= n.maxPeers {
		log.Debugf("rejecting inbound connection from %s: peer cap reached", remote)
		_ = conn.Close()
		return
	}

	reader := NewFrameReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	msg, err := reader.ReadMessage()
	if err != nil {
		log.Debugf("inbound handshake from %s failed: %s", remote, err)
		_ = conn.Close()
		return
	}
	if msg.MType != MTypePort {
		log.Debugf("inbound peer %s skipped PORT handshake", remote)
		_ = conn.Close()
		return
	}
	var port string
	if err := msg.Unmarshal(&port); err != nil {
		log.Debugf("inbound peer %s sent malformed PORT payload: %s", remote, err)
		_ = conn.Close()
		return
	}

	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	record := newRecord(remote, net.JoinHostPort(host, port), conn)
	n.table.Add(record)
	log.Infof("accepted inbound peer %s (listen %s, conn %s)", remote, record.Listen, record.ID)
	n.sendInitialSync(record)

	n.readLoop(reader, record)
}

// Dial opens an outbound connection to host:port, performs the PORT
// handshake, and admits the peer to the table, enforcing the same cap
// as inbound connections.
func (n *Node) Dial(host, port string) error {
	addr := net.JoinHostPort(host, port)
	if n.table.Count() >= n.maxPeers {
		return errPeerCapReached
	}
	if addr == n.ListenAddr() {
		return errors.New("refusing to dial self")
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", addr)
	}

	record := newRecord(conn.RemoteAddr().String(), addr, conn)
	portMsg, err := NewMessage(MTypePort, n.listenPort)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := record.Send(portMsg); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to send PORT handshake")
	}

	n.table.Add(record)
	log.Infof("dialed peer %s (conn %s)", addr, record.ID)
	n.sendInitialSync(record)

	reader := NewFrameReader(conn)
	panics.GoroutineWrapperFunc(log)(func() { n.readLoop(reader, record) })
	return nil
}

// sendInitialSync sends GET_LATEST_BLOCK and GET_PEERS to a
// newly-admitted peer, per spec.md §4.4: "after either handshake, the
// establisher sends GET_LATEST_BLOCK and GET_PEERS" so that chain and
// peer-list convergence starts immediately rather than waiting for the
// next RunPeriodicSync tick.
func (n *Node) sendInitialSync(record *Record) {
	if tipMsg, err := NewMessage(MTypeGetLatestBlock, nil); err == nil {
		if err := record.Send(tipMsg); err != nil {
			log.Debugf("initial GET_LATEST_BLOCK to %s failed: %s", record.Remote, err)
		}
	}
	if peersMsg, err := NewMessage(MTypeGetPeers, nil); err == nil {
		if err := record.Send(peersMsg); err != nil {
			log.Debugf("initial GET_PEERS to %s failed: %s", record.Remote, err)
		}
	}
}

// readLoop services one peer connection until it errors or closes,
// dispatching every not-already-seen message to the installed handler
// and gossiping broadcast messages on to every other peer.
func (n *Node) readLoop(reader *FrameReader, record *Record) {
	defer n.disconnect(record)

	for atomic.LoadInt32(&n.active) == 1 {
		_ = record.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := reader.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Debugf("peer %s disconnected: %s", record.Remote, err)
			return
		}

		id, err := msg.ID()
		if err != nil {
			continue
		}
		if n.seen.AddIfAbsent(id) {
			continue
		}

		if msg.Broadcast {
			n.relay(record.Remote, msg)
		}

		if n.handler != nil {
			n.handler(record.Remote, msg)
		}
	}
}

func (n *Node) disconnect(record *Record) {
	if _, ok := n.table.Remove(record.Remote); ok {
		_ = record.conn.Close()
	}
}

// Send delivers msg to exactly one peer.
func (n *Node) Send(remote string, msg Message) error {
	record, ok := n.table.Get(remote)
	if !ok {
		return errors.Errorf("unknown peer %s", remote)
	}
	return record.Send(msg)
}

// Broadcast marks msg for gossip, records its id as seen (so it never
// loops back to this node), and fans it out to every connected peer.
func (n *Node) Broadcast(msg Message) {
	msg.Broadcast = true
	if id, err := msg.ID(); err == nil {
		n.seen.AddIfAbsent(id)
	}
	n.relay("", msg)
}

// relay forwards msg to every peer except excludeRemote, logging (but
// not acting on) individual send failures per spec.md §5.
func (n *Node) relay(excludeRemote string, msg Message) {
	for _, record := range n.table.Snapshot() {
		if record.Remote == excludeRemote {
			continue
		}
		if err := record.Send(msg); err != nil {
			log.Debugf("send to %s failed: %s", record.Remote, err)
		}
	}
}

// FilterPeerList removes this node's own listen address and any
// already-known peer from a received PEERS_LIST, per SPEC_FULL.md
// §D.1, so that Discover only dials genuinely new peers.
func (n *Node) FilterPeerList(addrs []string) []string {
	self := n.ListenAddr()
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == self || n.table.knows(addr) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Discover dials every address in a filtered peer list until the
// connection cap is reached.
func (n *Node) Discover(addrs []string) {
	for _, addr := range n.FilterPeerList(addrs) {
		if n.table.Count() >= n.maxPeers {
			return
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		if err := n.Dial(host, port); err != nil {
			log.Debugf("discover dial to %s failed: %s", addr, err)
		}
	}
}

// RunPeriodicSync broadcasts a GET_LATEST_BLOCK request every syncInterval,
// and a peer-discovery request whenever the node is below its peer
// cap, per spec.md §4.4.
func (n *Node) RunPeriodicSync() {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for range ticker.C {
		if atomic.LoadInt32(&n.active) == 0 {
			return
		}
		tipMsg, err := NewMessage(MTypeGetLatestBlock, nil)
		if err == nil {
			n.Broadcast(tipMsg)
		}
		if n.table.Count() < n.maxPeers {
			peersMsg, err := NewMessage(MTypeGetPeers, nil)
			if err == nil {
				n.Broadcast(peersMsg)
			}
		}
	}
}
