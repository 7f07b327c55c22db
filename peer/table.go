package peer

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is the single peer-record type called for by spec.md §9's
// "global peer registry triplets" redesign flag: one struct per
// connected peer, replacing the teacher's separate peers/listen_ports/
// peer_sockets-style mappings with one mapping keyed by remote
// endpoint.
type Record struct {
	ID     string // locally generated, unique to this connection's lifetime
	Remote string // remote socket endpoint, e.g. "203.0.113.4:51710"
	Listen string // peer's advertised listen endpoint, e.g. "203.0.113.4:6004"

	conn    net.Conn
	writeMu sync.Mutex
}

// newRecord builds a Record for conn, tagging it with a fresh
// connection id used only for log correlation (never sent on the
// wire).
func newRecord(remote, listen string, conn net.Conn) *Record {
	return &Record{ID: uuid.NewString(), Remote: remote, Listen: listen, conn: conn}
}

// Send frames and writes msg to the peer. Per spec.md §5, sends are
// best-effort: a failure is returned to the caller for logging but must
// never tear down the connection by itself.
func (r *Record) Send(msg Message) error {
	encoded, err := msg.Encode()
	if err != nil {
		return err
	}
	framed := EncodeFrame(encoded)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_, err = r.conn.Write(framed)
	return err
}

// Table is the peer table of spec.md §3/§4.4: the set of connected
// peers keyed by remote endpoint, updated atomically on connect and
// disconnect.
type Table struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewTable creates an empty peer table.
func NewTable() *Table {
	return &Table{records: make(map[string]*Record)}
}

// Add records a new peer, atomically replacing the table's
// remote-endpoint mapping.
func (t *Table) Add(r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[r.Remote] = r
}

// Remove atomically deletes remote from the table, returning the
// removed record (if present) so the caller can close its connection.
func (t *Table) Remove(remote string) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[remote]
	if ok {
		delete(t.records, remote)
	}
	return r, ok
}

// Get returns the record for remote, if connected.
func (t *Table) Get(remote string) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[remote]
	return r, ok
}

// Count returns the number of connected peers.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Snapshot returns a stable copy of the currently connected records,
// safe to range over without holding the table's lock.
func (t *Table) Snapshot() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	return out
}

// ListenAddrs returns every connected peer's advertised listen
// endpoint, the payload of a PEERS_LIST reply.
func (t *Table) ListenAddrs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r.Listen)
	}
	return out
}

// knows reports whether addr is already a known peer's listen
// endpoint, used to filter a received PEERS_LIST (SPEC_FULL.md §D.1).
func (t *Table) knows(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.Listen == addr {
			return true
		}
	}
	return false
}

// CloseAll closes every connected peer's socket, part of the
// cancellation procedure of spec.md §5.
func (t *Table) CloseAll() {
	t.mu.Lock()
	records := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		records = append(records, r)
	}
	t.records = make(map[string]*Record)
	t.mu.Unlock()

	for _, r := range records {
		_ = r.conn.Close()
	}
}

// SeenSet stores ids of recently processed gossip messages so that
// broadcast loops terminate, per spec.md §4.4.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSeenSet creates an empty seen-message set.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// AddIfAbsent records id and reports whether it was already present.
func (s *SeenSet) AddIfAbsent(id string) (alreadySeen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

// errPeerCapReached is returned by Node.Dial when the connection cap
// named in spec.md §4.4 is already reached.
var errPeerCapReached = errors.New("peer cap reached")
