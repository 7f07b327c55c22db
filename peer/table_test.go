package peer

import (
	"net"
	"testing"
)

func TestTableAddRemoveCount(t *testing.T) {
	table := NewTable()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	r := newRecord("127.0.0.1:1", "127.0.0.1:2000", clientConn)
	table.Add(r)
	if table.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", table.Count())
	}

	if _, ok := table.Get("127.0.0.1:1"); !ok {
		t.Error("Get did not find the added record")
	}

	if _, ok := table.Remove("127.0.0.1:1"); !ok {
		t.Error("Remove did not find the record")
	}
	if table.Count() != 0 {
		t.Errorf("Count() after Remove = %d, want 0", table.Count())
	}
}

func TestTableKnowsListenAddr(t *testing.T) {
	table := NewTable()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	r := newRecord("127.0.0.1:1", "127.0.0.1:6000", clientConn)
	table.Add(r)

	if !table.knows("127.0.0.1:6000") {
		t.Error("knows() returned false for a connected peer's listen address")
	}
	if table.knows("127.0.0.1:9999") {
		t.Error("knows() returned true for an address that was never added")
	}
}

func TestSeenSetAddIfAbsent(t *testing.T) {
	seen := NewSeenSet()
	if seen.AddIfAbsent("a") {
		t.Error("AddIfAbsent reported already-seen for a brand new id")
	}
	if !seen.AddIfAbsent("a") {
		t.Error("AddIfAbsent reported not-seen for an id added twice")
	}
}

func TestFilterPeerListExcludesSelfAndKnown(t *testing.T) {
	n := NewNode("127.0.0.1", "7000", 8)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	n.table.Add(newRecord("127.0.0.1:1", "127.0.0.1:7001", clientConn))

	addrs := []string{"127.0.0.1:7000", "127.0.0.1:7001", "127.0.0.1:7002"}
	got := n.FilterPeerList(addrs)

	if len(got) != 1 || got[0] != "127.0.0.1:7002" {
		t.Errorf("FilterPeerList = %v, want [127.0.0.1:7002]", got)
	}
}
