package peer_test

import (
	"testing"

	"github.com/ledgerd/ledgerd/peer"
)

func TestMessageIDIsDeterministic(t *testing.T) {
	msg, err := peer.NewMessage(peer.MTypeGetPeers, nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %s", err)
	}

	first, err := msg.ID()
	if err != nil {
		t.Fatalf("ID failed: %s", err)
	}
	second, err := msg.ID()
	if err != nil {
		t.Fatalf("ID failed: %s", err)
	}
	if first != second {
		t.Errorf("ID is not deterministic: %s != %s", first, second)
	}
}

func TestMessageIDChangesWithData(t *testing.T) {
	a, err := peer.NewMessage(peer.MTypeGetBlock, 1)
	if err != nil {
		t.Fatalf("NewMessage failed: %s", err)
	}
	b, err := peer.NewMessage(peer.MTypeGetBlock, 2)
	if err != nil {
		t.Fatalf("NewMessage failed: %s", err)
	}

	idA, _ := a.ID()
	idB, _ := b.ID()
	if idA == idB {
		t.Error("messages with different payloads produced the same id")
	}
}

func TestUnmarshalRoundTrip(t *testing.T) {
	type payload struct {
		Value int `json:"value"`
	}
	msg, err := peer.NewMessage(peer.MTypeGetBlock, payload{Value: 42})
	if err != nil {
		t.Fatalf("NewMessage failed: %s", err)
	}

	var decoded payload
	if err := msg.Unmarshal(&decoded); err != nil {
		t.Fatalf("Unmarshal failed: %s", err)
	}
	if decoded.Value != 42 {
		t.Errorf("decoded.Value = %d, want 42", decoded.Value)
	}
}

func TestUnmarshalEmptyDataFails(t *testing.T) {
	msg, err := peer.NewMessage(peer.MTypeGetPeers, nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %s", err)
	}
	var v int
	if err := msg.Unmarshal(&v); err == nil {
		t.Error("Unmarshal should fail when the message carries no data")
	}
}
