// Package peer implements the TCP connection lifecycle, message
// framing, peer table, and gossip deduplication described by
// spec.md §4.4. It is grounded on the shape of the teacher's
// netadapter package (a NetAdapter owning named connections dispatched
// through a router) generalized from the teacher's binary,
// length-prefixed domainmessage wire format to this spec's `\r\n`
// delimited JSON envelopes, and from the teacher's
// connmanager/addrmgr/netadapter connection-mapping trio to the single
// peer-record type called for by spec.md §9's "global peer registry
// triplets" redesign flag.
package peer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// MType enumerates the message repertoire of spec.md §4.5.
type MType string

const (
	MTypePort              MType = "PORT"
	MTypeGetPeers          MType = "GET_PEERS"
	MTypePeersList         MType = "PEERS_LIST"
	MTypeGetLatestBlock    MType = "GET_LATEST_BLOCK"
	MTypeLatestBlock       MType = "LATEST_BLOCK"
	MTypeGetBlock          MType = "GET_BLOCK"
	MTypeBlock             MType = "BLOCK"
	MTypeNewBlock          MType = "NEW_BLOCK"
	MTypeNewTransaction    MType = "NEW_TRANSACTION"
	MTypeGetConsensusData  MType = "GET_CONSENSUS_DATA"
	MTypeConsensusData     MType = "CONSENSUS_DATA"
)

// Message is the wire envelope of spec.md §4.4: {m_type, broadcast,
// data}. Data is kept as raw JSON so that framing and dispatch can be
// layered independently: this package never needs to know the shape of
// a block or transaction.
type Message struct {
	MType     MType           `json:"m_type"`
	Broadcast bool            `json:"broadcast"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a Message carrying data marshaled to JSON.
func NewMessage(mtype MType, data interface{}) (Message, error) {
	if data == nil {
		return Message{MType: mtype}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, errors.Wrapf(err, "failed to encode %s payload", mtype)
	}
	return Message{MType: mtype, Data: raw}, nil
}

// Encode serializes m to JSON; it does not include the `\r\n` frame
// delimiter, which EncodeFrame appends.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ID is SHA256(framed_bytes), hex-encoded, used for broadcast
// deduplication.
func (m Message) ID() (string, error) {
	b, err := m.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(EncodeFrame(b))
	return hex.EncodeToString(sum[:]), nil
}

// Unmarshal decodes m.Data into v.
func (m Message) Unmarshal(v interface{}) error {
	if len(m.Data) == 0 {
		return errors.New("message carries no data")
	}
	return json.Unmarshal(m.Data, v)
}
