// Package chain implements the UTXO-based block and transaction engine:
// the data model, validation rules, UTXO bookkeeping, and fork
// resolution described by the protocol this node speaks. It is grounded
// on the shape of blockdag.BlockDAG in the teacher repo, generalized
// from a DAG to a single linear chain and from a scripting-capable UTXO
// model to the single-signature P2PKH-equivalent scheme this spec uses.
package chain

import (
	"encoding/json"

	"github.com/ledgerd/ledgerd/crypto"
)

// Output is a single payment to an address.
type Output struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Input references a previously unspent output by its owning
// transaction id and output index, plus the signature and public key
// proving the right to spend it. A coinbase transaction has no inputs.
type Input struct {
	PrevTxID  string `json:"prev_txid"`
	Vout      int    `json:"vout"`
	Signature []byte `json:"signature,omitempty"`
	PublicKey []byte `json:"public_key,omitempty"`
}

// Transaction is an ordered set of inputs consuming existing outputs and
// an ordered set of new outputs. Signature is a reserved top-level field;
// per-input signatures are authoritative.
type Transaction struct {
	Inputs    []Input  `json:"inputs"`
	Outputs   []Output `json:"outputs"`
	Signature []byte   `json:"signature,omitempty"`
}

// IsCoinbase reports whether tx mints new value rather than spending
// existing outputs.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// canonicalInput and canonicalOutput hold only the fields that are
// hashed into a txid, in the lexicographic field order the canonical
// JSON serialization requires ({prev_txid, vout} and {address, amount}
// respectively are already alphabetical).
type canonicalInput struct {
	PrevTxID string `json:"prev_txid"`
	Vout     int    `json:"vout"`
}

type canonicalOutput struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

type canonicalTx struct {
	Inputs  []canonicalInput  `json:"inputs"`
	Outputs []canonicalOutput `json:"outputs"`
}

// TxID computes SHA256(canonical_json({inputs, outputs})), hex-encoded.
// Signatures are excluded, so TxID is invariant under re-signing.
func (tx *Transaction) TxID() string {
	c := canonicalTx{
		Inputs:  make([]canonicalInput, len(tx.Inputs)),
		Outputs: make([]canonicalOutput, len(tx.Outputs)),
	}
	for i, in := range tx.Inputs {
		c.Inputs[i] = canonicalInput{PrevTxID: in.PrevTxID, Vout: in.Vout}
	}
	for i, out := range tx.Outputs {
		c.Outputs[i] = canonicalOutput{Address: out.Address, Amount: out.Amount}
	}
	// json.Marshal on a struct with no maps already produces no
	// whitespace and a fixed field order; it satisfies the canonical
	// JSON requirement without a general-purpose key sorter.
	b, err := json.Marshal(c)
	if err != nil {
		panic("chain: transaction is not serializable: " + err.Error())
	}
	return crypto.Sha256Hex(b)
}

// Sign attaches a signature and public key to every input of tx. The
// message signed is tx's txid, computed before any signatures are
// attached.
func (tx *Transaction) Sign(priv *crypto.PrivateKey) error {
	txid := tx.TxID()
	pub := crypto.SerializeUncompressedPublicKey(priv.PubKey())
	for i := range tx.Inputs {
		sig, err := crypto.Sign(priv, txid)
		if err != nil {
			return err
		}
		tx.Inputs[i].Signature = sig
		tx.Inputs[i].PublicKey = pub
	}
	return nil
}

// Verify checks every input's signature against tx's txid. A coinbase
// (no inputs) verifies vacuously true. Verify does not check that an
// input's public key corresponds to the address of the output it
// spends; see the note on signature/address binding in SPEC_FULL.md.
func (tx *Transaction) Verify() bool {
	if tx.IsCoinbase() {
		return true
	}
	txid := tx.TxID()
	for _, in := range tx.Inputs {
		if len(in.Signature) == 0 || len(in.PublicKey) == 0 {
			return false
		}
		if !crypto.Verify(in.PublicKey, in.Signature, txid) {
			return false
		}
	}
	return true
}

// sumOutputs sums the amounts of outs, used when comparing a
// transaction's output total against the value of its inputs.
func sumOutputs(outs []Output) float64 {
	var total float64
	for _, o := range outs {
		total += o.Amount
	}
	return total
}

// Block is an immutable, mined unit of the chain.
type Block struct {
	Index        uint64        `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
	Timestamp    int64         `json:"timestamp"`
	Nonce        uint64        `json:"nonce"`
	Difficulty   int           `json:"difficulty"`
	MerkleRoot   string        `json:"merkle_root"`
}

// canonicalBlock holds the fields hashed into a block hash, in the
// lexicographic field order {difficulty, index, merkle_root, nonce,
// previous_hash, timestamp} the canonical JSON serialization requires.
type canonicalBlock struct {
	Difficulty   int    `json:"difficulty"`
	Index        uint64 `json:"index"`
	MerkleRoot   string `json:"merkle_root"`
	Nonce        uint64 `json:"nonce"`
	PreviousHash string `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"`
}

// Hash computes SHA256(SHA256(canonical_json(b))), hex-encoded. It does
// not depend on the transaction bodies directly, only on MerkleRoot,
// which must already have been set to MerkleRoot(b.Transactions).
func (b *Block) Hash() string {
	c := canonicalBlock{
		Difficulty:   b.Difficulty,
		Index:        b.Index,
		MerkleRoot:   b.MerkleRoot,
		Nonce:        b.Nonce,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
	}
	payload, err := json.Marshal(c)
	if err != nil {
		panic("chain: block is not serializable: " + err.Error())
	}
	return crypto.Sha256dHex(payload)
}

// MeetsDifficulty reports whether hash has at least difficulty leading
// hex zero digits.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	for _, c := range hash[:difficulty] {
		if c != '0' {
			return false
		}
	}
	return true
}
