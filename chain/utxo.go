package chain

import "fmt"

// OutPoint identifies a single output: the transaction that created it
// and its index within that transaction's output list.
type OutPoint struct {
	TxID string
	Vout int
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// UTXOSet is the pluggable backing store for unspent outputs (spec.md
// §6's UTXO snapshot cache collaborator). The chain engine only ever
// touches a set through this interface, so a caller may back it with
// an in-process map (the engine's own default, or storage.UTXOCache) or an
// external key-value store.
type UTXOSet interface {
	Get(o OutPoint) (Output, bool)
	Put(o OutPoint, out Output)
	Delete(o OutPoint)
	// Scan must produce a stable snapshot of the set at the moment it
	// is called; callers (balance, find_inputs) must not observe a set
	// mutated mid-iteration.
	Scan() map[OutPoint]Output
}

// mapUTXOSet is the in-process default UTXOSet. It is not safe for
// concurrent use on its own; Engine serializes access to it under its
// own mutex.
type mapUTXOSet struct {
	m map[OutPoint]Output
}

func newMapUTXOSet() *mapUTXOSet {
	return &mapUTXOSet{m: make(map[OutPoint]Output)}
}

func (s *mapUTXOSet) Get(o OutPoint) (Output, bool) {
	out, ok := s.m[o]
	return out, ok
}

func (s *mapUTXOSet) Put(o OutPoint, out Output) {
	s.m[o] = out
}

func (s *mapUTXOSet) Delete(o OutPoint) {
	delete(s.m, o)
}

func (s *mapUTXOSet) Scan() map[OutPoint]Output {
	snapshot := make(map[OutPoint]Output, len(s.m))
	for k, v := range s.m {
		snapshot[k] = v
	}
	return snapshot
}

// apply folds a block's transactions into set: every input's outpoint
// is removed, then every output is inserted under its own (txid, vout).
// Applying coinbase and regular transactions is identical; a coinbase
// simply has no inputs to remove.
func apply(set UTXOSet, block *Block) {
	for _, tx := range block.Transactions {
		txid := tx.TxID()
		for _, in := range tx.Inputs {
			set.Delete(OutPoint{TxID: in.PrevTxID, Vout: in.Vout})
		}
		for i, out := range tx.Outputs {
			set.Put(OutPoint{TxID: txid, Vout: i}, out)
		}
	}
}
