package chain

import "github.com/pkg/errors"

// HashAtIndex is one entry of a chain fingerprint: the block hash
// expected at a given height. It is the wire shape of spec.md §4.5's
// CONSENSUS_DATA chain_hashes list.
type HashAtIndex struct {
	Index uint64 `json:"index"`
	Hash  string `json:"hash"`
}

// Fingerprint returns {index, hash} for every accepted block, used to
// negotiate a common ancestor with a peer during fork resolution.
func (e *Engine) Fingerprint() []HashAtIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HashAtIndex, len(e.chain))
	for i := range e.chain {
		out[i] = HashAtIndex{Index: e.chain[i].Index, Hash: e.chain[i].Hash()}
	}
	return out
}

// CommonAncestor scans remote against the local chain and returns the
// index of the highest block both fingerprints agree on, or -1 if even
// genesis disagrees (which should not happen on a shared genesis
// network, but is handled rather than panicking).
func (e *Engine) CommonAncestor(remote []HashAtIndex) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	local := make(map[uint64]string, len(e.chain))
	for i := range e.chain {
		local[e.chain[i].Index] = e.chain[i].Hash()
	}

	common := -1
	for _, r := range remote {
		if h, ok := local[r.Index]; ok && h == r.Hash {
			if int(r.Index) > common {
				common = int(r.Index)
			}
		}
	}
	return common
}

// Reorganize truncates the local chain back to commonAncestor
// (inclusive) and rebuilds the UTXO set by replaying the surviving
// chain from genesis, per spec.md §4.1 rule 3. After it returns, the
// caller is expected to request successive blocks starting at
// commonAncestor+1 via GET_BLOCK and feed them through ReceiveBlock.
func (e *Engine) Reorganize(commonAncestor int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if commonAncestor < 0 || commonAncestor >= len(e.chain) {
		return errors.Errorf("common ancestor index %d out of range", commonAncestor)
	}

	e.chain = e.chain[:commonAncestor+1]
	for op := range e.utxo.Scan() {
		e.utxo.Delete(op)
	}
	for i := range e.chain {
		apply(e.utxo, &e.chain[i])
	}
	return nil
}
