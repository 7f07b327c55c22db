package chain

import (
	"time"

	"github.com/pkg/errors"
)

// validateBlockLocked applies the ordered rules of spec.md §4.1. It
// must be called with e.mu held for writing; it reads e.chain and
// e.utxo but does not mutate them. It only accepts a block extending
// the current tip; a block that extends an earlier ancestor is
// rejected here (protocol's reorgOnto rewinds the chain before
// retrying ReceiveBlock).
func (e *Engine) validateBlockLocked(b *Block) error {
	tip := e.tipLocked()

	if tip != nil {
		if b.PreviousHash != tip.Hash() {
			return errors.New("previous_hash does not match tip")
		}
	}

	hash := b.Hash()
	if !MeetsDifficulty(hash, b.Difficulty) {
		return errors.New("block hash does not meet its difficulty target")
	}

	if tip != nil && hash == tip.Hash() {
		return errors.New("block is identical to the current tip")
	}

	// Compared against the full-resolution clock so that a block
	// stamped in the current second is already in the past.
	if !time.Unix(b.Timestamp, 0).Before(e.now()) {
		return errors.New("block timestamp is not strictly in the past")
	}

	if want := MerkleRoot(b.Transactions); want != b.MerkleRoot {
		return errors.New("merkle root does not match transactions")
	}

	if err := validateTransactionsJointly(b.Transactions, e.utxo); err != nil {
		return err
	}

	return nil
}

// validateTransactionsJointly checks every transaction in txs against
// utxo, maintaining a within-block "used" set so that two transactions
// in the same block cannot spend the same outpoint (the double-spend
// guard of spec.md §4.1).
func validateTransactionsJointly(txs []Transaction, utxo UTXOSet) error {
	used := make(map[OutPoint]struct{})
	for _, tx := range txs {
		if err := validateAgainst(tx, utxo, used); err != nil {
			return err
		}
	}
	return nil
}

func validateAgainst(tx Transaction, utxo UTXOSet, used map[OutPoint]struct{}) error {
	if !tx.IsCoinbase() {
		var inputTotal float64
		for _, in := range tx.Inputs {
			op := OutPoint{TxID: in.PrevTxID, Vout: in.Vout}
			out, ok := utxo.Get(op)
			if !ok {
				return errors.Errorf("input %s does not reference an unspent output", op)
			}
			if _, taken := used[op]; taken {
				return errors.Errorf("input %s is a double-spend within this block", op)
			}
			used[op] = struct{}{}
			inputTotal += out.Amount
		}
		if inputTotal < sumOutputs(tx.Outputs) {
			return errors.New("transaction outputs exceed inputs")
		}
	}

	if !tx.Verify() {
		return errors.New("transaction signature verification failed")
	}

	return nil
}

// validateStandaloneLocked validates tx against the engine's current
// UTXO set and in-flight mempool, outside the context of a candidate
// block. It must be called with e.mu held.
func (e *Engine) validateStandaloneLocked(tx *Transaction) error {
	used := make(map[OutPoint]struct{})
	for _, pending := range e.mempool {
		for _, in := range pending.Inputs {
			used[OutPoint{TxID: in.PrevTxID, Vout: in.Vout}] = struct{}{}
		}
	}
	return validateAgainst(*tx, e.utxo, used)
}
