package chain

import "github.com/ledgerd/ledgerd/crypto"

// MerkleRoot hashes each transaction's txid, then repeatedly pairs and
// hashes consecutive elements, duplicating the last element when the
// level has an odd count, until a single root hash remains. An empty
// transaction list hashes to SHA256("").
func MerkleRoot(txs []Transaction) string {
	if len(txs) == 0 {
		return crypto.Sha256Hex(nil)
	}

	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = tx.TxID()
	}

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, crypto.Sha256Hex([]byte(left+right)))
		}
		level = next
	}
	return level[0]
}
