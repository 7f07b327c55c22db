package storage

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ledgerd/ledgerd/chain"
)

// blockKeyPrefix and txKeyPrefix namespace the two record kinds kept
// in one LevelDB handle, following palaseus-Adrenochain's
// storage.makeBlockKey convention.
const (
	blockKeyPrefix = "block:"
	txKeyPrefix    = "mempool:"
)

// LevelDBStore is the on-disk chain.BlockStore and chain.TransactionStore
// used when a node is configured with a data directory. It is grounded
// on palaseus-Adrenochain's pkg/storage.LevelDBStorage, generalized
// from that type's single combined responsibility into the two
// narrower collaborator interfaces chain.Engine expects, and keyed by
// block index (left-zero-padded for lexicographic = numeric order)
// rather than by hash, since LoadChain must replay blocks in order.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database
// rooted at dataDir.
func OpenLevelDBStore(dataDir string) (*LevelDBStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	db, err := leveldb.OpenFile(dataDir, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb")
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// StoreBlock persists b under a key ordered by its height.
func (s *LevelDBStore) StoreBlock(b *chain.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "failed to marshal block")
	}
	return s.db.Put(blockKey(b.Index), data, nil)
}

// LoadChain replays every stored block in height order.
func (s *LevelDBStore) LoadChain() ([]chain.Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()

	var blocks []chain.Block
	for iter.Next() {
		var b chain.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal stored block")
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate stored blocks")
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	return blocks, nil
}

// StoreTransaction persists a pending transaction so an unconfirmed
// mempool can survive a restart.
func (s *LevelDBStore) StoreTransaction(tx *chain.Transaction) error {
	txid := tx.TxID()
	data, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "failed to marshal transaction")
	}
	return s.db.Put(txKey(txid), data, nil)
}

// LoadTransactions returns every persisted pending transaction.
func (s *LevelDBStore) LoadTransactions() ([]chain.Transaction, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(txKeyPrefix)), nil)
	defer iter.Release()

	var txs []chain.Transaction
	for iter.Next() {
		var tx chain.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal stored transaction")
		}
		txs = append(txs, tx)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate stored transactions")
	}
	return txs, nil
}

// DiscardTransaction removes a transaction from persisted mempool
// storage once it has been confirmed in a block.
func (s *LevelDBStore) DiscardTransaction(txid string) error {
	return s.db.Delete(txKey(txid), nil)
}

func blockKey(index uint64) []byte {
	return []byte(blockKeyPrefix + padIndex(index))
}

func txKey(txid string) []byte {
	return []byte(txKeyPrefix + txid)
}

// padIndex zero-pads a block height to a fixed width so that
// lexicographic LevelDB key order matches numeric height order.
func padIndex(index uint64) string {
	const width = 20 // enough digits for any uint64
	s := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + index%10)
		index /= 10
	}
	return string(s)
}
