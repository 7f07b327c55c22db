package chain

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgerd/ledgerd/logger"
)

var log = logger.Get(logger.SubsystemTags.CHAN)

const (
	// BaseDifficulty is the conventional base difficulty. Engine does not
	// read it: DynamicDifficulty returns the value passed to New until
	// the chain is longer than RetargetWindow.
	BaseDifficulty = 5

	// RetargetWindow is the chain-length threshold (and block-span)
	// used by DynamicDifficulty.
	RetargetWindow = 20

	// RetargetTargetSeconds is the desired number of seconds for
	// RetargetWindow blocks to be produced.
	RetargetTargetSeconds = 1200

	// CoinbaseReward is the fixed amount paid to a miner's coinbase
	// output.
	CoinbaseReward = 1
)

// BlockStore is the persistence collaborator named in spec.md §6. The
// core calls it opportunistically on every accepted block; failures are
// logged and never fatal or propagated to the caller of ReceiveBlock.
type BlockStore interface {
	StoreBlock(b *Block) error
	LoadChain() ([]Block, error)
}

// TransactionStore is the persistence collaborator named in spec.md §6
// for unconfirmed transactions.
type TransactionStore interface {
	StoreTransaction(tx *Transaction) error
	LoadTransactions() ([]Transaction, error)
}

// Engine is the single coordinator type owning the chain, UTXO set, and
// mempool, per the re-architecture note in spec.md §9 ("a single
// coordinator type ... exposing narrow operations, each internally
// taking the appropriate lock"). All exported methods are safe for
// concurrent use.
type Engine struct {
	mu sync.RWMutex

	chain   []Block
	utxo    UTXOSet
	mempool map[string]Transaction

	baseDifficulty int
	now            func() time.Time

	blockStore BlockStore
	txStore    TransactionStore

	blockHooks []func(*Block)
	txHooks    []func(*Transaction)
}

// New creates an Engine with an empty chain. utxo may be nil, in which
// case an in-process map is used (storage.NewUTXOCache provides an
// equivalent set, exported for callers that want to share one instance
// across components).
func New(baseDifficulty int, utxo UTXOSet) *Engine {
	if utxo == nil {
		utxo = newMapUTXOSet()
	}
	return &Engine{
		utxo:           utxo,
		mempool:        make(map[string]Transaction),
		baseDifficulty: baseDifficulty,
		now:            time.Now,
	}
}

// SetStores attaches optional block/transaction persistence adapters.
func (e *Engine) SetStores(blocks BlockStore, txs TransactionStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blockStore = blocks
	e.txStore = txs
}

// OnBlockAccepted registers fn to be invoked, outside the engine's
// lock, every time ReceiveBlock or MineOne appends a new block. The
// miner subscribes to this to preempt an in-flight proof-of-work
// attempt; the peer layer subscribes to rebroadcast NEW_BLOCK.
func (e *Engine) OnBlockAccepted(fn func(*Block)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blockHooks = append(e.blockHooks, fn)
}

// OnTransactionAccepted registers fn to be invoked whenever
// ReceiveTransaction admits a transaction to the mempool. The peer
// layer subscribes to this to rebroadcast NEW_TRANSACTION.
func (e *Engine) OnTransactionAccepted(fn func(*Transaction)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.txHooks = append(e.txHooks, fn)
}

// CreateGenesis produces the height-0 block with empty transactions,
// proves it at difficulty, and installs it. It fails if the chain is
// non-empty.
func (e *Engine) CreateGenesis(difficulty int) error {
	e.mu.Lock()
	if len(e.chain) != 0 {
		e.mu.Unlock()
		return errors.New("chain already has a genesis block")
	}
	genesis := Block{
		Index:        0,
		PreviousHash: "0",
		Transactions: nil,
		Timestamp:    e.now().Unix(),
		Nonce:        0,
		Difficulty:   difficulty,
	}
	genesis.MerkleRoot = MerkleRoot(genesis.Transactions)
	ProveWork(&genesis, func() bool { return false })
	e.appendLocked(&genesis)
	e.mu.Unlock()

	e.runBlockHooks(&genesis)
	return nil
}

// ReceiveBlock validates b against the rules in spec.md §4.1 and, on
// success, appends it, updates the UTXO set, and prunes the mempool.
// It returns false on any validation failure; nothing a peer sends can
// crash the node.
func (e *Engine) ReceiveBlock(b *Block) bool {
	e.mu.Lock()
	if err := e.validateBlockLocked(b); err != nil {
		e.mu.Unlock()
		log.Debugf("rejected block %d: %s", b.Index, err)
		return false
	}
	e.appendLocked(b)
	e.mu.Unlock()

	e.runBlockHooks(b)
	return true
}

// ReceiveTransaction standalone-validates tx against the current UTXO
// set and, on success, admits it to the mempool.
func (e *Engine) ReceiveTransaction(tx *Transaction) bool {
	e.mu.Lock()
	if tx.IsCoinbase() {
		e.mu.Unlock()
		return false
	}
	txid := tx.TxID()
	if _, exists := e.mempool[txid]; exists {
		e.mu.Unlock()
		return true
	}
	if err := e.validateStandaloneLocked(tx); err != nil {
		e.mu.Unlock()
		log.Debugf("rejected transaction %s: %s", txid, err)
		return false
	}
	e.mempool[txid] = *tx
	if e.txStore != nil {
		if err := e.txStore.StoreTransaction(tx); err != nil {
			log.Warnf("failed to persist transaction %s: %s", txid, err)
		}
	}
	e.mu.Unlock()

	e.runTxHooks(tx)
	return true
}

func (e *Engine) runBlockHooks(b *Block) {
	e.mu.RLock()
	hooks := append([]func(*Block){}, e.blockHooks...)
	e.mu.RUnlock()
	for _, h := range hooks {
		h(b)
	}
}

func (e *Engine) runTxHooks(tx *Transaction) {
	e.mu.RLock()
	hooks := append([]func(*Transaction){}, e.txHooks...)
	e.mu.RUnlock()
	for _, h := range hooks {
		h(tx)
	}
}

// appendLocked must be called with e.mu held. It appends b, folds it
// into the UTXO set, prunes confirmed transactions from the mempool,
// and persists b opportunistically.
func (e *Engine) appendLocked(b *Block) {
	e.chain = append(e.chain, *b)
	apply(e.utxo, b)
	for _, tx := range b.Transactions {
		delete(e.mempool, tx.TxID())
	}
	if e.blockStore != nil {
		if err := e.blockStore.StoreBlock(b); err != nil {
			log.Warnf("failed to persist block %d: %s", b.Index, err)
		}
	}
}

func (e *Engine) tipLocked() *Block {
	if len(e.chain) == 0 {
		return nil
	}
	return &e.chain[len(e.chain)-1]
}

// Tip returns a copy of the highest-index accepted block, or nil if the
// chain is empty.
func (e *Engine) Tip() *Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tip := e.tipLocked()
	if tip == nil {
		return nil
	}
	cp := *tip
	return &cp
}

// Len returns the number of accepted blocks.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chain)
}

// BlockAt returns a copy of the block at index, or false if out of
// range.
func (e *Engine) BlockAt(index uint64) (Block, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index >= uint64(len(e.chain)) {
		return Block{}, false
	}
	return e.chain[index], true
}

// Chain returns a copy of the full accepted chain.
func (e *Engine) Chain() []Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Block, len(e.chain))
	copy(out, e.chain)
	return out
}

// Balance sums the amounts of every UTXO owned by address.
func (e *Engine) Balance(address string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total float64
	for _, out := range e.utxo.Scan() {
		if out.Address == address {
			total += out.Amount
		}
	}
	return total
}

// FindInputs greedily selects UTXOs owned by sender whose total amount
// is at least amount. It returns the total selected and the inputs
// referencing them. Selection is sorted by outpoint string for
// determinism within one node, an implementation-defined but stable
// tie-break.
func (e *Engine) FindInputs(sender string, amount float64) (float64, []Input) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.findInputsLocked(sender, amount)
}

func (e *Engine) findInputsLocked(sender string, amount float64) (float64, []Input) {
	type candidate struct {
		op  OutPoint
		out Output
	}
	var candidates []candidate
	for op, out := range e.utxo.Scan() {
		if out.Address == sender {
			candidates = append(candidates, candidate{op, out})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].op.String() < candidates[j].op.String()
	})

	var total float64
	var inputs []Input
	for _, c := range candidates {
		if total >= amount {
			break
		}
		total += c.out.Amount
		inputs = append(inputs, Input{PrevTxID: c.op.TxID, Vout: c.op.Vout})
	}
	return total, inputs
}

// CumulativeDifficulty returns sum(2^block.difficulty) over the whole
// chain, the scalar used for fork choice. big.Int is used because
// difficulty is attacker/miner controlled and 2^difficulty can exceed
// 64 bits for even modest difficulty values.
func (e *Engine) CumulativeDifficulty() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cumulativeDifficultyLocked()
}

func (e *Engine) cumulativeDifficultyLocked() *big.Int {
	total := new(big.Int)
	pow := new(big.Int)
	for _, b := range e.chain {
		pow.Lsh(big.NewInt(1), uint(b.Difficulty))
		total.Add(total, pow)
	}
	return total
}

// DynamicDifficulty implements the retarget formula of spec.md §4.1:
// once the chain is longer than RetargetWindow, it measures the real
// time elapsed over the last RetargetWindow blocks and scales the tip's
// difficulty to target RetargetTargetSeconds for that span. Below the
// threshold it returns the engine's configured base difficulty.
func (e *Engine) DynamicDifficulty() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dynamicDifficultyLocked()
}

func (e *Engine) dynamicDifficultyLocked() int {
	if len(e.chain) <= RetargetWindow {
		return e.baseDifficulty
	}
	tip := e.chain[len(e.chain)-1]
	past := e.chain[len(e.chain)-1-RetargetWindow]
	actual := tip.Timestamp - past.Timestamp
	if actual == 0 {
		actual = 1
	}
	newDifficulty := tip.Difficulty * RetargetTargetSeconds / int(actual)
	if newDifficulty < 1 {
		newDifficulty = 1
	}
	return newDifficulty
}

// ComposeCandidate builds an unsolved block ready for proof-of-work: a
// coinbase transaction paying minerAddress first, then the full
// mempool, at the next height with the current dynamic difficulty.
// Callers (MineOne, mining.Miner) run ProveWork on the result.
func (e *Engine) ComposeCandidate(minerAddress string) *Block {
	e.mu.RLock()
	tip := e.tipLocked()
	difficulty := e.dynamicDifficultyLocked()
	txs := make([]Transaction, 0, len(e.mempool)+1)
	txs = append(txs, Transaction{
		Inputs:  nil,
		Outputs: []Output{{Address: minerAddress, Amount: CoinbaseReward}},
	})
	for _, tx := range e.mempool {
		txs = append(txs, tx)
	}
	e.mu.RUnlock()

	var index uint64
	var prevHash string
	if tip == nil {
		prevHash = "0"
	} else {
		index = tip.Index + 1
		prevHash = tip.Hash()
	}

	b := &Block{
		Index:        index,
		PreviousHash: prevHash,
		Transactions: txs,
		Timestamp:    e.now().Unix(),
		Nonce:        0,
		Difficulty:   difficulty,
	}
	b.MerkleRoot = MerkleRoot(b.Transactions)
	return b
}

// MineOne composes a candidate for minerAddress, runs proof-of-work to
// completion (no preemption), and appends it on success. It is the
// synchronous convenience form of mining described in spec.md §4.1; the
// continuous, preemptible worker loop lives in package mining.
func (e *Engine) MineOne(minerAddress string) (uint64, bool) {
	candidate := e.ComposeCandidate(minerAddress)
	ProveWork(candidate, func() bool { return false })
	if !e.ReceiveBlock(candidate) {
		return 0, false
	}
	return candidate.Index, true
}

// ProveWork runs the proof-of-work loop for b: increment nonce,
// recompute the block hash, and compare against b's difficulty target,
// checking preempt between every attempt. It returns true if a
// satisfying nonce was found, false if preempt returned true first.
// Polling granularity is one hash attempt, per spec.md §5.
func ProveWork(b *Block, preempt func() bool) bool {
	for {
		if preempt() {
			return false
		}
		if MeetsDifficulty(b.Hash(), b.Difficulty) {
			return true
		}
		b.Nonce++
	}
}
