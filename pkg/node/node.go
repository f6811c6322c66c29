// Package node runs the single-sequencer block loop: it admits signed calls
// into the mempool, advances the ledger one block per tick and records the
// resulting blocks and receipts.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/crypto"
	"github.com/uhyunpark/proxygov/pkg/mempool"
	"github.com/uhyunpark/proxygov/pkg/storage"
	"github.com/uhyunpark/proxygov/pkg/tx"
	"github.com/uhyunpark/proxygov/pkg/util"
)

const defaultReceiptCacheSize = 4096

// ErrStoreBehind reports a block whose ledger effects committed but whose
// block or receipts were not stored. The node cannot continue after it.
var ErrStoreBehind = errors.New("ledger ahead of block store")

type Options struct {
	Ledger  *chain.Ledger
	Store   storage.BlockStore
	WAL     storage.WAL
	Clock   util.Clock
	Metrics *Metrics
	Logger  *zap.SugaredLogger
	Domain  crypto.EIP712Domain

	BlockTime        time.Duration
	MempoolMaxBytes  int64
	ReceiptCacheSize int
	VerboseLogging   bool
}

type Node struct {
	Ledger  *chain.Ledger
	Mempool *mempool.Mempool
	Store   storage.BlockStore
	WAL     storage.WAL
	Clock   util.Clock
	Metrics *Metrics
	Logger  *zap.SugaredLogger

	BlockTime       time.Duration
	MempoolMaxBytes int64
	VerboseLogging  bool // if false, empty blocks are logged at debug

	// OnBlockCommit is called after a block and its receipts are stored.
	OnBlockCommit func(b storage.Block, receipts []*chain.Receipt)

	verifier *tx.Verifier
	receipts *lru.Cache[common.Hash, *chain.Receipt]
	mu       sync.Mutex
}

func New(opts Options) (*Node, error) {
	if opts.Ledger == nil {
		return nil, errors.New("node: ledger is required")
	}
	if opts.Store == nil {
		opts.Store = storage.NewInMemoryBlockStore()
	}
	if opts.WAL == nil {
		opts.WAL = storage.NewNopWAL()
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		opts.Metrics = m
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = time.Second
	}
	if opts.ReceiptCacheSize <= 0 {
		opts.ReceiptCacheSize = defaultReceiptCacheSize
	}
	cache, err := lru.New[common.Hash, *chain.Receipt](opts.ReceiptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("receipt cache: %w", err)
	}
	return &Node{
		Ledger:          opts.Ledger,
		Mempool:         mempool.NewMempool(),
		Store:           opts.Store,
		WAL:             opts.WAL,
		Clock:           opts.Clock,
		Metrics:         opts.Metrics,
		Logger:          opts.Logger,
		BlockTime:       opts.BlockTime,
		MempoolMaxBytes: opts.MempoolMaxBytes,
		VerboseLogging:  opts.VerboseLogging,
		verifier:        tx.NewVerifier(opts.Domain),
		receipts:        cache,
	}, nil
}

// Submit verifies c and queues it for the next block.
func (n *Node) Submit(c *tx.SignedCall) (common.Hash, error) {
	if err := n.verifier.Verify(c); err != nil {
		n.Metrics.rejectedSubmit.Inc()
		return common.Hash{}, err
	}
	h, err := n.Mempool.Push(c)
	if err != nil {
		n.Metrics.rejectedSubmit.Inc()
		return h, err
	}
	n.Logger.Debugw("tx_submitted", "hash", h.Hex(), "from", c.From.Hex(), "to", c.To.Hex(), "nonce", c.Nonce)
	return h, nil
}

// Receipt looks up the receipt of a transaction or deferred task.
func (n *Node) Receipt(h common.Hash) (*chain.Receipt, bool, error) {
	if r, ok := n.receipts.Get(h); ok {
		return r, true, nil
	}
	return n.Store.GetReceipt(h)
}

// Run produces one block every BlockTime until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.Logger.Infow("node_started", "height", n.Ledger.Height(), "block_time_ms", n.BlockTime.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.Clock.After(n.BlockTime):
		}
		if _, _, err := n.ProduceBlock(); err != nil {
			return fmt.Errorf("produce block: %w", err)
		}
	}
}

// ProduceBlock advances the ledger by one block: scheduled calls that came
// due run first, then mempool transactions in admission order. A
// transaction whose nonce does not match the sender's is dropped with a
// failed receipt. The returned error is reserved for storage failures and
// is fatal: once the ledger has advanced, a failure wraps ErrStoreBehind
// and Run stops.
func (n *Node) ProduceBlock() (storage.Block, []*chain.Receipt, error) {
	b, receipts, err := n.produce()
	if err != nil {
		n.Logger.Errorw("block_failed", "error", err)
		return b, receipts, err
	}
	if n.OnBlockCommit != nil {
		n.OnBlockCommit(b, receipts)
	}
	return b, receipts, nil
}

func (n *Node) produce() (_ storage.Block, _ []*chain.Receipt, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var parent common.Hash
	latest, ok, err := n.Store.LatestBlock()
	if err != nil {
		return storage.Block{}, nil, fmt.Errorf("latest block: %w", err)
	}
	if ok {
		parent = latest.Hash
	}

	deferred, err := n.Ledger.AdvanceBlock()
	if err != nil {
		return storage.Block{}, nil, err
	}
	height := n.Ledger.Height()
	defer func() {
		if err != nil {
			n.Logger.Errorw("ledger_ahead_of_store", "ledger_height", height, "store_height", latest.Height, "error", err)
			err = fmt.Errorf("%w at height %d: %w", ErrStoreBehind, height, err)
		}
	}()
	receipts := make([]*chain.Receipt, 0, len(deferred))
	for _, r := range deferred {
		r.TxHash = r.Task
		n.Metrics.observeDeferred(r.Succeeded())
		receipts = append(receipts, r)
	}

	calls := n.Mempool.Select(n.MempoolMaxBytes)
	txHashes := make([]common.Hash, 0, len(calls))
	for _, c := range calls {
		r, err := n.apply(c, height)
		if err != nil {
			return storage.Block{}, nil, err
		}
		txHashes = append(txHashes, r.TxHash)
		n.Metrics.observeTx(r.Succeeded())
		receipts = append(receipts, r)
	}

	b := storage.Block{
		Height:     height,
		ParentHash: parent,
		Time:       n.Clock.Now().UTC(),
		TxHashes:   txHashes,
		Deferred:   len(deferred),
	}
	b.Hash = blockHash(b)

	for i, r := range receipts {
		for _, lg := range r.Logs {
			lg.TxHash = r.TxHash
			lg.TxIndex = uint(i)
			lg.BlockNumber = height
			lg.BlockHash = b.Hash
		}
		if err := n.Store.SaveReceipt(r); err != nil {
			return storage.Block{}, nil, fmt.Errorf("save receipt %s: %w", r.TxHash.Hex(), err)
		}
		n.receipts.Add(r.TxHash, r)
	}
	if err := n.Store.SaveBlock(b); err != nil {
		return storage.Block{}, nil, fmt.Errorf("save block %d: %w", height, err)
	}
	n.WAL.Append(fmt.Sprintf("block height=%d hash=%s txs=%d deferred=%d", height, b.Hash.Hex(), len(txHashes), len(deferred)))

	pending, err := n.Ledger.PendingCalls()
	if err != nil {
		return storage.Block{}, nil, err
	}
	n.Metrics.observeBlock(height, n.Mempool.Len(), len(pending))

	if len(receipts) > 0 || n.VerboseLogging {
		n.Logger.Infow("block_produced", "height", height, "hash", b.Hash.Hex(), "txs", len(txHashes), "deferred", len(deferred), "scheduled_pending", len(pending))
	} else {
		n.Logger.Debugw("block_produced", "height", height, "hash", b.Hash.Hex())
	}
	return b, receipts, nil
}

func (n *Node) apply(c *tx.SignedCall, height uint64) (*chain.Receipt, error) {
	nonce := c.Nonce
	r, err := n.Ledger.ApplyMessage(chain.Message{From: c.From, To: c.To, Input: c.Data, Nonce: &nonce})
	switch {
	case r != nil:
	case errors.Is(err, chain.ErrBadNonce):
		n.Logger.Warnw("tx_dropped", "hash", c.Hash().Hex(), "from", c.From.Hex(), "error", err)
		r = chain.NewFailedReceipt(c.From, c.To, height, err)
	default:
		return nil, err
	}
	r.TxHash = c.Hash()
	if !r.Succeeded() {
		n.Logger.Infow("tx_failed", "hash", r.TxHash.Hex(), "from", c.From.Hex(), "to", c.To.Hex(), "error", r.Error)
	}
	return r, nil
}

func blockHash(b storage.Block) common.Hash {
	enc, _ := rlp.EncodeToBytes([]interface{}{b.Height, b.ParentHash, uint64(b.Time.UnixNano()), b.TxHashes, uint64(b.Deferred)})
	return ethcrypto.Keccak256Hash(enc)
}
