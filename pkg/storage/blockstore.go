package storage

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

// Block summarizes one produced block.
type Block struct {
	Height     uint64        `json:"height"`
	Hash       common.Hash   `json:"hash"`
	ParentHash common.Hash   `json:"parentHash"`
	Time       time.Time     `json:"time"`
	TxHashes   []common.Hash `json:"txs"`
	Deferred   int           `json:"deferred"`
}

// BlockStore persists blocks and receipts produced by the node.
type BlockStore interface {
	SaveBlock(b Block) error
	GetBlock(height uint64) (Block, bool, error)
	LatestBlock() (Block, bool, error)
	SaveReceipt(r *chain.Receipt) error
	GetReceipt(h common.Hash) (*chain.Receipt, bool, error)
}

type InMemoryBlockStore struct {
	mu       sync.Mutex
	blocks   map[uint64]Block
	receipts map[common.Hash]*chain.Receipt
	latest   *uint64
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks:   make(map[uint64]Block),
		receipts: make(map[common.Hash]*chain.Receipt),
	}
}

func (s *InMemoryBlockStore) SaveBlock(b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	h := b.Height
	s.latest = &h
	return nil
}

func (s *InMemoryBlockStore) GetBlock(height uint64) (Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[height]
	return b, ok, nil
}

func (s *InMemoryBlockStore) LatestBlock() (Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Block{}, false, nil
	}
	return s.blocks[*s.latest], true, nil
}

func (s *InMemoryBlockStore) SaveReceipt(r *chain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.TxHash] = r
	return nil
}

func (s *InMemoryBlockStore) GetReceipt(h common.Hash) (*chain.Receipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[h]
	return r, ok, nil
}

var _ BlockStore = (*InMemoryBlockStore)(nil)
