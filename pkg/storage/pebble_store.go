package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

// PebbleStore keeps chain state, blocks and receipts in one Pebble database.
// Chain state uses the key schema of package chain; blocks and receipts live
// under their own prefixes.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: b:<8-byte-height>, bl:latest, r:<32-byte-tx-hash>
func kBlock(height uint64) []byte { return append([]byte("b:"), heightKey(height)...) }
func kLatest() []byte             { return []byte("bl") }
func kReceipt(h common.Hash) []byte {
	return append([]byte("r:"), h.Bytes()...)
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Get implements chain.KVStore.
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	return s.get(key)
}

// Write implements chain.KVStore as one synced batch.
func (s *PebbleStore) Write(entries map[string][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for k, v := range entries {
		var err error
		if v == nil {
			err = batch.Delete([]byte(k), nil)
		} else {
			err = batch.Set([]byte(k), v, nil)
		}
		if err != nil {
			return fmt.Errorf("batch %x: %w", k, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

// Iterate implements chain.KVStore.
func (s *PebbleStore) Iterate(lower, upper []byte, fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return iter.Error()
}

func (s *PebbleStore) SaveBlock(b Block) error {
	val, err := encodeGob(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(kBlock(b.Height), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kLatest(), heightKey(b.Height), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetBlock(height uint64) (Block, bool, error) {
	val, err := s.get(kBlock(height))
	if err != nil || val == nil {
		return Block{}, false, err
	}
	var out Block
	if err := decodeGob(val, &out); err != nil {
		return Block{}, false, fmt.Errorf("decode block %d: %w", height, err)
	}
	return out, true, nil
}

func (s *PebbleStore) LatestBlock() (Block, bool, error) {
	val, err := s.get(kLatest())
	if err != nil || val == nil {
		return Block{}, false, err
	}
	return s.GetBlock(decodeHeight(val))
}

func (s *PebbleStore) SaveReceipt(r *chain.Receipt) error {
	val, err := encodeGob(newReceiptRecord(r))
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	return s.db.Set(kReceipt(r.TxHash), val, pebble.NoSync)
}

func (s *PebbleStore) GetReceipt(h common.Hash) (*chain.Receipt, bool, error) {
	val, err := s.get(kReceipt(h))
	if err != nil || val == nil {
		return nil, false, err
	}
	var rec receiptRecord
	if err := decodeGob(val, &rec); err != nil {
		return nil, false, fmt.Errorf("decode receipt %s: %w", h.Hex(), err)
	}
	return rec.receipt(), true, nil
}

var (
	_ chain.KVStore = (*PebbleStore)(nil)
	_ BlockStore    = (*PebbleStore)(nil)
)
