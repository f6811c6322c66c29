// Package mempool queues verified signed calls until the next block.
package mempool

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/tx"
)

var ErrDuplicate = errors.New("transaction already pending")

type entry struct {
	call *tx.SignedCall
	hash common.Hash
	size int64
}

// Mempool is a FIFO of signed calls in admission order. Calls are applied in
// the order they are selected, so two signers racing for the same proposal
// are resolved by whichever was admitted first.
type Mempool struct {
	mu      sync.Mutex
	queue   []entry
	pending map[common.Hash]struct{}
}

func NewMempool() *Mempool {
	return &Mempool{pending: make(map[common.Hash]struct{})}
}

// Push enqueues c, rejecting a call whose hash is already queued.
func (m *Mempool) Push(c *tx.SignedCall) (common.Hash, error) {
	raw, err := c.Serialize()
	if err != nil {
		return common.Hash{}, err
	}
	h := c.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[h]; ok {
		return h, ErrDuplicate
	}
	m.pending[h] = struct{}{}
	m.queue = append(m.queue, entry{call: c, hash: h, size: int64(len(raw))})
	return h, nil
}

// Select removes and returns calls from the head of the queue until the next
// one would exceed maxBytes of encoded size. maxBytes <= 0 selects all.
func (m *Mempool) Select(maxBytes int64) []*tx.SignedCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		out  []*tx.SignedCall
		used int64
	)
	for len(m.queue) > 0 {
		e := m.queue[0]
		if maxBytes > 0 && used+e.size > maxBytes && len(out) > 0 {
			break
		}
		out = append(out, e.call)
		used += e.size
		delete(m.pending, e.hash)
		m.queue = m.queue[1:]
	}
	return out
}

// Len returns the number of queued calls.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
