// Package schedule adapts contract code to a deferred-call facility.
package schedule

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

// Scheduler registers payload to be called on target once the block height
// has advanced by delayBlocks. It returns immediately; the call itself runs
// later as an independent transaction whose caller is env.Self().
type Scheduler interface {
	ScheduleCall(env *chain.Env, target common.Address, payload []byte, delayBlocks uint64) (common.Hash, error)
}

// Precompile schedules through the host scheduler at chain.SchedulerAddress.
type Precompile struct{}

func (Precompile) ScheduleCall(env *chain.Env, target common.Address, payload []byte, delayBlocks uint64) (common.Hash, error) {
	input, err := chain.SchedulerABI.Pack("scheduleCall", target, new(big.Int).SetUint64(delayBlocks), payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack scheduleCall: %w", err)
	}
	ret, err := env.Call(chain.SchedulerAddress, input)
	if err != nil {
		return common.Hash{}, err
	}
	out, err := chain.SchedulerABI.Unpack("scheduleCall", ret)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unpack scheduleCall: %w", err)
	}
	return common.Hash(out[0].([32]byte)), nil
}

// Call is a deferred call captured by a Recorder.
type Call struct {
	Task    common.Hash
	From    common.Address
	Target  common.Address
	Payload []byte
	Due     uint64
}

// Recorder is a Scheduler test double that holds pending calls keyed by the
// block height they become due at. Recorded calls are not rolled back if the
// registering frame later fails.
type Recorder struct {
	mu      sync.Mutex
	seq     uint64
	pending map[uint64][]Call
}

func NewRecorder() *Recorder {
	return &Recorder{pending: make(map[uint64][]Call)}
}

func (r *Recorder) ScheduleCall(env *chain.Env, target common.Address, payload []byte, delayBlocks uint64) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := crypto.Keccak256Hash(env.Self().Bytes(), new(big.Int).SetUint64(r.seq).Bytes())
	r.seq++
	due := env.BlockNumber() + delayBlocks
	r.pending[due] = append(r.pending[due], Call{
		Task:    task,
		From:    env.Self(),
		Target:  target,
		Payload: append([]byte(nil), payload...),
		Due:     due,
	})
	return task, nil
}

// Pending returns every recorded call, ordered by due height.
func (r *Recorder) Pending() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	heights := make([]uint64, 0, len(r.pending))
	for h := range r.pending {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	var out []Call
	for _, h := range heights {
		out = append(out, r.pending[h]...)
	}
	return out
}

// Due removes and returns the calls due at or below height.
func (r *Recorder) Due(height uint64) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var heights []uint64
	for h := range r.pending {
		if h <= height {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	var out []Call
	for _, h := range heights {
		out = append(out, r.pending[h]...)
		delete(r.pending, h)
	}
	return out
}

// Replay applies the calls due at the ledger's current height, returning
// their receipts. Call failures are reported on the receipts. A backing
// store error stops the replay and keeps the unapplied calls pending.
func (r *Recorder) Replay(l *chain.Ledger) ([]*chain.Receipt, error) {
	var receipts []*chain.Receipt
	due := r.Due(l.Height())
	for i, c := range due {
		rcpt, err := l.Apply(c.From, c.Target, c.Payload)
		if rcpt == nil {
			r.restore(due[i:])
			return receipts, fmt.Errorf("replay task %s: %w", c.Task.Hex(), err)
		}
		rcpt.Deferred = true
		rcpt.Task = c.Task
		receipts = append(receipts, rcpt)
	}
	return receipts, nil
}

func (r *Recorder) restore(calls []Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range calls {
		r.pending[c.Due] = append(r.pending[c.Due], c)
	}
}

var (
	_ Scheduler = Precompile{}
	_ Scheduler = (*Recorder)(nil)
)
