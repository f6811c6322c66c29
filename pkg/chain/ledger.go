package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Message is a top-level call submitted to the ledger.
type Message struct {
	From  common.Address
	To    common.Address
	Input []byte
	// Nonce, when set, must equal the sender's current nonce.
	Nonce *uint64
}

// Viewer runs read-only calls against committed state.
type Viewer interface {
	View(from, to common.Address, input []byte) ([]byte, error)
}

// Ledger is a single-writer account ledger: it deploys code, applies calls
// atomically and runs scheduled calls as blocks advance.
type Ledger struct {
	mu          sync.Mutex
	kv          KVStore
	codes       map[string]Code
	precompiles map[common.Address]Code
	logger      *zap.SugaredLogger
}

func NewLedger(kv KVStore, logger *zap.SugaredLogger) *Ledger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ledger{
		kv:    kv,
		codes: make(map[string]Code),
		precompiles: map[common.Address]Code{
			SchedulerAddress: schedulerPrecompile{},
		},
		logger: logger,
	}
}

// Register makes code deployable under name. Registering the same name
// twice replaces the previous code for future resolutions.
func (l *Ledger) Register(name string, code Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes[name] = code
}

func (l *Ledger) resolve(st *StateDB, addr common.Address) (Code, error) {
	if pc, ok := l.precompiles[addr]; ok {
		return pc, nil
	}
	name := st.CodeName(addr)
	if name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, addr.Hex())
	}
	code, ok := l.codes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q at %s", ErrUnknownCode, name, addr.Hex())
	}
	return code, nil
}

func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewStateDB(l.kv).Height()
}

func (l *Ledger) Nonce(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewStateDB(l.kv).Nonce(addr)
}

// CodeName returns the registered name of the code deployed at addr.
func (l *Ledger) CodeName(addr common.Address) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewStateDB(l.kv).CodeName(addr)
}

// StorageAt reads a committed storage word.
func (l *Ledger) StorageAt(arena Arena, addr common.Address, slot common.Hash) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewStateDB(l.kv).GetState(arena, addr, slot)
}

func (l *Ledger) newEnv(st *StateDB, height uint64, self, caller common.Address) *Env {
	return &Env{
		ledger: l,
		state:  st,
		height: height,
		self:   self,
		code:   self,
		caller: caller,
		origin: caller,
	}
}

// Deploy creates an account at the address derived from the deployer and
// its nonce, binds the named code to it and runs its constructor.
func (l *Ledger) Deploy(from common.Address, name string, args []byte) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := NewStateDB(l.kv)
	height := st.Height()
	nonce := st.Nonce(from)
	addr := crypto.CreateAddress(from, nonce)
	st.SetNonce(from, nonce+1)

	snap := st.Snapshot()
	err := l.deploy(st, height, from, addr, name, args)
	if err != nil {
		st.RevertToSnapshot(snap)
	}
	if cerr := st.Commit(); cerr != nil {
		return nil, cerr
	}

	r := newReceipt(from, common.Address{}, height, nil, st.Logs(), err)
	if err == nil {
		r.ContractAddress = addr
		l.logger.Debugw("contract_deployed", "address", addr.Hex(), "code", name, "deployer", from.Hex())
	}
	return r, err
}

func (l *Ledger) deploy(st *StateDB, height uint64, from, addr common.Address, name string, args []byte) error {
	code, ok := l.codes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCode, name)
	}
	if _, ok := l.precompiles[addr]; ok || st.CodeName(addr) != "" {
		return fmt.Errorf("%w: %s", ErrContractExists, addr.Hex())
	}
	st.SetCodeName(addr, name)
	return l.newEnv(st, height, addr, from).construct(code, args)
}

// Apply executes a call with no nonce check.
func (l *Ledger) Apply(from, to common.Address, input []byte) (*Receipt, error) {
	return l.ApplyMessage(Message{From: from, To: to, Input: input})
}

// ApplyMessage executes msg atomically. A failed call leaves no state
// behind except the sender's nonce increment. The returned error equals
// the receipt's Err unless the backing store failed.
func (l *Ledger) ApplyMessage(msg Message) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := NewStateDB(l.kv)
	height := st.Height()
	nonce := st.Nonce(msg.From)
	if msg.Nonce != nil && *msg.Nonce != nonce {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrBadNonce, *msg.Nonce, nonce)
	}
	st.SetNonce(msg.From, nonce+1)

	snap := st.Snapshot()
	ret, err := l.newEnv(st, height, msg.To, msg.From).invoke(msg.Input)
	if err != nil {
		st.RevertToSnapshot(snap)
	}
	if cerr := st.Commit(); cerr != nil {
		return nil, cerr
	}
	return newReceipt(msg.From, msg.To, height, ret, st.Logs(), err), err
}

// View executes a call against committed state and discards every write.
func (l *Ledger) View(from, to common.Address, input []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := NewStateDB(l.kv)
	return l.newEnv(st, st.Height(), to, from).invoke(input)
}

// PendingCalls lists every scheduled call that has not run yet.
func (l *Ledger) PendingCalls() ([]ScheduledCall, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return pendingCalls(l.kv)
}

// AdvanceBlock moves to the next height and runs every scheduled call that
// has become due, in (due, registration) order. A failing deferred call is
// reported on its receipt and does not stop the others. The returned error
// is reserved for backing store failures.
func (l *Ledger) AdvanceBlock() ([]*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	height := NewStateDB(l.kv).Height() + 1
	if err := l.kv.Write(map[string][]byte{string(keyHeight): encodeUint64(height)}); err != nil {
		return nil, fmt.Errorf("advance height: %w", err)
	}

	due, err := dueCalls(l.kv, height)
	if err != nil {
		return nil, err
	}
	receipts := make([]*Receipt, 0, len(due))
	for _, sc := range due {
		r, err := l.runScheduled(height, sc)
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

// AdvanceBlocks advances n blocks and returns the deferred receipts of all
// of them.
func (l *Ledger) AdvanceBlocks(n uint64) ([]*Receipt, error) {
	var all []*Receipt
	for i := uint64(0); i < n; i++ {
		rs, err := l.AdvanceBlock()
		all = append(all, rs...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func (l *Ledger) runScheduled(height uint64, sc ScheduledCall) (*Receipt, error) {
	st := NewStateDB(l.kv)
	st.del(scheduleKey(sc.Due, sc.Seq))

	snap := st.Snapshot()
	ret, err := l.newEnv(st, height, sc.To, sc.From).invoke(sc.Input)
	if err != nil {
		st.RevertToSnapshot(snap)
		err = fmt.Errorf("%w: task %s: %w", ErrDeferredExecution, sc.Task.Hex(), err)
		l.logger.Warnw("deferred_call_failed", "task", sc.Task.Hex(), "target", sc.To.Hex(), "height", height, "error", err)
	} else {
		l.logger.Infow("deferred_call_executed", "task", sc.Task.Hex(), "target", sc.To.Hex(), "height", height)
	}
	if cerr := st.Commit(); cerr != nil {
		return nil, cerr
	}

	r := newReceipt(sc.From, sc.To, height, ret, st.Logs(), err)
	r.Deferred = true
	r.Task = sc.Task
	return r, nil
}

// IsRejection reports whether err is a contract-level rejection rather than
// a host or storage failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrStateConflict)
}
