package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const maxCallDepth = 64

// Code is the behavior bound to an address. Implementations keep no state
// of their own: everything persistent goes through the Env.
type Code interface {
	// Construct runs once when the code is deployed at env.Self().
	Construct(env *Env, args []byte) error
	// Call handles a message sent to env.Self().
	Call(env *Env, input []byte) ([]byte, error)
}

// Env is the execution frame handed to Code. Self is the account whose
// storage is addressed, CodeAddress is the account the running code was
// resolved from; they differ only under DelegateCall.
type Env struct {
	ledger *Ledger
	state  *StateDB
	height uint64
	self   common.Address
	code   common.Address
	caller common.Address
	origin common.Address
	depth  int
}

func (e *Env) Self() common.Address        { return e.self }
func (e *Env) CodeAddress() common.Address { return e.code }
func (e *Env) Caller() common.Address      { return e.caller }
func (e *Env) Origin() common.Address      { return e.origin }
func (e *Env) BlockNumber() uint64         { return e.height }

func (e *Env) SLoad(slot common.Hash) common.Hash {
	return e.state.GetState(ArenaContract, e.self, slot)
}

func (e *Env) SStore(slot, val common.Hash) {
	e.state.SetState(ArenaContract, e.self, slot, val)
}

// ReservedLoad reads the arena that contract code reached through
// SLoad/SStore can never address.
func (e *Env) ReservedLoad(slot common.Hash) common.Hash {
	return e.state.GetState(ArenaReserved, e.self, slot)
}

func (e *Env) ReservedStore(slot, val common.Hash) {
	e.state.SetState(ArenaReserved, e.self, slot, val)
}

// SLoadBig and SStoreBig treat a slot as a uint256.
func (e *Env) SLoadBig(slot common.Hash) *big.Int {
	return e.SLoad(slot).Big()
}

func (e *Env) SStoreBig(slot common.Hash, v *big.Int) {
	e.SStore(slot, common.BigToHash(v))
}

func (e *Env) Emit(topics []common.Hash, data []byte) {
	e.state.addLog(&types.Log{
		Address:     e.self,
		Topics:      topics,
		Data:        data,
		BlockNumber: e.height,
	})
}

// HasCode reports whether addr resolves to deployed code or a precompile.
func (e *Env) HasCode(addr common.Address) bool {
	if _, ok := e.ledger.precompiles[addr]; ok {
		return true
	}
	return e.state.CodeName(addr) != ""
}

// Call runs the code at to in its own context with this account as caller.
func (e *Env) Call(to common.Address, input []byte) ([]byte, error) {
	child := &Env{
		ledger: e.ledger,
		state:  e.state,
		height: e.height,
		self:   to,
		code:   to,
		caller: e.self,
		origin: e.origin,
		depth:  e.depth + 1,
	}
	return child.invoke(input)
}

// DelegateCall runs the code at codeAddr against this account's storage,
// keeping the current caller.
func (e *Env) DelegateCall(codeAddr common.Address, input []byte) ([]byte, error) {
	child := &Env{
		ledger: e.ledger,
		state:  e.state,
		height: e.height,
		self:   e.self,
		code:   codeAddr,
		caller: e.caller,
		origin: e.origin,
		depth:  e.depth + 1,
	}
	return child.invoke(input)
}

// invoke resolves the code for this frame and runs it. A failing frame
// leaves no writes or logs behind.
func (e *Env) invoke(input []byte) (ret []byte, err error) {
	if e.depth > maxCallDepth {
		return nil, ErrCallDepth
	}
	code, err := e.ledger.resolve(e.state, e.code)
	if err != nil {
		return nil, err
	}
	snap := e.state.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("code at %s panicked: %v", e.code.Hex(), r)
		}
		if err != nil {
			e.state.RevertToSnapshot(snap)
			ret = nil
		}
	}()
	return code.Call(e, input)
}

func (e *Env) construct(code Code, args []byte) (err error) {
	snap := e.state.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor at %s panicked: %v", e.self.Hex(), r)
		}
		if err != nil {
			e.state.RevertToSnapshot(snap)
		}
	}()
	return code.Construct(e, args)
}
