// Package counter provides two versions of a small proxied-storage contract
// that share one storage layout, used to exercise delegated execution and
// storage continuity across upgrades.
package counter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/slots"
)

const (
	NameV1 = "StorageV1"
	NameV2 = "StorageV2"
)

// Storage layout, identical in both versions.
var (
	slotCreator     = slots.Index(0)
	slotValue       = slots.Index(1)
	slotInitialized = slots.Index(2)
)

const v1Methods = `
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"creator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"value","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[],"outputs":[]}`

var (
	ABIV1 = chain.MustParseABI(`[` + v1Methods + `]`)
	ABIV2 = chain.MustParseABI(`[` + v1Methods + `,
	{"type":"function","name":"decrement","stateMutability":"nonpayable","inputs":[],"outputs":[]}]`)
)

type storage struct {
	abi        *abi.ABI
	decrements bool
}

// V1 returns the first version: initialize, creator, value, increment.
func V1() chain.Code { return &storage{abi: &ABIV1} }

// V2 returns V1 plus decrement.
func V2() chain.Code { return &storage{abi: &ABIV2, decrements: true} }

func (s *storage) Construct(*chain.Env, []byte) error { return nil }

func (s *storage) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, _, err := chain.DecodeCall(s.abi, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "initialize":
		if slots.ToBool(env.SLoad(slotInitialized)) {
			return nil, fmt.Errorf("%w: already initialized", chain.ErrStateConflict)
		}
		env.SStore(slotCreator, slots.AddressKey(env.Caller()))
		env.SStore(slotInitialized, slots.FromBool(true))
		return nil, nil
	case "creator":
		return method.Outputs.Pack(slots.ToAddress(env.SLoad(slotCreator)))
	case "value":
		return method.Outputs.Pack(env.SLoadBig(slotValue))
	case "increment":
		v := env.SLoadBig(slotValue)
		env.SStoreBig(slotValue, v.Add(v, big.NewInt(1)))
		return nil, nil
	case "decrement":
		v := env.SLoadBig(slotValue)
		if v.Sign() == 0 {
			return nil, fmt.Errorf("%w: value underflow", chain.ErrStateConflict)
		}
		env.SStoreBig(slotValue, v.Sub(v, big.NewInt(1)))
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", chain.ErrUnknownSelector, method.Name)
}

// Register binds both versions on l under NameV1 and NameV2.
func Register(l *chain.Ledger) {
	l.Register(NameV1, V1())
	l.Register(NameV2, V2())
}

// Creator reads creator() through v, typically at a proxy address.
func Creator(v chain.Viewer, at common.Address) (common.Address, error) {
	out, err := view(v, at, "creator")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Value reads value() through v.
func Value(v chain.Viewer, at common.Address) (*big.Int, error) {
	out, err := view(v, at, "value")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func view(v chain.Viewer, at common.Address, method string) ([]interface{}, error) {
	input, err := ABIV1.Pack(method)
	if err != nil {
		return nil, err
	}
	ret, err := v.View(common.Address{}, at, input)
	if err != nil {
		return nil, err
	}
	return ABIV1.Unpack(method, ret)
}

// Pack encodes a call to one of the counter methods.
func Pack(method string) []byte {
	input, err := ABIV2.Pack(method)
	if err != nil {
		panic(err)
	}
	return input
}
