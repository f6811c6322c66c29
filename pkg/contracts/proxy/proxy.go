// Package proxy implements a delegating proxy whose admin and implementation
// live in reserved storage that delegated code cannot address.
package proxy

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/slots"
)

const Name = "UpgradeabilityProxy"

const abiJSON = `[
	{"type":"constructor","stateMutability":"nonpayable",
	 "inputs":[{"name":"initialImplementation","type":"address"},{"name":"initSelector","type":"bytes32"}]},
	{"type":"function","name":"changeAdmin","stateMutability":"nonpayable","inputs":[{"name":"newAdmin","type":"address"}],"outputs":[]},
	{"type":"function","name":"upgradeTo","stateMutability":"nonpayable","inputs":[{"name":"newImplementation","type":"address"}],"outputs":[]},
	{"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"implementation","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"AdminChanged","anonymous":false,
	 "inputs":[{"name":"previousAdmin","type":"address","indexed":false},{"name":"newAdmin","type":"address","indexed":false}]},
	{"type":"event","name":"Upgraded","anonymous":false,
	 "inputs":[{"name":"implementation","type":"address","indexed":true}]}
]`

var ABI = chain.MustParseABI(abiJSON)

// InitializeSelector is keccak256("initialize()"). Its first four bytes are
// the selector of the one-time setup call run at construction.
var InitializeSelector = crypto.Keccak256Hash([]byte("initialize()"))

// Proxy is the proxy contract code. It keeps no Go-side state.
type Proxy struct{}

// New returns the proxy code for registration with a ledger.
func New() chain.Code { return Proxy{} }

// Construct makes the deployer admin, records the initial implementation
// and, for a non-zero initSelector, delegates one call to it.
func (Proxy) Construct(env *chain.Env, args []byte) error {
	vals, err := ABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return fmt.Errorf("%w: constructor: %v", chain.ErrInvalidArgument, err)
	}
	impl := vals[0].(common.Address)
	sel := vals[1].([32]byte)

	if impl == (common.Address{}) {
		return fmt.Errorf("%w: zero implementation", chain.ErrInvalidArgument)
	}
	if err := setAdmin(env, env.Caller()); err != nil {
		return err
	}
	if err := setImplementation(env, impl); err != nil {
		return err
	}
	if sel == ([32]byte{}) {
		return nil
	}
	if _, err := env.DelegateCall(impl, sel[:4]); err != nil {
		return fmt.Errorf("initialize implementation: %w", err)
	}
	return nil
}

// Call answers the proxy's own selectors and forwards everything else to
// the current implementation with this account as storage context.
func (Proxy) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) >= 4 {
		if method, err := ABI.MethodById(input[:4]); err == nil {
			return handle(env, method.Name, input)
		}
	}
	return env.DelegateCall(implementation(env), input)
}

func handle(env *chain.Env, name string, input []byte) ([]byte, error) {
	method := ABI.Methods[name]
	switch name {
	case "admin":
		return method.Outputs.Pack(admin(env))
	case "implementation":
		return method.Outputs.Pack(implementation(env))
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", chain.ErrInvalidArgument, name, err)
	}
	if env.Caller() != admin(env) {
		return nil, fmt.Errorf("%w: %s from non-admin %s", chain.ErrUnauthorized, name, env.Caller().Hex())
	}
	target := args[0].(common.Address)
	if target == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s to zero address", chain.ErrInvalidArgument, name)
	}

	switch name {
	case "changeAdmin":
		return nil, setAdmin(env, target)
	case "upgradeTo":
		return nil, setImplementation(env, target)
	}
	return nil, fmt.Errorf("%w: %s", chain.ErrUnknownSelector, name)
}

func admin(env *chain.Env) common.Address {
	return slots.ToAddress(env.ReservedLoad(slots.Admin))
}

func implementation(env *chain.Env) common.Address {
	return slots.ToAddress(env.ReservedLoad(slots.Implementation))
}

func setAdmin(env *chain.Env, next common.Address) error {
	prev := admin(env)
	env.ReservedStore(slots.Admin, slots.AddressKey(next))
	return chain.EmitEvent(env, &ABI, "AdminChanged", nil, prev, next)
}

func setImplementation(env *chain.Env, next common.Address) error {
	env.ReservedStore(slots.Implementation, slots.AddressKey(next))
	return chain.EmitEvent(env, &ABI, "Upgraded", []common.Hash{slots.AddressKey(next)})
}

// ConstructorArgs encodes the proxy constructor arguments.
func ConstructorArgs(impl common.Address, initSelector common.Hash) ([]byte, error) {
	return ABI.Pack("", impl, [32]byte(initSelector))
}

// PackChangeAdmin encodes a changeAdmin(next) call.
func PackChangeAdmin(next common.Address) []byte { return mustPack("changeAdmin", next) }

// PackUpgradeTo encodes an upgradeTo(next) call.
func PackUpgradeTo(next common.Address) []byte { return mustPack("upgradeTo", next) }

func mustPack(method string, args ...interface{}) []byte {
	input, err := ABI.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return input
}

// Admin reads admin() from the proxy at addr.
func Admin(v chain.Viewer, addr common.Address) (common.Address, error) {
	return readAddress(v, addr, "admin")
}

// Implementation reads implementation() from the proxy at addr.
func Implementation(v chain.Viewer, addr common.Address) (common.Address, error) {
	return readAddress(v, addr, "implementation")
}

func readAddress(v chain.Viewer, addr common.Address, method string) (common.Address, error) {
	ret, err := v.View(common.Address{}, addr, mustPack(method))
	if err != nil {
		return common.Address{}, err
	}
	out, err := ABI.Unpack(method, ret)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// DecodeUpgradeTo returns the target of an upgradeTo call. ok is false for
// any other input.
func DecodeUpgradeTo(input []byte) (target common.Address, ok bool) {
	m := ABI.Methods["upgradeTo"]
	if len(input) < 4 || !bytes.Equal(input[:4], m.ID) {
		return common.Address{}, false
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return common.Address{}, false
	}
	return args[0].(common.Address), true
}
