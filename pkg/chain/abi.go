package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MustParseABI parses a JSON ABI definition or panics. Intended for
// package-level contract interface declarations.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Selector returns the 4-byte function selector for a canonical signature
// such as "upgradeTo(address)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// DecodeCall resolves the method addressed by input and unpacks its
// arguments.
func DecodeCall(parsed *abi.ABI, input []byte) (*abi.Method, []interface{}, error) {
	if len(input) < 4 {
		return nil, nil, ErrShortInput
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", ErrUnknownSelector, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, method.Name, err)
	}
	return method, args, nil
}

// IsUnknownSelector reports whether err came from DecodeCall failing to
// find a method.
func IsUnknownSelector(err error) bool {
	return errors.Is(err, ErrUnknownSelector) || errors.Is(err, ErrShortInput)
}

// EmitEvent packs the non-indexed arguments of a declared event and emits
// it with the given indexed topics.
func EmitEvent(env *Env, parsed *abi.ABI, name string, indexed []common.Hash, args ...interface{}) error {
	ev, ok := parsed.Events[name]
	if !ok {
		return fmt.Errorf("unknown event %q", name)
	}
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return fmt.Errorf("pack event %s: %w", name, err)
	}
	topics := append([]common.Hash{ev.ID}, indexed...)
	env.Emit(topics, data)
	return nil
}
