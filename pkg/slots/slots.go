// Package slots holds the storage layout rules shared by the proxy and the
// code it delegates to: the reserved EIP-1967 slots for proxy bookkeeping
// and Solidity-compatible derivation of mapping and array slots.
package slots

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	ImplementationLabel = "eip1967.proxy.implementation"
	AdminLabel          = "eip1967.proxy.admin"
)

var (
	// Implementation = keccak256("eip1967.proxy.implementation") - 1
	Implementation = Reserved(ImplementationLabel)
	// Admin = keccak256("eip1967.proxy.admin") - 1
	Admin = Reserved(AdminLabel)
)

func keccak(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// Reserved derives a slot as keccak256(label) - 1, which has no known
// keccak preimage and so cannot be produced by mapping or array layout.
func Reserved(label string) common.Hash {
	n := new(big.Int).SetBytes(keccak([]byte(label)).Bytes())
	n.Sub(n, big.NewInt(1))
	return common.BigToHash(n)
}

// Index returns the slot of the n-th declared state variable.
func Index(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// Mapping returns the slot of key in the mapping declared at base.
func Mapping(base, key common.Hash) common.Hash {
	return keccak(key.Bytes(), base.Bytes())
}

// Array returns the slot of element i of a dynamic array declared at base,
// for elements of width words each.
func Array(base common.Hash, i, width uint64) common.Hash {
	return Offset(keccak(base.Bytes()), i*width)
}

// Offset adds n to a slot, wrapping at 2^256.
func Offset(base common.Hash, n uint64) common.Hash {
	v := new(big.Int).SetBytes(base.Bytes())
	v.Add(v, new(big.Int).SetUint64(n))
	return common.BigToHash(v)
}

func AddressKey(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func Uint64Key(n uint64) common.Hash { return Index(n) }

func ToAddress(w common.Hash) common.Address { return common.BytesToAddress(w.Bytes()) }

func ToUint64(w common.Hash) uint64 { return new(big.Int).SetBytes(w.Bytes()).Uint64() }

func ToBool(w common.Hash) bool { return w != (common.Hash{}) }

func FromBool(b bool) common.Hash {
	if b {
		return Index(1)
	}
	return common.Hash{}
}
