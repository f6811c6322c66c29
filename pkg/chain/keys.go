package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for the backing KV store:
//
//	h                            → current block height (8 bytes BE)
//	qs                           → scheduled call sequence counter
//	n:<address>                  → account nonce
//	c:<address>                  → code name
//	s:<arena><address><slot>     → storage word
//	q:<due height><seq>          → scheduled call (RLP)

const (
	prefixNonce    = "n:"
	prefixCode     = "c:"
	prefixStorage  = "s:"
	prefixSchedule = "q:"
)

var (
	keyHeight      = []byte("h")
	keyScheduleSeq = []byte("qs")
)

// Arena separates the storage an account's code can address from the
// bookkeeping only the proxy accessors can reach.
type Arena byte

const (
	ArenaContract Arena = 'c'
	ArenaReserved Arena = 'r'
)

func nonceKey(addr common.Address) []byte {
	return append([]byte(prefixNonce), addr.Bytes()...)
}

func codeKey(addr common.Address) []byte {
	return append([]byte(prefixCode), addr.Bytes()...)
}

func storageKey(arena Arena, addr common.Address, slot common.Hash) []byte {
	k := make([]byte, 0, len(prefixStorage)+1+common.AddressLength+common.HashLength)
	k = append(k, prefixStorage...)
	k = append(k, byte(arena))
	k = append(k, addr.Bytes()...)
	return append(k, slot.Bytes()...)
}

// scheduleKey orders scheduled calls by due height, then by registration.
func scheduleKey(due, seq uint64) []byte {
	k := make([]byte, 0, len(prefixSchedule)+16)
	k = append(k, prefixSchedule...)
	k = binary.BigEndian.AppendUint64(k, due)
	return binary.BigEndian.AppendUint64(k, seq)
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
