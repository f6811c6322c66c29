package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

type journalEntry struct {
	key     string
	prev    []byte
	hadPrev bool
}

// Snapshot identifies a revertible point in a StateDB.
type Snapshot struct {
	journal int
	logs    int
}

// StateDB is a journaled write overlay over a KVStore, scoped to one
// transaction. Nothing reaches the backing store before Commit.
type StateDB struct {
	kv      KVStore
	dirty   map[string][]byte
	journal []journalEntry
	logs    []*types.Log
	err     error
}

func NewStateDB(kv KVStore) *StateDB {
	return &StateDB{kv: kv, dirty: make(map[string][]byte)}
}

func (s *StateDB) get(key []byte) []byte {
	if v, ok := s.dirty[string(key)]; ok {
		return v
	}
	v, err := s.kv.Get(key)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("state read %x: %w", key, err)
	}
	return v
}

func (s *StateDB) set(key []byte, val []byte) {
	k := string(key)
	prev, had := s.dirty[k]
	s.journal = append(s.journal, journalEntry{key: k, prev: prev, hadPrev: had})
	s.dirty[k] = val
}

func (s *StateDB) del(key []byte) { s.set(key, nil) }

func (s *StateDB) Snapshot() Snapshot {
	return Snapshot{journal: len(s.journal), logs: len(s.logs)}
}

// RevertToSnapshot undoes every write and log recorded after snap.
func (s *StateDB) RevertToSnapshot(snap Snapshot) {
	for i := len(s.journal) - 1; i >= snap.journal; i-- {
		e := s.journal[i]
		if e.hadPrev {
			s.dirty[e.key] = e.prev
		} else {
			delete(s.dirty, e.key)
		}
	}
	s.journal = s.journal[:snap.journal]
	s.logs = s.logs[:snap.logs]
}

// Commit flushes the overlay to the backing store in one atomic write.
func (s *StateDB) Commit() error {
	if s.err != nil {
		return s.err
	}
	if len(s.dirty) == 0 {
		return nil
	}
	if err := s.kv.Write(s.dirty); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	s.dirty = make(map[string][]byte)
	s.journal = nil
	return nil
}

func (s *StateDB) Logs() []*types.Log { return s.logs }

func (s *StateDB) addLog(l *types.Log) {
	l.Index = uint(len(s.logs))
	s.logs = append(s.logs, l)
}

func (s *StateDB) GetState(arena Arena, addr common.Address, slot common.Hash) common.Hash {
	return common.BytesToHash(s.get(storageKey(arena, addr, slot)))
}

// SetState stores a word; the zero word clears the slot.
func (s *StateDB) SetState(arena Arena, addr common.Address, slot, val common.Hash) {
	key := storageKey(arena, addr, slot)
	if val == (common.Hash{}) {
		s.del(key)
		return
	}
	s.set(key, val.Bytes())
}

func (s *StateDB) Nonce(addr common.Address) uint64 {
	return decodeUint64(s.get(nonceKey(addr)))
}

func (s *StateDB) SetNonce(addr common.Address, n uint64) {
	s.set(nonceKey(addr), encodeUint64(n))
}

func (s *StateDB) CodeName(addr common.Address) string {
	return string(s.get(codeKey(addr)))
}

func (s *StateDB) SetCodeName(addr common.Address, name string) {
	s.set(codeKey(addr), []byte(name))
}

func (s *StateDB) Height() uint64 {
	return decodeUint64(s.get(keyHeight))
}

// schedule registers a deferred call. The registration is journaled like any
// other write, so it disappears if the registering frame reverts.
func (s *StateDB) schedule(from, to common.Address, input []byte, now, due uint64) (ScheduledCall, error) {
	seq := decodeUint64(s.get(keyScheduleSeq))
	s.set(keyScheduleSeq, encodeUint64(seq+1))

	sc := ScheduledCall{
		Task:      crypto.Keccak256Hash(from.Bytes(), encodeUint64(seq)),
		From:      from,
		To:        to,
		Input:     append([]byte(nil), input...),
		Scheduled: now,
		Due:       due,
		Seq:       seq,
	}
	enc, err := rlp.EncodeToBytes(&sc)
	if err != nil {
		return ScheduledCall{}, fmt.Errorf("encode scheduled call: %w", err)
	}
	s.set(scheduleKey(due, seq), enc)
	return sc, nil
}
