package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// ScheduledCall is a call registered for execution once the block height
// reaches Due. From is the account that registered it and becomes the caller
// when the host runs it.
type ScheduledCall struct {
	Task      common.Hash
	From      common.Address
	To        common.Address
	Input     []byte
	Scheduled uint64
	Due       uint64
	Seq       uint64
}

// dueCalls returns the committed calls due at or below height, oldest first.
func dueCalls(kv KVStore, height uint64) ([]ScheduledCall, error) {
	return scanSchedule(kv, []byte(prefixSchedule), scheduleKey(height+1, 0))
}

func pendingCalls(kv KVStore) ([]ScheduledCall, error) {
	lower := []byte(prefixSchedule)
	return scanSchedule(kv, lower, keyUpperBound(lower))
}

func scanSchedule(kv KVStore, lower, upper []byte) ([]ScheduledCall, error) {
	var (
		out    []ScheduledCall
		decErr error
	)
	err := kv.Iterate(lower, upper, func(key, value []byte) bool {
		var sc ScheduledCall
		if err := rlp.DecodeBytes(value, &sc); err != nil {
			decErr = fmt.Errorf("decode scheduled call %x: %w", key, err)
			return false
		}
		out = append(out, sc)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}
