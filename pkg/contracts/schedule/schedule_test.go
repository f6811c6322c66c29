package schedule

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

var (
	sender = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	target = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

// forwarder schedules its input against target with a delay of input[0].
type forwarder struct{ s Scheduler }

func (forwarder) Construct(*chain.Env, []byte) error { return nil }

func (f forwarder) Call(env *chain.Env, input []byte) ([]byte, error) {
	task, err := f.s.ScheduleCall(env, target, input[1:], uint64(input[0]))
	if err != nil {
		return nil, err
	}
	return task.Bytes(), nil
}

func deployForwarder(t *testing.T, s Scheduler) (*chain.Ledger, common.Address) {
	t.Helper()
	l := chain.NewLedger(chain.NewMemKV(), nil)
	l.Register("forwarder", forwarder{s: s})
	r, err := l.Deploy(sender, "forwarder", nil)
	require.NoError(t, err)
	return l, r.ContractAddress
}

func TestPrecompileRegistersWithHost(t *testing.T) {
	l, fwd := deployForwarder(t, Precompile{})

	r, err := l.Apply(sender, fwd, []byte{3, 0xde, 0xad})
	require.NoError(t, err)

	pending, err := l.PendingCalls()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, common.BytesToHash(r.Return), pending[0].Task)
	require.Equal(t, fwd, pending[0].From)
	require.Equal(t, target, pending[0].To)
	require.Equal(t, []byte{0xde, 0xad}, pending[0].Input)
	require.Equal(t, uint64(3), pending[0].Due)
}

func TestRecorderKeysByHeight(t *testing.T) {
	rec := NewRecorder()
	l, fwd := deployForwarder(t, rec)

	_, err := l.Apply(sender, fwd, []byte{5, 0x01})
	require.NoError(t, err)
	_, err = l.Apply(sender, fwd, []byte{1, 0x02})
	require.NoError(t, err)

	calls := rec.Pending()
	require.Len(t, calls, 2)
	require.Equal(t, uint64(1), calls[0].Due)
	require.Equal(t, uint64(5), calls[1].Due)
	require.NotEqual(t, calls[0].Task, calls[1].Task)

	require.Empty(t, rec.Due(0))
	due := rec.Due(4)
	require.Len(t, due, 1)
	require.Equal(t, []byte{0x02}, due[0].Payload)
	require.Len(t, rec.Pending(), 1)

	pending, err := l.PendingCalls()
	require.NoError(t, err)
	require.Empty(t, pending)
}

// flakyKV fails every write while broken is set.
type flakyKV struct {
	*chain.MemKV
	broken bool
}

func (k *flakyKV) Write(entries map[string][]byte) error {
	if k.broken {
		return errors.New("disk full")
	}
	return k.MemKV.Write(entries)
}

func TestRecorderReplayKeepsCallsOnStoreFailure(t *testing.T) {
	rec := NewRecorder()
	kv := &flakyKV{MemKV: chain.NewMemKV()}
	l := chain.NewLedger(kv, nil)
	l.Register("forwarder", forwarder{s: rec})
	r, err := l.Deploy(sender, "forwarder", nil)
	require.NoError(t, err)
	fwd := r.ContractAddress

	_, err = l.Apply(sender, fwd, []byte{1, 0x01})
	require.NoError(t, err)
	_, err = l.AdvanceBlock()
	require.NoError(t, err)

	kv.broken = true
	receipts, err := rec.Replay(l)
	require.ErrorContains(t, err, "disk full")
	require.Empty(t, receipts)
	require.Len(t, rec.Pending(), 1)

	kv.broken = false
	receipts, err = rec.Replay(l)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.True(t, receipts[0].Deferred)
	require.Equal(t, fwd, receipts[0].From)
	require.Empty(t, rec.Pending())
}
