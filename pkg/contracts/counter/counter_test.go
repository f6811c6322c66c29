package counter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

var owner = common.HexToAddress("0xAA00000000000000000000000000000000000000")

func TestStorageDirectCalls(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	Register(l)
	r, err := l.Deploy(owner, NameV2, nil)
	require.NoError(t, err)
	addr := r.ContractAddress

	_, err = l.Apply(owner, addr, Pack("initialize"))
	require.NoError(t, err)
	_, err = l.Apply(owner, addr, Pack("initialize"))
	require.ErrorIs(t, err, chain.ErrStateConflict)

	creator, err := Creator(l, addr)
	require.NoError(t, err)
	require.Equal(t, owner, creator)

	_, err = l.Apply(owner, addr, Pack("decrement"))
	require.ErrorIs(t, err, chain.ErrStateConflict)

	for i := 0; i < 3; i++ {
		_, err = l.Apply(owner, addr, Pack("increment"))
		require.NoError(t, err)
	}
	_, err = l.Apply(owner, addr, Pack("decrement"))
	require.NoError(t, err)

	value, err := Value(l, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(2), value.Uint64())
}

func TestV1HasNoDecrement(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	Register(l)
	r, err := l.Deploy(owner, NameV1, nil)
	require.NoError(t, err)

	_, err = l.Apply(owner, r.ContractAddress, Pack("decrement"))
	require.ErrorIs(t, err, chain.ErrUnknownSelector)
}
