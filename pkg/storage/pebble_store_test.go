package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPebbleKVWriteAndIterate(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Write(map[string][]byte{
		"a:1": []byte("one"),
		"a:2": []byte("two"),
		"a:3": []byte("three"),
		"b:1": []byte("other"),
	}))

	v, err := s.Get([]byte("a:2"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), v)

	v, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, s.Write(map[string][]byte{"a:2": nil}))

	var keys []string
	require.NoError(t, s.Iterate([]byte("a:"), []byte("a;"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}))
	require.Equal(t, []string{"a:1", "a:3"}, keys)
}

func TestLedgerStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	addr := common.HexToAddress("0xAA00000000000000000000000000000000000000")

	s, err := NewPebbleStore(path)
	require.NoError(t, err)
	st := chain.NewStateDB(s)
	st.SetNonce(addr, 9)
	st.SetState(chain.ArenaReserved, addr, common.HexToHash("0x01"), common.HexToHash("0x02"))
	require.NoError(t, st.Commit())
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(path)
	require.NoError(t, err)
	defer s.Close()
	st = chain.NewStateDB(s)
	require.Equal(t, uint64(9), st.Nonce(addr))
	require.Equal(t, common.HexToHash("0x02"), st.GetState(chain.ArenaReserved, addr, common.HexToHash("0x01")))
}

func testBlockStore(t *testing.T, bs BlockStore) {
	_, ok, err := bs.LatestBlock()
	require.NoError(t, err)
	require.False(t, ok)

	b := Block{
		Height:   3,
		Hash:     common.HexToHash("0xb3"),
		Time:     time.Unix(1700000000, 0).UTC(),
		TxHashes: []common.Hash{common.HexToHash("0x01")},
	}
	require.NoError(t, bs.SaveBlock(b))

	got, ok, err := bs.LatestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.Hash, got.Hash)
	require.Equal(t, b.TxHashes, got.TxHashes)
	require.True(t, b.Time.Equal(got.Time))

	_, ok, err = bs.GetBlock(4)
	require.NoError(t, err)
	require.False(t, ok)

	r := &chain.Receipt{
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: 3,
		Status:      types.ReceiptStatusFailed,
		Error:       "unauthorized",
		Logs:        []*types.Log{{Address: common.HexToAddress("0x0a"), Topics: []common.Hash{common.HexToHash("0x0b")}}},
	}
	require.NoError(t, bs.SaveReceipt(r))
	gotR, ok, err := bs.GetReceipt(r.TxHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.Status, gotR.Status)
	require.Equal(t, r.Error, gotR.Error)
	require.Len(t, gotR.Logs, 1)
	require.Equal(t, r.Logs[0].Topics, gotR.Logs[0].Topics)
}

func TestPebbleBlockStore(t *testing.T) {
	testBlockStore(t, newTestStore(t))
}

func TestInMemoryBlockStore(t *testing.T) {
	testBlockStore(t, NewInMemoryBlockStore())
}

func TestFileWAL(t *testing.T) {
	w, err := NewFileWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	w.Append("block 1")
	require.NoError(t, w.Close())
}
