package slots

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestEIP1967Slots(t *testing.T) {
	require.Equal(t,
		common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"),
		Implementation)
	require.Equal(t,
		common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103"),
		Admin)
}

func TestMappingMatchesSolidityLayout(t *testing.T) {
	key := AddressKey(common.HexToAddress("0xAA00000000000000000000000000000000000000"))
	want := crypto.Keccak256Hash(key.Bytes(), Index(3).Bytes())
	require.Equal(t, want, Mapping(Index(3), key))
}

func TestArrayElements(t *testing.T) {
	start := crypto.Keccak256Hash(Index(2).Bytes())
	require.Equal(t, start, Array(Index(2), 0, 1))
	require.Equal(t, Offset(start, 8), Array(Index(2), 2, 4))
}

func TestOffsetWraps(t *testing.T) {
	max := common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.Equal(t, common.Hash{}, Offset(max, 1))
}

func TestWordConversions(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	require.Equal(t, addr, ToAddress(AddressKey(addr)))
	require.Equal(t, uint64(42), ToUint64(Index(42)))
	require.True(t, ToBool(FromBool(true)))
	require.False(t, ToBool(FromBool(false)))
}
