package proxy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/counter"
	"github.com/uhyunpark/proxygov/pkg/slots"
)

var (
	deployer = common.HexToAddress("0xDE00000000000000000000000000000000000000")
	addr1    = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	addr2    = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

type fixture struct {
	ledger *chain.Ledger
	v1, v2 common.Address
	proxy  common.Address
}

func deploy(t *testing.T, l *chain.Ledger, name string, args []byte) common.Address {
	t.Helper()
	r, err := l.Deploy(deployer, name, args)
	require.NoError(t, err)
	return r.ContractAddress
}

func newFixture(t *testing.T, initSelector common.Hash) *fixture {
	t.Helper()
	l := chain.NewLedger(chain.NewMemKV(), nil)
	counter.Register(l)
	l.Register(Name, New())

	f := &fixture{ledger: l}
	f.v1 = deploy(t, l, counter.NameV1, nil)
	f.v2 = deploy(t, l, counter.NameV2, nil)
	args, err := ConstructorArgs(f.v1, initSelector)
	require.NoError(t, err)
	f.proxy = deploy(t, l, Name, args)
	return f
}

func TestDeployerIsAdmin(t *testing.T) {
	f := newFixture(t, common.Hash{})

	admin, err := Admin(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, deployer, admin)

	impl, err := Implementation(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, f.v1, impl)
}

func TestConstructorInitializesThroughDelegation(t *testing.T) {
	f := newFixture(t, InitializeSelector)

	creator, err := counter.Creator(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, deployer, creator)

	value, err := counter.Value(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Zero(t, value.Sign())

	// the implementation's own storage is untouched
	creator, err = counter.Creator(f.ledger, f.v1)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, creator)
}

func TestConstructorFailsWhenInitializeReverts(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	counter.Register(l)
	l.Register(Name, New())
	v1 := deploy(t, l, counter.NameV1, nil)

	bogus := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")
	args, err := ConstructorArgs(v1, bogus)
	require.NoError(t, err)
	r, err := l.Deploy(deployer, Name, args)
	require.ErrorIs(t, err, chain.ErrUnknownSelector)
	require.False(t, r.Succeeded())
	require.Empty(t, l.CodeName(crypto.CreateAddress(deployer, 1)))

	args, err = ConstructorArgs(common.Address{}, common.Hash{})
	require.NoError(t, err)
	_, err = l.Deploy(deployer, Name, args)
	require.ErrorIs(t, err, chain.ErrInvalidArgument)
}

func TestAdminCanTransferAdminRole(t *testing.T) {
	f := newFixture(t, common.Hash{})

	r, err := f.ledger.Apply(deployer, f.proxy, PackChangeAdmin(addr1))
	require.NoError(t, err)
	require.Len(t, r.Logs, 1)
	ev := ABI.Events["AdminChanged"]
	require.Equal(t, ev.ID, r.Logs[0].Topics[0])
	vals, err := ev.Inputs.Unpack(r.Logs[0].Data)
	require.NoError(t, err)
	require.Equal(t, deployer, vals[0])
	require.Equal(t, addr1, vals[1])

	admin, err := Admin(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, addr1, admin)
}

func TestNonAdminCannotTransferAdminRole(t *testing.T) {
	f := newFixture(t, common.Hash{})

	_, err := f.ledger.Apply(addr1, f.proxy, PackChangeAdmin(addr2))
	require.ErrorIs(t, err, chain.ErrUnauthorized)

	admin, err := Admin(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, deployer, admin)
}

func TestChangeAdminRejectsZeroAddress(t *testing.T) {
	f := newFixture(t, common.Hash{})

	_, err := f.ledger.Apply(deployer, f.proxy, PackChangeAdmin(common.Address{}))
	require.ErrorIs(t, err, chain.ErrInvalidArgument)
}

func TestAdminCanUpgrade(t *testing.T) {
	f := newFixture(t, common.Hash{})

	r, err := f.ledger.Apply(deployer, f.proxy, PackUpgradeTo(f.v2))
	require.NoError(t, err)
	require.Len(t, r.Logs, 1)
	require.Equal(t, []common.Hash{ABI.Events["Upgraded"].ID, slots.AddressKey(f.v2)}, r.Logs[0].Topics)

	impl, err := Implementation(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, f.v2, impl)
}

func TestNonAdminCannotUpgrade(t *testing.T) {
	f := newFixture(t, common.Hash{})

	_, err := f.ledger.Apply(addr1, f.proxy, PackUpgradeTo(f.v2))
	require.ErrorIs(t, err, chain.ErrUnauthorized)

	impl, err := Implementation(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, f.v1, impl)
}

func TestProxyKeepsStorageAcrossUpgrade(t *testing.T) {
	f := newFixture(t, InitializeSelector)

	_, err := f.ledger.Apply(deployer, f.proxy, counter.Pack("increment"))
	require.NoError(t, err)

	creatorBefore, err := counter.Creator(f.ledger, f.proxy)
	require.NoError(t, err)
	valueBefore, err := counter.Value(f.ledger, f.proxy)
	require.NoError(t, err)

	// decrement is not part of V1
	_, err = f.ledger.Apply(deployer, f.proxy, counter.Pack("decrement"))
	require.ErrorIs(t, err, chain.ErrUnknownSelector)

	_, err = f.ledger.Apply(deployer, f.proxy, PackUpgradeTo(f.v2))
	require.NoError(t, err)

	creatorAfter, err := counter.Creator(f.ledger, f.proxy)
	require.NoError(t, err)
	valueAfter, err := counter.Value(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Equal(t, creatorBefore, creatorAfter)
	require.Zero(t, valueBefore.Cmp(valueAfter))

	_, err = f.ledger.Apply(deployer, f.proxy, counter.Pack("decrement"))
	require.NoError(t, err)
	value, err := counter.Value(f.ledger, f.proxy)
	require.NoError(t, err)
	require.Zero(t, value.Cmp(new(big.Int).Sub(valueBefore, big.NewInt(1))))
}

func TestForwardPropagatesImplementationFailure(t *testing.T) {
	f := newFixture(t, InitializeSelector)

	_, err := f.ledger.Apply(addr1, f.proxy, counter.Pack("initialize"))
	require.ErrorIs(t, err, chain.ErrStateConflict)

	_, err = f.ledger.Apply(addr1, f.proxy, []byte{0x01, 0x02})
	require.ErrorIs(t, err, chain.ErrShortInput)
}

// slotWriter writes to the reserved slot hashes from delegated code.
type slotWriter struct{}

func (slotWriter) Construct(*chain.Env, []byte) error { return nil }

func (slotWriter) Call(env *chain.Env, input []byte) ([]byte, error) {
	env.SStore(slots.Implementation, slots.AddressKey(addr2))
	env.SStore(slots.Admin, slots.AddressKey(addr2))
	return nil, nil
}

func TestDelegatedCodeCannotReachProxySlots(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	l.Register("writer", slotWriter{})
	l.Register(Name, New())
	writer := deploy(t, l, "writer", nil)
	args, err := ConstructorArgs(writer, common.Hash{})
	require.NoError(t, err)
	p := deploy(t, l, Name, args)

	_, err = l.Apply(addr1, p, []byte{0xca, 0xfe, 0xba, 0xbe})
	require.NoError(t, err)

	admin, err := Admin(l, p)
	require.NoError(t, err)
	require.Equal(t, deployer, admin)
	impl, err := Implementation(l, p)
	require.NoError(t, err)
	require.Equal(t, writer, impl)
	require.Equal(t, slots.AddressKey(addr2), l.StorageAt(chain.ArenaContract, p, slots.Implementation))
}

func TestDecodeUpgradeTo(t *testing.T) {
	target, ok := DecodeUpgradeTo(PackUpgradeTo(addr2))
	require.True(t, ok)
	require.Equal(t, addr2, target)

	_, ok = DecodeUpgradeTo(PackChangeAdmin(addr2))
	require.False(t, ok)
	_, ok = DecodeUpgradeTo([]byte{0x01})
	require.False(t, ok)
}
