package node

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/counter"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/crypto"
	"github.com/uhyunpark/proxygov/pkg/mempool"
	"github.com/uhyunpark/proxygov/pkg/storage"
	"github.com/uhyunpark/proxygov/pkg/tx"
	"github.com/uhyunpark/proxygov/pkg/util"
)

var deployer = common.HexToAddress("0xDE00000000000000000000000000000000000000")

const blockTime = 500 * time.Millisecond

type recordingWAL struct {
	mu    sync.Mutex
	lines []string
}

func (w *recordingWAL) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
}

type harness struct {
	node    *Node
	clock   *util.ManualClock
	addrs   Addresses
	signers []*crypto.Signer
	wal     *recordingWAL
	metrics *Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := chain.NewLedger(chain.NewMemKV(), nil)
	RegisterCodes(l, 1)

	s1, err := crypto.GenerateKey()
	require.NoError(t, err)
	s2, err := crypto.GenerateKey()
	require.NoError(t, err)

	addrs, err := Bootstrap(l, deployer, []common.Address{s1.Address(), s2.Address()}, 2, nil)
	require.NoError(t, err)

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	wal := &recordingWAL{}
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	n, err := New(Options{
		Ledger:    l,
		WAL:       wal,
		Clock:     clock,
		Metrics:   m,
		Domain:    crypto.DefaultDomain(),
		BlockTime: blockTime,
	})
	require.NoError(t, err)
	return &harness{node: n, clock: clock, addrs: addrs, signers: []*crypto.Signer{s1, s2}, wal: wal, metrics: m}
}

func (h *harness) submit(t *testing.T, s *crypto.Signer, to common.Address, data []byte, nonce uint64) common.Hash {
	t.Helper()
	c, err := tx.Sign(s, crypto.DefaultDomain(), to, data, nonce)
	require.NoError(t, err)
	hash, err := h.node.Submit(c)
	require.NoError(t, err)
	return hash
}

func TestBootstrap(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	RegisterCodes(l, 1)
	signers := []common.Address{common.HexToAddress("0x11"), common.HexToAddress("0x22")}

	a, err := Bootstrap(l, deployer, signers, 2, nil)
	require.NoError(t, err)

	seen := map[common.Address]bool{}
	for _, addr := range []common.Address{a.StorageV1, a.StorageV2, a.Proxy, a.MultiSig} {
		require.NotEqual(t, common.Address{}, addr)
		require.False(t, seen[addr])
		seen[addr] = true
	}

	admin, err := proxy.Admin(l, a.Proxy)
	require.NoError(t, err)
	require.Equal(t, a.MultiSig, admin)
	impl, err := proxy.Implementation(l, a.Proxy)
	require.NoError(t, err)
	require.Equal(t, a.StorageV1, impl)

	creator, err := counter.Creator(l, a.Proxy)
	require.NoError(t, err)
	require.Equal(t, deployer, creator)

	got, err := multisig.Signers(l, a.MultiSig)
	require.NoError(t, err)
	require.Equal(t, signers, got)
}

func TestBootstrapRejectsBadThreshold(t *testing.T) {
	l := chain.NewLedger(chain.NewMemKV(), nil)
	RegisterCodes(l, 1)

	_, err := Bootstrap(l, deployer, []common.Address{common.HexToAddress("0x11")}, 2, nil)
	require.ErrorIs(t, err, chain.ErrInvalidArgument)
}

func TestAddressBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "addresses.json")
	a := Addresses{
		StorageV1: common.HexToAddress("0x01"),
		StorageV2: common.HexToAddress("0x02"),
		Proxy:     common.HexToAddress("0x03"),
		MultiSig:  common.HexToAddress("0x04"),
	}
	require.NoError(t, WriteAddresses(path, a))

	got, err := LoadAddresses(path)
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = LoadAddresses(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestUpgradeThroughSignedCalls(t *testing.T) {
	h := newHarness(t)
	s1, s2 := h.signers[0], h.signers[1]

	createHash := h.submit(t, s1, h.addrs.MultiSig, multisig.PackCreateProposal(h.addrs.StorageV2), 0)
	h.submit(t, s1, h.addrs.MultiSig, multisig.PackApprove(), 1)
	h.submit(t, s2, h.addrs.MultiSig, multisig.PackApprove(), 0)

	b1, receipts, err := h.node.ProduceBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(1), b1.Height)
	require.Len(t, receipts, 3)
	require.Len(t, b1.TxHashes, 3)
	require.Equal(t, createHash, b1.TxHashes[0])
	for _, r := range receipts {
		require.True(t, r.Succeeded(), r.Error)
		require.Equal(t, uint64(1), r.BlockNumber)
	}

	p, err := multisig.GetProposal(h.node.Ledger, h.addrs.MultiSig, 0)
	require.NoError(t, err)
	require.Equal(t, multisig.StatusAccepted, p.Status)

	impl, err := proxy.Implementation(h.node.Ledger, h.addrs.Proxy)
	require.NoError(t, err)
	require.Equal(t, h.addrs.StorageV1, impl)

	b2, receipts, err := h.node.ProduceBlock()
	require.NoError(t, err)
	require.Equal(t, b1.Hash, b2.ParentHash)
	require.Equal(t, 1, b2.Deferred)
	require.Len(t, receipts, 1)
	require.True(t, receipts[0].Deferred)
	require.True(t, receipts[0].Succeeded(), receipts[0].Error)
	require.Equal(t, h.addrs.MultiSig, receipts[0].From)

	impl, err = proxy.Implementation(h.node.Ledger, h.addrs.Proxy)
	require.NoError(t, err)
	require.Equal(t, h.addrs.StorageV2, impl)

	r, ok, err := h.node.Receipt(receipts[0].Task)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, r.Deferred)
	for _, lg := range r.Logs {
		require.Equal(t, b2.Hash, lg.BlockHash)
		require.Equal(t, receipts[0].Task, lg.TxHash)
	}

	require.Equal(t, float64(2), testutil.ToFloat64(h.metrics.blocks))
	require.Equal(t, float64(3), testutil.ToFloat64(h.metrics.txs.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.deferred.WithLabelValues("success")))
	require.Equal(t, float64(0), testutil.ToFloat64(h.metrics.pendingCalls))
	require.Len(t, h.wal.lines, 2)
}

func TestBadNonceDropped(t *testing.T) {
	h := newHarness(t)
	s1 := h.signers[0]

	hash := h.submit(t, s1, h.addrs.MultiSig, multisig.PackCreateProposal(h.addrs.StorageV2), 5)
	_, receipts, err := h.node.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.False(t, receipts[0].Succeeded())
	require.ErrorIs(t, receipts[0].Err, chain.ErrBadNonce)
	require.Equal(t, uint64(0), h.node.Ledger.Nonce(s1.Address()))

	count, err := multisig.ProposalCount(h.node.Ledger, h.addrs.MultiSig)
	require.NoError(t, err)
	require.Zero(t, count)

	r, ok, err := h.node.Receipt(hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, receipts[0].Error, r.Error)
}

// failingBlockStore refuses to persist blocks.
type failingBlockStore struct {
	*storage.InMemoryBlockStore
}

func (failingBlockStore) SaveBlock(storage.Block) error { return errors.New("disk full") }

func TestStoreFailureReportsLedgerAhead(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zap.ErrorLevel)
	h.node.Logger = zap.New(core).Sugar()
	h.node.Store = failingBlockStore{storage.NewInMemoryBlockStore()}

	_, _, err := h.node.ProduceBlock()
	require.ErrorIs(t, err, ErrStoreBehind)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, uint64(1), h.node.Ledger.Height())

	_, ok, err := h.node.Store.LatestBlock()
	require.NoError(t, err)
	require.False(t, ok)

	gap := logs.FilterMessage("ledger_ahead_of_store").All()
	require.Len(t, gap, 1)
	require.Equal(t, uint64(1), gap[0].ContextMap()["ledger_height"])
	require.Equal(t, uint64(0), gap[0].ContextMap()["store_height"])
}

func TestRejectedCallKeepsNonceIncrement(t *testing.T) {
	h := newHarness(t)
	outsider, err := crypto.GenerateKey()
	require.NoError(t, err)

	h.submit(t, outsider, h.addrs.MultiSig, multisig.PackCreateProposal(h.addrs.StorageV2), 0)
	_, receipts, err := h.node.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.ErrorIs(t, receipts[0].Err, chain.ErrUnauthorized)
	require.Equal(t, uint64(1), h.node.Ledger.Nonce(outsider.Address()))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.txs.WithLabelValues("failed")))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	s1 := h.signers[0]

	c, err := tx.Sign(s1, crypto.DefaultDomain(), h.addrs.MultiSig, multisig.PackApprove(), 0)
	require.NoError(t, err)
	_, err = h.node.Submit(c)
	require.NoError(t, err)
	_, err = h.node.Submit(c)
	require.ErrorIs(t, err, mempool.ErrDuplicate)

	forged := *c
	forged.Data = multisig.PackRevoke()
	_, err = h.node.Submit(&forged)
	require.ErrorIs(t, err, tx.ErrInvalidSignature)

	foreign, err := tx.Sign(s1, crypto.NewDomain(1), h.addrs.MultiSig, multisig.PackApprove(), 1)
	require.NoError(t, err)
	_, err = h.node.Submit(foreign)
	require.ErrorIs(t, err, tx.ErrInvalidSignature)

	require.Equal(t, 1, h.node.Mempool.Len())
	require.Equal(t, float64(3), testutil.ToFloat64(h.metrics.rejectedSubmit))
}

func TestRunProducesBlockPerTick(t *testing.T) {
	h := newHarness(t)
	var (
		mu      sync.Mutex
		heights []uint64
	)
	h.node.OnBlockCommit = func(b storage.Block, _ []*chain.Receipt) {
		mu.Lock()
		defer mu.Unlock()
		heights = append(heights, b.Height)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	for want := uint64(1); want <= 3; want++ {
		require.Eventually(t, func() bool { return h.clock.Waiters() == 1 }, time.Second, time.Millisecond)
		h.clock.Advance(blockTime)
		require.Eventually(t, func() bool { return h.node.Ledger.Height() == want }, time.Second, time.Millisecond)
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{1, 2, 3}, heights)
}
