package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/params"
	"github.com/uhyunpark/proxygov/pkg/api"
	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/crypto"
	"github.com/uhyunpark/proxygov/pkg/node"
	"github.com/uhyunpark/proxygov/pkg/storage"
	"github.com/uhyunpark/proxygov/pkg/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sequencer and its HTTP/WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer logger.Sync()
		return runNode(cmd.Context(), cfg, logger.Sugar())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// backend bundles the stores selected by DATA_DIR.
type backend struct {
	kv     chain.KVStore
	blocks storage.BlockStore
	wal    storage.WAL
	close  func()
}

func openBackend(dataDir string, logger *zap.SugaredLogger) (*backend, error) {
	if dataDir == "" {
		logger.Infow("state_in_memory")
		return &backend{
			kv:     chain.NewMemKV(),
			blocks: storage.NewInMemoryBlockStore(),
			wal:    storage.NewNopWAL(),
			close:  func() {},
		}, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	store, err := storage.NewPebbleStore(filepath.Join(dataDir, "chain"))
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	wal, err := storage.NewFileWAL(filepath.Join(dataDir, "blocks.wal"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open wal: %w", err)
	}
	logger.Infow("state_on_disk", "data_dir", dataDir)
	return &backend{
		kv:     store,
		blocks: store,
		wal:    wal,
		close: func() {
			wal.Close()
			store.Close()
		},
	}, nil
}

// ensureDeployed reuses the address book when it matches the ledger and
// bootstraps the governance contracts otherwise.
func ensureDeployed(cfg params.Config, l *chain.Ledger, logger *zap.SugaredLogger) (node.Addresses, error) {
	if a, err := node.LoadAddresses(cfg.Node.AddressesFile); err == nil &&
		l.CodeName(a.Proxy) == proxy.Name && l.CodeName(a.MultiSig) == multisig.Name {
		logger.Infow("contracts_loaded", "proxy", a.Proxy.Hex(), "multisig", a.MultiSig.Hex())
		return a, nil
	}

	var deployer *crypto.Signer
	var err error
	if cfg.Governance.DeployerKey != "" {
		deployer, err = crypto.FromPrivateKeyHex(cfg.Governance.DeployerKey)
	} else {
		deployer, err = crypto.GenerateKey()
	}
	if err != nil {
		return node.Addresses{}, fmt.Errorf("deployer key: %w", err)
	}

	signers := cfg.Governance.Signers
	threshold := cfg.Governance.Threshold
	if len(signers) == 0 {
		dev, err := devSigners(2)
		if err != nil {
			return node.Addresses{}, err
		}
		for _, s := range dev {
			signers = append(signers, s.Address())
			logger.Warnw("dev_signer_generated", "address", s.Address().Hex())
			fmt.Fprintf(os.Stderr, "dev signer %s private key: %s (KEEP SECRET!)\n", s.Address().Hex(), s.PrivateKeyHex())
		}
		threshold = uint64(len(dev))
	}

	a, err := node.Bootstrap(l, deployer.Address(), signers, threshold, logger)
	if err != nil {
		return a, err
	}
	if err := node.WriteAddresses(cfg.Node.AddressesFile, a); err != nil {
		return a, fmt.Errorf("write address book: %w", err)
	}
	logger.Infow("contracts_bootstrapped", "addresses_file", cfg.Node.AddressesFile, "signers", len(signers), "threshold", threshold)
	return a, nil
}

func devSigners(n int) ([]*crypto.Signer, error) {
	out := make([]*crypto.Signer, 0, n)
	for i := 0; i < n; i++ {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func runNode(parent context.Context, cfg params.Config, logger *zap.SugaredLogger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(cfg.Node.DataDir, logger)
	if err != nil {
		return err
	}
	defer be.close()

	ledger := chain.NewLedger(be.kv, logger)
	node.RegisterCodes(ledger, cfg.Chain.ScheduleDelay)
	addrs, err := ensureDeployed(cfg, ledger, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := node.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	n, err := node.New(node.Options{
		Ledger:          ledger,
		Store:           be.blocks,
		WAL:             be.wal,
		Clock:           util.RealClock{},
		Metrics:         metrics,
		Logger:          logger,
		Domain:          crypto.NewDomain(cfg.Chain.ID),
		BlockTime:       cfg.Chain.BlockTime,
		MempoolMaxBytes: cfg.Node.MempoolMaxBytes,
		VerboseLogging:  cfg.Node.Verbose,
	})
	if err != nil {
		return err
	}

	srv := api.NewServer(n, api.Options{Gatherer: reg, Logger: logger})
	n.OnBlockCommit = srv.OnBlock

	apiErr := make(chan error, 1)
	go func() { apiErr <- srv.Start(ctx, cfg.Node.APIAddr) }()

	logger.Infow("node_starting",
		"chain_id", cfg.Chain.ID,
		"api_addr", cfg.Node.APIAddr,
		"proxy", addrs.Proxy.Hex(),
		"multisig", addrs.MultiSig.Hex(),
		"schedule_delay_blocks", cfg.Chain.ScheduleDelay)

	nodeErr := make(chan error, 1)
	go func() { nodeErr <- n.Run(ctx) }()

	select {
	case err := <-apiErr:
		stop()
		<-nodeErr
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case err := <-nodeErr:
		stop()
		<-apiErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Infow("node_stopped", "height", ledger.Height())
		return nil
	}
}
