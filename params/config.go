package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

type Chain struct {
	ID        int64
	BlockTime time.Duration
	// ScheduleDelay is the number of blocks between a proposal reaching
	// quorum and its upgrade executing.
	ScheduleDelay uint64
}

type Node struct {
	DataDir         string // empty keeps all state in memory
	APIAddr         string
	LogFile         string
	AddressesFile   string
	MempoolMaxBytes int64
	Verbose         bool
}

type Governance struct {
	Signers     []common.Address
	Threshold   uint64
	DeployerKey string
	// InvalidSigners holds GOV_SIGNERS entries that are not hex addresses.
	InvalidSigners []string
}

type Config struct {
	Chain      Chain
	Node       Node
	Governance Governance
}

func Default() Config {
	return Config{
		Chain: Chain{
			ID:            1337,
			BlockTime:     1 * time.Second,
			ScheduleDelay: 1,
		},
		Node: Node{
			APIAddr:         ":8080",
			AddressesFile:   "addresses.json",
			MempoolMaxBytes: 1 << 20,
		},
		Governance: Governance{
			Threshold: 2,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ID = id
		}
	}
	if v := os.Getenv("BLOCK_TIME_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Chain.BlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SCHEDULE_DELAY_BLOCKS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Chain.ScheduleDelay = n
		}
	}
	if v := os.Getenv("MEMPOOL_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Node.MempoolMaxBytes = n
		}
	}
	if v := os.Getenv("GOV_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Governance.Threshold = n
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.AddressesFile = getEnv("ADDRESSES_FILE", cfg.Node.AddressesFile)
	cfg.Node.Verbose = getEnv("VERBOSE", "") == "true"
	cfg.Governance.DeployerKey = getEnv("DEPLOYER_KEY", cfg.Governance.DeployerKey)

	// Signers from comma-separated list: "0xabc...,0xdef..."
	if v := os.Getenv("GOV_SIGNERS"); v != "" {
		cfg.Governance.Signers = nil
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if !common.IsHexAddress(s) {
				cfg.Governance.InvalidSigners = append(cfg.Governance.InvalidSigners, s)
				continue
			}
			cfg.Governance.Signers = append(cfg.Governance.Signers, common.HexToAddress(s))
		}
	}

	return cfg
}

// Validate rejects settings the node cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Chain.BlockTime <= 0 {
		errs = append(errs, fmt.Errorf("block time must be positive, got %s", c.Chain.BlockTime))
	}
	if c.Chain.ScheduleDelay > chain.MaxScheduleDelay {
		errs = append(errs, fmt.Errorf("schedule delay %d exceeds %d blocks", c.Chain.ScheduleDelay, uint64(chain.MaxScheduleDelay)))
	}
	if len(c.Governance.InvalidSigners) > 0 {
		errs = append(errs, fmt.Errorf("invalid signer addresses: %q", c.Governance.InvalidSigners))
	}
	if n := uint64(len(c.Governance.Signers)); n > 0 && (c.Governance.Threshold < 1 || c.Governance.Threshold > n) {
		errs = append(errs, fmt.Errorf("threshold %d not in [1, %d]", c.Governance.Threshold, n))
	}
	return errors.Join(errs...)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
