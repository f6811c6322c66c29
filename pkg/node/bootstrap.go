package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/counter"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/contracts/schedule"
)

// Addresses is the address book written after bootstrap.
type Addresses struct {
	StorageV1 common.Address `json:"storageV1_address"`
	StorageV2 common.Address `json:"storageV2_address"`
	Proxy     common.Address `json:"proxy_address"`
	MultiSig  common.Address `json:"multisig_address"`
}

// RegisterCodes makes every contract of the governance set deployable on l.
// Multisig upgrades go through the host scheduler with delayBlocks of delay.
func RegisterCodes(l *chain.Ledger, delayBlocks uint64) {
	counter.Register(l)
	l.Register(proxy.Name, proxy.New())
	l.Register(multisig.Name, multisig.New(schedule.Precompile{}, delayBlocks))
}

// Bootstrap deploys both storage versions, a proxy over StorageV1
// initialised through initialize(), and a multisig over the proxy, then
// hands proxy administration to the multisig.
func Bootstrap(l *chain.Ledger, deployer common.Address, signers []common.Address, threshold uint64, logger *zap.SugaredLogger) (Addresses, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var a Addresses
	deploy := func(name string, args []byte) (common.Address, error) {
		r, err := l.Deploy(deployer, name, args)
		if err != nil {
			return common.Address{}, fmt.Errorf("deploy %s: %w", name, err)
		}
		logger.Infow("contract_deployed", "code", name, "address", r.ContractAddress.Hex())
		return r.ContractAddress, nil
	}

	var err error
	if a.StorageV1, err = deploy(counter.NameV1, nil); err != nil {
		return a, err
	}
	if a.StorageV2, err = deploy(counter.NameV2, nil); err != nil {
		return a, err
	}
	proxyArgs, err := proxy.ConstructorArgs(a.StorageV1, proxy.InitializeSelector)
	if err != nil {
		return a, err
	}
	if a.Proxy, err = deploy(proxy.Name, proxyArgs); err != nil {
		return a, err
	}
	msArgs, err := multisig.ConstructorArgs(a.Proxy, signers, threshold)
	if err != nil {
		return a, err
	}
	if a.MultiSig, err = deploy(multisig.Name, msArgs); err != nil {
		return a, err
	}
	if _, err := l.Apply(deployer, a.Proxy, proxy.PackChangeAdmin(a.MultiSig)); err != nil {
		return a, fmt.Errorf("transfer proxy admin: %w", err)
	}
	logger.Infow("proxy_admin_transferred", "proxy", a.Proxy.Hex(), "admin", a.MultiSig.Hex())
	return a, nil
}

// WriteAddresses stores the address book as indented JSON.
func WriteAddresses(path string, a Addresses) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func LoadAddresses(path string) (Addresses, error) {
	var a Addresses
	data, err := os.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("parse %s: %w", path, err)
	}
	if a.Proxy == (common.Address{}) || a.MultiSig == (common.Address{}) {
		return a, errors.New("address book is missing proxy or multisig address")
	}
	return a, nil
}
