package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/counter"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/crypto"
	"github.com/uhyunpark/proxygov/pkg/node"
	"github.com/uhyunpark/proxygov/pkg/tx"
	"github.com/uhyunpark/proxygov/pkg/util"
)

var demoDelay uint64

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Deploy, propose, approve and upgrade on an in-memory ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runDemo(cmd.OutOrStdout(), demoDelay, zap.NewNop().Sugar())
		return err
	},
}

func init() {
	demoCmd.Flags().Uint64Var(&demoDelay, "delay", 2, "blocks between quorum and the upgrade")
	rootCmd.AddCommand(demoCmd)
}

type demoResult struct {
	Addresses node.Addresses
	Before    common.Address
	After     common.Address
	Height    uint64
}

func runDemo(out io.Writer, delay uint64, logger *zap.SugaredLogger) (*demoResult, error) {
	ledger := chain.NewLedger(chain.NewMemKV(), logger)
	node.RegisterCodes(ledger, delay)

	deployer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	signers, err := devSigners(2)
	if err != nil {
		return nil, err
	}
	s1, s2 := signers[0], signers[1]

	fmt.Fprintln(out, "Step 1: deploy StorageV1, StorageV2, proxy and 2-of-2 multisig")
	addrs, err := node.Bootstrap(ledger, deployer.Address(), []common.Address{s1.Address(), s2.Address()}, 2, logger)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "  StorageV1: %s\n  StorageV2: %s\n  Proxy:     %s\n  MultiSig:  %s\n",
		addrs.StorageV1.Hex(), addrs.StorageV2.Hex(), addrs.Proxy.Hex(), addrs.MultiSig.Hex())

	n, err := node.New(node.Options{
		Ledger: ledger,
		Clock:  util.NewManualClock(time.Now()),
		Logger: logger,
		Domain: crypto.DefaultDomain(),
	})
	if err != nil {
		return nil, err
	}

	res := &demoResult{Addresses: addrs}
	if res.Before, err = proxy.Implementation(ledger, addrs.Proxy); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Step 2: proxy admin is the multisig, implementation %s\n", res.Before.Hex())

	submit := func(s *crypto.Signer, data []byte, nonce uint64) error {
		c, err := tx.Sign(s, crypto.DefaultDomain(), addrs.MultiSig, data, nonce)
		if err != nil {
			return err
		}
		_, err = n.Submit(c)
		return err
	}

	fmt.Fprintln(out, "Step 3: signer 1 proposes StorageV2 and approves, signer 2 approves")
	if err := submit(s1, multisig.PackCreateProposal(addrs.StorageV2), 0); err != nil {
		return nil, err
	}
	if err := submit(s1, multisig.PackApprove(), 1); err != nil {
		return nil, err
	}
	if err := submit(s2, multisig.PackApprove(), 0); err != nil {
		return nil, err
	}
	b, receipts, err := n.ProduceBlock()
	if err != nil {
		return nil, err
	}
	for _, r := range receipts {
		if !r.Succeeded() {
			return nil, fmt.Errorf("transaction %s failed: %w", r.TxHash.Hex(), r.Err)
		}
	}
	p, err := multisig.GetProposal(ledger, addrs.MultiSig, 0)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "  block %d: proposal 0 %s with %d approvals\n", b.Height, p.Status, p.Approvals)

	fmt.Fprintf(out, "Step 4: mine until the upgrade runs (%d block delay)\n", delay)
	for i := uint64(0); i <= delay; i++ {
		b, receipts, err := n.ProduceBlock()
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			if r.Deferred {
				fmt.Fprintf(out, "  block %d: deferred task %s status %d\n", b.Height, r.Task.Hex(), r.Status)
			}
		}
	}

	if res.After, err = proxy.Implementation(ledger, addrs.Proxy); err != nil {
		return nil, err
	}
	res.Height = ledger.Height()
	fmt.Fprintf(out, "Step 5: implementation before %s, after %s\n", res.Before.Hex(), res.After.Hex())

	creator, err := counter.Creator(ledger, addrs.Proxy)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "  creator through proxy: %s (deployer %s)\n", creator.Hex(), deployer.Address().Hex())
	if res.After != addrs.StorageV2 {
		return res, fmt.Errorf("upgrade did not take effect: implementation is %s", res.After.Hex())
	}
	return res, nil
}
