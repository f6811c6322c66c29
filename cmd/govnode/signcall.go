package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/proxygov/pkg/contracts/counter"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/crypto"
	"github.com/uhyunpark/proxygov/pkg/node"
	"github.com/uhyunpark/proxygov/pkg/tx"
)

var (
	signKey       string
	signTo        string
	signCall      string
	signArg       string
	signData      string
	signNonce     uint64
	signSubmitURL string
)

// callTargets names the contract each call is sent to when --to is omitted.
var callTargets = map[string]string{
	"create-proposal": "multisig",
	"approve":         "multisig",
	"revoke":          "multisig",
	"approve-id":      "multisig",
	"revoke-id":       "multisig",
	"change-admin":    "proxy",
	"upgrade-to":      "proxy",
	"initialize":      "proxy",
	"increment":       "proxy",
	"decrement":       "proxy",
}

// buildCallData encodes one of the named governance or storage calls.
func buildCallData(call, arg string) ([]byte, error) {
	address := func() (common.Address, error) {
		if !common.IsHexAddress(arg) {
			return common.Address{}, fmt.Errorf("%s needs an address argument, got %q", call, arg)
		}
		return common.HexToAddress(arg), nil
	}
	id := func() (uint64, error) {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s needs a proposal id argument: %w", call, err)
		}
		return n, nil
	}

	switch call {
	case "create-proposal":
		a, err := address()
		if err != nil {
			return nil, err
		}
		return multisig.PackCreateProposal(a), nil
	case "approve":
		return multisig.PackApprove(), nil
	case "revoke":
		return multisig.PackRevoke(), nil
	case "approve-id":
		n, err := id()
		if err != nil {
			return nil, err
		}
		return multisig.PackApproveByID(n), nil
	case "revoke-id":
		n, err := id()
		if err != nil {
			return nil, err
		}
		return multisig.PackRevokeByID(n), nil
	case "change-admin":
		a, err := address()
		if err != nil {
			return nil, err
		}
		return proxy.PackChangeAdmin(a), nil
	case "upgrade-to":
		a, err := address()
		if err != nil {
			return nil, err
		}
		return proxy.PackUpgradeTo(a), nil
	case "initialize", "increment", "decrement":
		return counter.Pack(call), nil
	}
	return nil, fmt.Errorf("unknown call %q", call)
}

func resolveTarget(call, addressesFile string) (common.Address, error) {
	if signTo != "" {
		if !common.IsHexAddress(signTo) {
			return common.Address{}, fmt.Errorf("invalid --to address %q", signTo)
		}
		return common.HexToAddress(signTo), nil
	}
	kind, ok := callTargets[call]
	if !ok {
		return common.Address{}, fmt.Errorf("--to is required for call %q", call)
	}
	a, err := node.LoadAddresses(addressesFile)
	if err != nil {
		return common.Address{}, fmt.Errorf("--to not set and address book unreadable: %w", err)
	}
	if kind == "proxy" {
		return a.Proxy, nil
	}
	return a.MultiSig, nil
}

func submitCall(baseURL string, c *tx.SignedCall) (string, error) {
	body, err := c.Serialize()
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/api/v1/tx", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit failed: %s: %s", resp.Status, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

var signCallCmd = &cobra.Command{
	Use:   "sign-call",
	Short: "Sign a governance call as EIP-712 typed data and optionally submit it",
	Example: `  govnode sign-call --key $SIGNER1 --call create-proposal --arg 0xStorageV2 --nonce 0
  govnode sign-call --key $SIGNER2 --call approve --nonce 0 --submit http://localhost:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		signer, err := crypto.FromPrivateKeyHex(signKey)
		if err != nil {
			return err
		}

		var data []byte
		if signData != "" {
			if data, err = hexutil.Decode(signData); err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}
		} else if data, err = buildCallData(signCall, signArg); err != nil {
			return err
		}
		to, err := resolveTarget(signCall, cfg.Node.AddressesFile)
		if err != nil {
			return err
		}

		c, err := tx.Sign(signer, crypto.NewDomain(cfg.Chain.ID), to, data, signNonce)
		if err != nil {
			return err
		}
		if err := tx.NewVerifier(crypto.NewDomain(cfg.Chain.ID)).Verify(c); err != nil {
			return fmt.Errorf("self-check failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if signSubmitURL == "" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		}
		resp, err := submitCall(signSubmitURL, c)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, strings.TrimSpace(resp))
		return nil
	},
}

func init() {
	f := signCallCmd.Flags()
	f.StringVar(&signKey, "key", "", "hex private key of the signer")
	f.StringVar(&signTo, "to", "", "target contract (default: from the address book)")
	f.StringVar(&signCall, "call", "", "create-proposal, approve, revoke, approve-id, revoke-id, change-admin, upgrade-to, initialize, increment, decrement")
	f.StringVar(&signArg, "arg", "", "call argument: an address or a proposal id")
	f.StringVar(&signData, "data", "", "raw hex calldata, overrides --call")
	f.Uint64Var(&signNonce, "nonce", 0, "sender nonce")
	f.StringVar(&signSubmitURL, "submit", "", "API base URL to submit the signed call to")
	_ = signCallCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(signCallCmd)
}
