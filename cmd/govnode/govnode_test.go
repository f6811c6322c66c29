package main

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
)

func TestRunDemoUpgradesProxy(t *testing.T) {
	var out bytes.Buffer
	res, err := runDemo(&out, 2, nil)
	require.NoError(t, err)
	require.Equal(t, res.Addresses.StorageV1, res.Before)
	require.Equal(t, res.Addresses.StorageV2, res.After)
	require.Equal(t, uint64(4), res.Height)
	require.Contains(t, out.String(), "deferred task")
}

func TestBuildCallData(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000AA")

	data, err := buildCallData("create-proposal", target.Hex())
	require.NoError(t, err)
	require.Equal(t, multisig.PackCreateProposal(target), data)

	data, err = buildCallData("approve-id", "3")
	require.NoError(t, err)
	require.Equal(t, multisig.PackApproveByID(3), data)

	data, err = buildCallData("upgrade-to", target.Hex())
	require.NoError(t, err)
	got, ok := proxy.DecodeUpgradeTo(data)
	require.True(t, ok)
	require.Equal(t, target, got)

	_, err = buildCallData("create-proposal", "not-an-address")
	require.Error(t, err)
	_, err = buildCallData("revoke-id", "x")
	require.Error(t, err)
	_, err = buildCallData("selfdestruct", "")
	require.Error(t, err)
}
