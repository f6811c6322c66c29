package multisig

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

// ConstructorArgs encodes (proxy, signers, confirmationsRequired).
func ConstructorArgs(proxyAddr common.Address, signers []common.Address, required uint64) ([]byte, error) {
	return ABI.Pack("", proxyAddr, signers, new(big.Int).SetUint64(required))
}

func PackCreateProposal(implementation common.Address) []byte {
	return mustPack("createProposal", implementation)
}

func PackApprove() []byte { return mustPack("approveProposal") }

func PackRevoke() []byte { return mustPack("revokeApproval") }

func PackApproveByID(id uint64) []byte {
	return mustPack("approveProposalById", new(big.Int).SetUint64(id))
}

func PackRevokeByID(id uint64) []byte {
	return mustPack("revokeApprovalById", new(big.Int).SetUint64(id))
}

func mustPack(method string, args ...interface{}) []byte {
	input, err := ABI.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return input
}

func call(v chain.Viewer, at common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := v.View(common.Address{}, at, input)
	if err != nil {
		return nil, err
	}
	return ABI.Unpack(method, ret)
}

// GetProposal reads proposal id from the multisig at addr.
func GetProposal(v chain.Viewer, addr common.Address, id uint64) (*Proposal, error) {
	out, err := call(v, addr, "getProposal", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return &Proposal{
		ID:             id,
		Proposer:       out[0].(common.Address),
		Implementation: out[1].(common.Address),
		Approvals:      out[2].(*big.Int).Uint64(),
		Status:         Status(out[3].(uint8)),
	}, nil
}

func IsSigner(v chain.Viewer, addr, account common.Address) (bool, error) {
	out, err := call(v, addr, "isSigner", account)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func Signers(v chain.Viewer, addr common.Address) ([]common.Address, error) {
	out, err := call(v, addr, "getSigners")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

// HasApproved reads signerToApprovals(signer, id).
func HasApproved(v chain.Viewer, addr, signer common.Address, id uint64) (bool, error) {
	out, err := call(v, addr, "signerToApprovals", signer, new(big.Int).SetUint64(id))
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func Proxy(v chain.Viewer, addr common.Address) (common.Address, error) {
	out, err := call(v, addr, "proxy")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func ConfirmationsRequired(v chain.Viewer, addr common.Address) (uint64, error) {
	return readUint(v, addr, "confirmationsRequired")
}

func ProposalCount(v chain.Viewer, addr common.Address) (uint64, error) {
	return readUint(v, addr, "proposalCount")
}

func CurrentProposal(v chain.Viewer, addr common.Address) (uint64, error) {
	return readUint(v, addr, "currentProposal")
}

func readUint(v chain.Viewer, addr common.Address, method string) (uint64, error) {
	out, err := call(v, addr, method)
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}
