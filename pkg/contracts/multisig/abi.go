package multisig

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

const Name = "MultiSig"

const abiJSON = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"proxy","type":"address"},
		{"name":"signers","type":"address[]"},
		{"name":"confirmationsRequired","type":"uint256"}]},
	{"type":"function","name":"createProposal","stateMutability":"nonpayable",
	 "inputs":[{"name":"implementation","type":"address"}],"outputs":[]},
	{"type":"function","name":"approveProposal","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"revokeApproval","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"approveProposalById","stateMutability":"nonpayable",
	 "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"revokeApprovalById","stateMutability":"nonpayable",
	 "inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getProposal","stateMutability":"view",
	 "inputs":[{"name":"id","type":"uint256"}],
	 "outputs":[{"name":"proposer","type":"address"},{"name":"implementation","type":"address"},
	            {"name":"approvals","type":"uint256"},{"name":"status","type":"uint8"}]},
	{"type":"function","name":"isSigner","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getSigners","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"signerToApprovals","stateMutability":"view",
	 "inputs":[{"name":"signer","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"proxy","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"confirmationsRequired","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"proposalCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"currentProposal","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
		{"name":"id","type":"uint256","indexed":false},{"name":"proposer","type":"address","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[
		{"name":"id","type":"uint256","indexed":false},{"name":"approved","type":"bool","indexed":false}]},
	{"type":"event","name":"ProposalScheduled","anonymous":false,"inputs":[
		{"name":"id","type":"uint256","indexed":false},{"name":"implementation","type":"address","indexed":false},
		{"name":"task","type":"bytes32","indexed":false}]}
]`

var ABI = chain.MustParseABI(abiJSON)

// Status of a proposal. The numbering matches the on-chain enum, where the
// zero value is Accepted.
type Status uint8

const (
	StatusAccepted Status = iota
	StatusPending
	StatusRefused
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusPending:
		return "pending"
	case StatusRefused:
		return "refused"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{StatusAccepted, StatusPending, StatusRefused} {
		if string(text) == v.String() {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown proposal status %q", text)
}

// Proposal is the decoded form of getProposal.
type Proposal struct {
	ID             uint64         `json:"id"`
	Proposer       common.Address `json:"proposer"`
	Implementation common.Address `json:"implementation"`
	Approvals      uint64         `json:"approvals"`
	Status         Status         `json:"status"`
}
