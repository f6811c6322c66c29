// Package multisig implements the quorum engine that governs a proxy: a
// fixed signer set approves upgrade proposals, and the proposal that reaches
// the required confirmations schedules upgradeTo on the proxy after a delay.
package multisig

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/contracts/schedule"
	"github.com/uhyunpark/proxygov/pkg/slots"
)

// Storage layout.
var (
	slotProxy     = slots.Index(0)
	slotRequired  = slots.Index(1)
	slotSigners   = slots.Index(2) // address[]
	slotIsSigner  = slots.Index(3) // mapping(address => bool)
	slotProposals = slots.Index(4) // Proposal[]
	slotApprovals = slots.Index(5) // mapping(address => mapping(uint256 => bool))
	slotCurrent   = slots.Index(6)
)

// Proposal struct field offsets.
const (
	fieldProposer uint64 = iota
	fieldTarget
	fieldApprovals
	fieldStatus
	proposalWidth
)

// MultiSig is the quorum engine code. Accepted proposals are handed to the
// Scheduler with a fixed delay in blocks.
type MultiSig struct {
	scheduler schedule.Scheduler
	delay     uint64
}

// New returns multisig code that schedules accepted upgrades delayBlocks ahead.
func New(scheduler schedule.Scheduler, delayBlocks uint64) *MultiSig {
	return &MultiSig{scheduler: scheduler, delay: delayBlocks}
}

// Construct records the proxy, the signer set and the approval threshold.
func (m *MultiSig) Construct(env *chain.Env, args []byte) error {
	vals, err := ABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return fmt.Errorf("%w: constructor: %v", chain.ErrInvalidArgument, err)
	}
	proxyAddr := vals[0].(common.Address)
	signers := vals[1].([]common.Address)
	required := vals[2].(*big.Int)

	if proxyAddr == (common.Address{}) {
		return fmt.Errorf("%w: zero proxy", chain.ErrInvalidArgument)
	}
	if required.Sign() < 1 || required.Cmp(big.NewInt(int64(len(signers)))) > 0 {
		return fmt.Errorf("%w: confirmations required %s not in [1, %d]", chain.ErrInvalidArgument, required, len(signers))
	}

	env.SStore(slotProxy, slots.AddressKey(proxyAddr))
	env.SStore(slotRequired, common.BigToHash(required))
	for i, s := range signers {
		if s == (common.Address{}) {
			return fmt.Errorf("%w: zero signer", chain.ErrInvalidArgument)
		}
		if isSigner(env, s) {
			return fmt.Errorf("%w: duplicate signer %s", chain.ErrInvalidArgument, s.Hex())
		}
		env.SStore(slots.Mapping(slotIsSigner, slots.AddressKey(s)), slots.FromBool(true))
		env.SStore(slots.Array(slotSigners, uint64(i), 1), slots.AddressKey(s))
	}
	env.SStore(slotSigners, slots.Uint64Key(uint64(len(signers))))
	return nil
}

// Call dispatches a multisig method by selector.
func (m *MultiSig) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := chain.DecodeCall(&ABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "createProposal":
		return nil, m.createProposal(env, args[0].(common.Address))
	case "approveProposal":
		id, err := current(env)
		if err != nil {
			return nil, err
		}
		return nil, m.approve(env, id)
	case "revokeApproval":
		id, err := current(env)
		if err != nil {
			return nil, err
		}
		return nil, m.revoke(env, id)
	case "approveProposalById":
		id, err := proposalID(env, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return nil, m.approve(env, id)
	case "revokeApprovalById":
		id, err := proposalID(env, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return nil, m.revoke(env, id)
	}
	return query(env, method, args)
}

func (m *MultiSig) createProposal(env *chain.Env, target common.Address) error {
	if err := requireSigner(env); err != nil {
		return err
	}
	if target == (common.Address{}) {
		return fmt.Errorf("%w: zero implementation", chain.ErrInvalidArgument)
	}

	id := proposalCount(env)
	base := proposalBase(id)
	env.SStore(slots.Offset(base, fieldProposer), slots.AddressKey(env.Caller()))
	env.SStore(slots.Offset(base, fieldTarget), slots.AddressKey(target))
	env.SStore(slots.Offset(base, fieldApprovals), common.Hash{})
	env.SStore(slots.Offset(base, fieldStatus), slots.Uint64Key(uint64(StatusPending)))
	env.SStore(slotProposals, slots.Uint64Key(id+1))
	env.SStore(slotCurrent, slots.Uint64Key(id))

	return chain.EmitEvent(env, &ABI, "ProposalCreated", nil, new(big.Int).SetUint64(id), env.Caller())
}

func (m *MultiSig) approve(env *chain.Env, id uint64) error {
	if err := requireSigner(env); err != nil {
		return err
	}
	base := proposalBase(id)
	if err := requirePending(env, base, id); err != nil {
		return err
	}
	flag := approvalSlot(env.Caller(), id)
	if slots.ToBool(env.SLoad(flag)) {
		return fmt.Errorf("%w: %s already approved proposal %d", chain.ErrStateConflict, env.Caller().Hex(), id)
	}

	env.SStore(flag, slots.FromBool(true))
	approvals := slots.ToUint64(env.SLoad(slots.Offset(base, fieldApprovals))) + 1
	env.SStore(slots.Offset(base, fieldApprovals), slots.Uint64Key(approvals))
	if err := chain.EmitEvent(env, &ABI, "Approval", nil, new(big.Int).SetUint64(id), true); err != nil {
		return err
	}

	if approvals != slots.ToUint64(env.SLoad(slotRequired)) {
		return nil
	}
	env.SStore(slots.Offset(base, fieldStatus), slots.Uint64Key(uint64(StatusAccepted)))

	target := slots.ToAddress(env.SLoad(slots.Offset(base, fieldTarget)))
	proxyAddr := slots.ToAddress(env.SLoad(slotProxy))
	task, err := m.scheduler.ScheduleCall(env, proxyAddr, proxy.PackUpgradeTo(target), m.delay)
	if err != nil {
		return fmt.Errorf("schedule upgrade for proposal %d: %w", id, err)
	}
	return chain.EmitEvent(env, &ABI, "ProposalScheduled", nil, new(big.Int).SetUint64(id), target, [32]byte(task))
}

func (m *MultiSig) revoke(env *chain.Env, id uint64) error {
	if err := requireSigner(env); err != nil {
		return err
	}
	base := proposalBase(id)
	if err := requirePending(env, base, id); err != nil {
		return err
	}
	flag := approvalSlot(env.Caller(), id)
	if !slots.ToBool(env.SLoad(flag)) {
		return fmt.Errorf("%w: %s has not approved proposal %d", chain.ErrStateConflict, env.Caller().Hex(), id)
	}

	env.SStore(flag, common.Hash{})
	approvals := slots.ToUint64(env.SLoad(slots.Offset(base, fieldApprovals))) - 1
	env.SStore(slots.Offset(base, fieldApprovals), slots.Uint64Key(approvals))
	return chain.EmitEvent(env, &ABI, "Approval", nil, new(big.Int).SetUint64(id), false)
}

func query(env *chain.Env, method *abi.Method, args []interface{}) ([]byte, error) {
	switch method.Name {
	case "getProposal":
		id, err := proposalID(env, args[0].(*big.Int))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chain.ErrInvalidArgument, err)
		}
		base := proposalBase(id)
		return method.Outputs.Pack(
			slots.ToAddress(env.SLoad(slots.Offset(base, fieldProposer))),
			slots.ToAddress(env.SLoad(slots.Offset(base, fieldTarget))),
			env.SLoadBig(slots.Offset(base, fieldApprovals)),
			uint8(slots.ToUint64(env.SLoad(slots.Offset(base, fieldStatus)))),
		)
	case "isSigner":
		return method.Outputs.Pack(isSigner(env, args[0].(common.Address)))
	case "getSigners":
		n := slots.ToUint64(env.SLoad(slotSigners))
		signers := make([]common.Address, n)
		for i := range signers {
			signers[i] = slots.ToAddress(env.SLoad(slots.Array(slotSigners, uint64(i), 1)))
		}
		return method.Outputs.Pack(signers)
	case "signerToApprovals":
		id := args[1].(*big.Int)
		if !id.IsUint64() {
			return method.Outputs.Pack(false)
		}
		return method.Outputs.Pack(slots.ToBool(env.SLoad(approvalSlot(args[0].(common.Address), id.Uint64()))))
	case "proxy":
		return method.Outputs.Pack(slots.ToAddress(env.SLoad(slotProxy)))
	case "confirmationsRequired":
		return method.Outputs.Pack(env.SLoadBig(slotRequired))
	case "proposalCount":
		return method.Outputs.Pack(env.SLoadBig(slotProposals))
	case "currentProposal":
		return method.Outputs.Pack(env.SLoadBig(slotCurrent))
	}
	return nil, fmt.Errorf("%w: %s", chain.ErrUnknownSelector, method.Name)
}

func isSigner(env *chain.Env, a common.Address) bool {
	return slots.ToBool(env.SLoad(slots.Mapping(slotIsSigner, slots.AddressKey(a))))
}

func requireSigner(env *chain.Env) error {
	if !isSigner(env, env.Caller()) {
		return fmt.Errorf("%w: %s is not a signer", chain.ErrUnauthorized, env.Caller().Hex())
	}
	return nil
}

func requirePending(env *chain.Env, base common.Hash, id uint64) error {
	status := Status(slots.ToUint64(env.SLoad(slots.Offset(base, fieldStatus))))
	if status != StatusPending {
		return fmt.Errorf("%w: proposal %d is %s", chain.ErrStateConflict, id, status)
	}
	return nil
}

func proposalCount(env *chain.Env) uint64 {
	return slots.ToUint64(env.SLoad(slotProposals))
}

func proposalBase(id uint64) common.Hash {
	return slots.Array(slotProposals, id, proposalWidth)
}

func approvalSlot(signer common.Address, id uint64) common.Hash {
	return slots.Mapping(slots.Mapping(slotApprovals, slots.AddressKey(signer)), slots.Uint64Key(id))
}

func current(env *chain.Env) (uint64, error) {
	if proposalCount(env) == 0 {
		return 0, fmt.Errorf("%w: no proposal created", chain.ErrStateConflict)
	}
	return slots.ToUint64(env.SLoad(slotCurrent)), nil
}

func proposalID(env *chain.Env, id *big.Int) (uint64, error) {
	if !id.IsUint64() || id.Uint64() >= proposalCount(env) {
		return 0, fmt.Errorf("%w: unknown proposal %s", chain.ErrStateConflict, id)
	}
	return id.Uint64(), nil
}
