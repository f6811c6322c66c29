package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SchedulerAddress hosts the built-in deferred-call scheduler.
var SchedulerAddress = common.HexToAddress("0x0000000000000000000000000000000000000404")

// MaxScheduleDelay bounds how far ahead a call may be scheduled.
const MaxScheduleDelay = 1 << 32

const schedulerABIJSON = `[
	{"type":"function","name":"scheduleCall","stateMutability":"nonpayable",
	 "inputs":[{"name":"target","type":"address"},{"name":"minDelay","type":"uint256"},{"name":"input","type":"bytes"}],
	 "outputs":[{"name":"task","type":"bytes32"}]},
	{"type":"event","name":"CallScheduled","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},{"name":"target","type":"address","indexed":true},
	           {"name":"task","type":"bytes32","indexed":false},{"name":"due","type":"uint256","indexed":false}]}
]`

// SchedulerABI is the interface of the scheduler at SchedulerAddress.
var SchedulerABI = MustParseABI(schedulerABIJSON)

// schedulerPrecompile registers calls that the host runs once their delay
// has elapsed. The registering account becomes the caller of the deferred
// call.
type schedulerPrecompile struct{}

func (schedulerPrecompile) Construct(*Env, []byte) error { return ErrNotDeployable }

func (schedulerPrecompile) Call(env *Env, input []byte) ([]byte, error) {
	method, args, err := DecodeCall(&SchedulerABI, input)
	if err != nil {
		return nil, err
	}
	if method.Name != "scheduleCall" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, method.Name)
	}
	target := args[0].(common.Address)
	delay := args[1].(*big.Int)
	data := args[2].([]byte)

	if !delay.IsUint64() || delay.Uint64() > MaxScheduleDelay {
		return nil, fmt.Errorf("%w: delay %s out of range", ErrInvalidArgument, delay)
	}
	if target == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero target", ErrInvalidArgument)
	}

	due := env.height + delay.Uint64()
	sc, err := env.state.schedule(env.caller, target, data, env.height, due)
	if err != nil {
		return nil, err
	}
	err = EmitEvent(env, &SchedulerABI, "CallScheduled",
		[]common.Hash{common.BytesToHash(env.caller.Bytes()), common.BytesToHash(target.Bytes())},
		sc.Task, new(big.Int).SetUint64(due))
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(sc.Task)
}
