package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt records the outcome of a transaction or a deferred call.
type Receipt struct {
	TxHash          common.Hash    `json:"txHash"`
	From            common.Address `json:"from"`
	To              common.Address `json:"to"`
	ContractAddress common.Address `json:"contractAddress,omitempty"`
	BlockNumber     uint64         `json:"blockNumber"`
	Status          uint64         `json:"status"`
	Return          hexutil.Bytes  `json:"return,omitempty"`
	Logs            []*types.Log   `json:"logs"`
	Error           string         `json:"error,omitempty"`

	// Deferred receipts come from scheduled calls run by the host.
	Deferred bool        `json:"deferred"`
	Task     common.Hash `json:"task,omitempty"`

	Err error `json:"-"`
}

func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

func newReceipt(from, to common.Address, height uint64, ret []byte, logs []*types.Log, err error) *Receipt {
	r := &Receipt{
		From:        from,
		To:          to,
		BlockNumber: height,
		Status:      types.ReceiptStatusSuccessful,
		Return:      ret,
		Logs:        logs,
	}
	if r.Logs == nil {
		r.Logs = []*types.Log{}
	}
	if err != nil {
		r.Status = types.ReceiptStatusFailed
		r.Err = err
		r.Error = err.Error()
		r.Return = nil
		r.Logs = []*types.Log{}
	}
	return r
}

// NewFailedReceipt records a transaction the ledger refused to execute.
func NewFailedReceipt(from, to common.Address, height uint64, err error) *Receipt {
	return newReceipt(from, to, height, nil, nil, err)
}
