package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/proxygov/pkg/chain"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}

func decodeHeight(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// receiptRecord is the stored form of a receipt; the error value itself is
// kept as text.
type receiptRecord struct {
	TxHash          common.Hash
	From            common.Address
	To              common.Address
	ContractAddress common.Address
	BlockNumber     uint64
	Status          uint64
	Return          []byte
	Logs            []*types.Log
	Error           string
	Deferred        bool
	Task            common.Hash
}

func newReceiptRecord(r *chain.Receipt) receiptRecord {
	return receiptRecord{
		TxHash:          r.TxHash,
		From:            r.From,
		To:              r.To,
		ContractAddress: r.ContractAddress,
		BlockNumber:     r.BlockNumber,
		Status:          r.Status,
		Return:          r.Return,
		Logs:            r.Logs,
		Error:           r.Error,
		Deferred:        r.Deferred,
		Task:            r.Task,
	}
}

func (rec receiptRecord) receipt() *chain.Receipt {
	r := &chain.Receipt{
		TxHash:          rec.TxHash,
		From:            rec.From,
		To:              rec.To,
		ContractAddress: rec.ContractAddress,
		BlockNumber:     rec.BlockNumber,
		Status:          rec.Status,
		Return:          hexutil.Bytes(rec.Return),
		Logs:            rec.Logs,
		Error:           rec.Error,
		Deferred:        rec.Deferred,
		Task:            rec.Task,
	}
	if r.Logs == nil {
		r.Logs = []*types.Log{}
	}
	if rec.Error != "" {
		r.Err = errors.New(rec.Error)
	}
	return r
}
