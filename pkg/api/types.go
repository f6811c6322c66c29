package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// ChainStatus summarizes the sequencer
type ChainStatus struct {
	Height           uint64      `json:"height"`
	LatestBlockHash  common.Hash `json:"latestBlockHash"`
	LatestBlockTime  *time.Time  `json:"latestBlockTime,omitempty"`
	MempoolSize      int         `json:"mempoolSize"`
	ScheduledPending int         `json:"scheduledPending"`
	BlockTimeMs      int64       `json:"blockTimeMs"`
}

// ProxyInfo is the administrative state of a proxy
type ProxyInfo struct {
	Address        common.Address `json:"address"`
	Admin          common.Address `json:"admin"`
	Implementation common.Address `json:"implementation"`
	Code           string         `json:"implementationCode,omitempty"` // registered code name of the implementation
}

// MultiSigInfo is the configuration and progress of a multisig
type MultiSigInfo struct {
	Address               common.Address   `json:"address"`
	Proxy                 common.Address   `json:"proxy"`
	Signers               []common.Address `json:"signers"`
	ConfirmationsRequired uint64           `json:"confirmationsRequired"`
	ProposalCount         uint64           `json:"proposalCount"`
	CurrentProposal       *uint64          `json:"currentProposal,omitempty"` // nil before the first proposal
}

// ProposalInfo is a proposal plus which signers approved it
type ProposalInfo struct {
	*multisig.Proposal
	ApprovedBy []common.Address `json:"approvedBy"`
}

type NonceInfo struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

// ScheduledInfo is a deferred call that has not run yet
type ScheduledInfo struct {
	Task      common.Hash     `json:"task"`
	From      common.Address  `json:"from"`
	Target    common.Address  `json:"target"`
	Input     hexutil.Bytes   `json:"input"`
	Scheduled uint64          `json:"scheduledAt"`
	Due       uint64          `json:"due"`
	UpgradeTo *common.Address `json:"upgradeTo,omitempty"` // set when Input is a proxy upgradeTo
}

// SubmitTxResponse is returned after a signed call entered the mempool
type SubmitTxResponse struct {
	Status string      `json:"status"`
	Hash   common.Hash `json:"hash"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest represents a subscription request
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // "blocks", "events"
}

// BlockUpdate is pushed on the blocks channel
type BlockUpdate struct {
	Type       string        `json:"type"` // "block"
	Height     uint64        `json:"height"`
	Hash       common.Hash   `json:"hash"`
	ParentHash common.Hash   `json:"parentHash"`
	Timestamp  int64         `json:"timestamp"` // Unix milliseconds
	TxHashes   []common.Hash `json:"txs"`
	Deferred   int           `json:"deferred"`
	Failed     int           `json:"failed"`
}

// EventUpdate is pushed on the events channel, one per log
type EventUpdate struct {
	Type  string     `json:"type"` // "event"
	Event string     `json:"event,omitempty"`
	Log   *types.Log `json:"log"`
}
