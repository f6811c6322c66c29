package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain separates signatures between networks.
type EIP712Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

// DefaultDomain is the domain of a local devnet.
func DefaultDomain() EIP712Domain {
	return NewDomain(1337)
}

func NewDomain(chainID int64) EIP712Domain {
	return EIP712Domain{Name: "ProxyGov", Version: "1", ChainID: big.NewInt(chainID)}
}

// CallEIP712 is the typed message signed for every submitted call.
type CallEIP712 struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Nonce uint64
}

var callTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Call": []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "data", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
	},
}

// EIP712Signer hashes, signs and recovers calls under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

// TypedData returns the eth_signTypedData_v4 payload for call.
func (e *EIP712Signer) TypedData(call *CallEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       callTypes,
		PrimaryType: "Call",
		Domain: apitypes.TypedDataDomain{
			Name:    e.domain.Name,
			Version: e.domain.Version,
			ChainId: (*math.HexOrDecimal256)(e.domain.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"from":  call.From.Hex(),
			"to":    call.To.Hex(),
			"data":  hexutil.Encode(call.Data),
			"nonce": new(big.Int).SetUint64(call.Nonce).String(),
		},
	}
}

// HashCall returns keccak256("\x19\x01" || domainSeparator || hashStruct(call)).
func (e *EIP712Signer) HashCall(call *CallEIP712) ([]byte, error) {
	td := e.TypedData(call)
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	message, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}
	raw := append([]byte("\x19\x01"), domainSeparator...)
	raw = append(raw, message...)
	return crypto.Keccak256(raw), nil
}

func (e *EIP712Signer) SignCall(signer *Signer, call *CallEIP712) ([]byte, error) {
	hash, err := e.HashCall(call)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// RecoverCallSigner returns the address that signed call.
func (e *EIP712Signer) RecoverCallSigner(call *CallEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashCall(call)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}
