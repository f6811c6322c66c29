// Package tx defines the signed call envelope accepted by the node.
package tx

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/proxygov/pkg/crypto"
)

var (
	ErrMalformed        = errors.New("malformed transaction")
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignedCall is a call authorized by an EIP-712 signature over
// Call(from, to, data, nonce).
type SignedCall struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Data      hexutil.Bytes  `json:"data"`
	Nonce     uint64         `json:"nonce"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Sign builds a SignedCall from signer's account.
func Sign(signer *crypto.Signer, domain crypto.EIP712Domain, to common.Address, data []byte, nonce uint64) (*SignedCall, error) {
	call := &SignedCall{From: signer.Address(), To: to, Data: data, Nonce: nonce}
	sig, err := crypto.NewEIP712Signer(domain).SignCall(signer, call.typed())
	if err != nil {
		return nil, fmt.Errorf("sign call: %w", err)
	}
	call.Signature = sig
	return call, nil
}

func (c *SignedCall) typed() *crypto.CallEIP712 {
	return &crypto.CallEIP712{From: c.From, To: c.To, Data: c.Data, Nonce: c.Nonce}
}

// Hash identifies the call: keccak256 of its RLP encoding, signature
// included.
func (c *SignedCall) Hash() common.Hash {
	enc, _ := rlp.EncodeToBytes([]interface{}{c.From, c.To, []byte(c.Data), c.Nonce, []byte(c.Signature)})
	return ethcrypto.Keccak256Hash(enc)
}

// Validate checks the envelope's structure, not its signature.
func (c *SignedCall) Validate() error {
	if c.From == (common.Address{}) {
		return fmt.Errorf("%w: missing from", ErrMalformed)
	}
	if c.To == (common.Address{}) {
		return fmt.Errorf("%w: missing to", ErrMalformed)
	}
	if len(c.Signature) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrMalformed, ethcrypto.SignatureLength, len(c.Signature))
	}
	return nil
}

func (c *SignedCall) Serialize() ([]byte, error) {
	return json.Marshal(c)
}

// Deserialize parses and validates a JSON envelope.
func Deserialize(data []byte) (*SignedCall, error) {
	var c SignedCall
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Verifier checks call signatures under one EIP-712 domain.
type Verifier struct {
	signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{signer: crypto.NewEIP712Signer(domain)}
}

// Verify returns nil when c is well formed and signed by c.From.
func (v *Verifier) Verify(c *SignedCall) error {
	if err := c.Validate(); err != nil {
		return err
	}
	recovered, err := v.signer.RecoverCallSigner(c.typed(), c.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != c.From {
		return fmt.Errorf("%w: signed by %s, not %s", ErrInvalidSignature, recovered.Hex(), c.From.Hex())
	}
	return nil
}
