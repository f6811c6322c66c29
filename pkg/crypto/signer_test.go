package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
	if len(signer.PrivateKeyHex()) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(signer.PrivateKeyHex()))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex, " " + privHex + "\n"} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("upgrade"))

	sig, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(sig) != 65 {
		t.Errorf("signature length = %d, want 65", len(sig))
	}
	if !VerifySignature(signer.Address(), hash, sig) {
		t.Error("signature verification failed")
	}
	if VerifySignature(common.HexToAddress("0x01"), hash, sig) {
		t.Error("verification should fail for wrong address")
	}

	// wallets emit V as 27/28
	walletSig := append([]byte(nil), sig...)
	walletSig[64] += 27
	recovered, err := RecoverAddress(hash, walletSig)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error for non-32-byte hash")
	}
}

func TestCallSignature(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	call := &CallEIP712{
		From:  signer.Address(),
		To:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Data:  []byte{0xde, 0xad, 0xbe, 0xef},
		Nonce: 3,
	}

	sig, err := e.SignCall(signer, call)
	if err != nil {
		t.Fatalf("failed to sign call: %v", err)
	}
	recovered, err := e.RecoverCallSigner(call, sig)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	tampered := *call
	tampered.Nonce = 4
	recovered, err = e.RecoverCallSigner(&tampered, sig)
	if err == nil && recovered == signer.Address() {
		t.Error("signature should not cover a different nonce")
	}

	other := NewEIP712Signer(NewDomain(1))
	recovered, err = other.RecoverCallSigner(call, sig)
	if err == nil && recovered == signer.Address() {
		t.Error("signature should not verify under another chain id")
	}
}
