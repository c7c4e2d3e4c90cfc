package solana

import (
	"encoding/json"
	"errors"
)

var ErrInvalidTransfer = errors.New("invalid transfer instruction")

// TransferInstruction is a single lamport transfer from the escrow account to
// a recipient wallet. Reference carries the settlement id so the encoded
// message is unique per settlement attempt.
type TransferInstruction struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  int64  `json:"lamports"`
	Reference string `json:"reference"`
}

// Encode produces the canonical signing message for the instruction.
func (ix TransferInstruction) Encode() ([]byte, error) {
	if ix.From == "" || ix.To == "" || ix.Reference == "" {
		return nil, ErrInvalidTransfer
	}
	if ix.Lamports <= 0 {
		return nil, ErrInvalidTransfer
	}
	return json.Marshal(ix)
}

// SignedTransfer is a transfer instruction with a detached base58 signature
// from the escrow key, ready for gateway submission.
type SignedTransfer struct {
	Instruction TransferInstruction `json:"instruction"`
	Signature   string              `json:"signature"`
}

// SignTransfer encodes and signs an instruction with the escrow keypair.
func SignTransfer(kp *Keypair, ix TransferInstruction) (*SignedTransfer, error) {
	msg, err := ix.Encode()
	if err != nil {
		return nil, err
	}
	return &SignedTransfer{
		Instruction: ix,
		Signature:   kp.SignBase58(msg),
	}, nil
}
