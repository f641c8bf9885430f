package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInvalidProof = errors.New("invalid proof reference")
	ErrProofFailed  = errors.New("proof transaction not found or reverted")
)

// ReceiptReader is the slice of ethclient.Client the verifier needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ProofVerifier checks that a proof reference names a mined, successful
// transaction on the configured chain.
type ProofVerifier struct {
	client ReceiptReader
}

func NewProofVerifier(client ReceiptReader) *ProofVerifier {
	return &ProofVerifier{client: client}
}

func (v *ProofVerifier) Verify(ctx context.Context, proofRef string) error {
	raw, err := hexutil.Decode(proofRef)
	if err != nil || len(raw) != common.HashLength {
		return ErrInvalidProof
	}

	receipt, err := v.client.TransactionReceipt(ctx, common.BytesToHash(raw))
	if errors.Is(err, ethereum.NotFound) {
		return ErrProofFailed
	}
	if err != nil {
		return fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrProofFailed
	}
	return nil
}
