// Package confidential is the boundary to the confidential-computation layer that
// verifies encrypted prediction weights and aggregates them at settlement.
package confidential

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MinWeight = 1
	MaxWeight = 100
)

var (
	ErrInvalidProof   = errors.New("confidential: proof rejected")
	ErrWeightRange    = errors.New("confidential: weight out of range")
	ErrUnknownHandle  = errors.New("confidential: unknown handle")
	ErrGatewayFailure = errors.New("confidential: gateway unavailable")
)

// Ciphertext is an opaque encrypted weight: a handle plus the proof binding it to its context.
type Ciphertext struct {
	Handle common.Hash
	Proof  []byte
}

// Input is a ciphertext together with the ledger context it was produced for.
type Input struct {
	Ciphertext
	Contract    common.Address
	LeagueID    string
	Participant common.Address
}

// Boundary verifies and aggregates confidential weights. Implementations never
// reveal an individual weight except to Decrypt, which the ledger only calls for
// the owner of that weight.
type Boundary interface {
	// Verify accepts the ciphertext only if it is well formed, bound to the
	// contract/league/participant context and encrypts a weight in range.
	Verify(ctx context.Context, in Input) error
	// Decrypt reveals the owner's weight.
	Decrypt(ctx context.Context, in Input) (uint64, error)
	// Aggregate returns the sum of the weights behind the inputs.
	Aggregate(ctx context.Context, ins []Input) (uint64, error)
}
