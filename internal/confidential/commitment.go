package confidential

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	saltLength  = 32
	proofLength = 1 + saltLength
)

// CommitmentBoundary is a development backend. A handle is a keccak256 commitment
// to the weight and its context; the proof is the opening (weight byte || 32-byte salt).
// It keeps no state, so entries stay verifiable across restarts.
type CommitmentBoundary struct{}

func NewCommitmentBoundary() *CommitmentBoundary {
	return &CommitmentBoundary{}
}

// Seal produces the ciphertext a client would submit for weight.
func Seal(contract common.Address, leagueID string, participant common.Address, weight uint8, salt [32]byte) (Ciphertext, error) {
	if weight < MinWeight || weight > MaxWeight {
		return Ciphertext{}, ErrWeightRange
	}
	proof := make([]byte, 0, proofLength)
	proof = append(proof, weight)
	proof = append(proof, salt[:]...)
	return Ciphertext{
		Handle: commitment(contract, leagueID, participant, weight, salt[:]),
		Proof:  proof,
	}, nil
}

// SealRandom is Seal with a fresh random salt.
func SealRandom(contract common.Address, leagueID string, participant common.Address, weight uint8) (Ciphertext, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return Ciphertext{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return Seal(contract, leagueID, participant, weight, salt)
}

func commitment(contract common.Address, leagueID string, participant common.Address, weight uint8, salt []byte) common.Hash {
	return crypto.Keccak256Hash(
		contract.Bytes(),
		[]byte(leagueID),
		[]byte{0},
		participant.Bytes(),
		[]byte{weight},
		salt,
	)
}

func (b *CommitmentBoundary) open(in Input) (uint64, error) {
	if len(in.Proof) != proofLength {
		return 0, ErrInvalidProof
	}
	weight := in.Proof[0]
	if commitment(in.Contract, in.LeagueID, in.Participant, weight, in.Proof[1:]) != in.Handle {
		return 0, ErrInvalidProof
	}
	if weight < MinWeight || weight > MaxWeight {
		return 0, ErrWeightRange
	}
	return uint64(weight), nil
}

func (b *CommitmentBoundary) Verify(ctx context.Context, in Input) error {
	_, err := b.open(in)
	return err
}

func (b *CommitmentBoundary) Decrypt(ctx context.Context, in Input) (uint64, error) {
	return b.open(in)
}

func (b *CommitmentBoundary) Aggregate(ctx context.Context, ins []Input) (uint64, error) {
	var total uint64
	for _, in := range ins {
		w, err := b.open(in)
		if err != nil {
			return 0, fmt.Errorf("aggregate %s: %w", in.Handle.Hex(), err)
		}
		total += w
	}
	return total, nil
}
