package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("invalid signature")

// LoginMessage is the EIP-191 personal message a wallet signs to log in. The
// nonce makes every signature good for one login only.
func LoginMessage(wallet common.Address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("Sign this message to authenticate with Predictive League\nWallet: %s\nNonce: %s\nIssued At: %s",
		strings.ToLower(wallet.Hex()), nonce, issuedAt.UTC().Format(time.RFC3339))
}

// VerifyWalletSignature checks that sigHex is a personal_sign signature of
// message by wallet.
func VerifyWalletSignature(wallet common.Address, message, sigHex string) error {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	// wallets return v as 27/28
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != wallet {
		return ErrInvalidSignature
	}
	return nil
}
