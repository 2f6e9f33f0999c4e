package models

import (
	"time"
)

// LoginNonce is the pending sign-in challenge of a wallet. It is single use.
type LoginNonce struct {
	WalletAddress string    `gorm:"primaryKey;size:42" json:"wallet_address"`
	Nonce         string    `gorm:"size:64;not null" json:"nonce"`
	IssuedAt      time.Time `gorm:"not null" json:"issued_at"`
}

func (LoginNonce) TableName() string {
	return "login_nonces"
}
