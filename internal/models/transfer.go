package models

import (
	"time"

	"github.com/google/uuid"
)

type TransferKind string

const (
	TransferKindEntryFee      TransferKind = "ENTRY_FEE"
	TransferKindProposalBond  TransferKind = "PROPOSAL_BOND"
	TransferKindChallengeBond TransferKind = "CHALLENGE_BOND"
	TransferKindCancelFee     TransferKind = "CANCEL_FEE"
	TransferKindPrize         TransferKind = "PRIZE"
	TransferKindRefund        TransferKind = "REFUND"
	TransferKindBondReturn    TransferKind = "BOND_RETURN"
	TransferKindBondReward    TransferKind = "BOND_REWARD"
	TransferKindTreasury      TransferKind = "TREASURY"
)

type TransferDirection string

const (
	TransferIn  TransferDirection = "IN"
	TransferOut TransferDirection = "OUT"
)

// Transfer is one fund movement into or out of a league's custody.
// Seq orders a league's journal and is assigned by the store.
type Transfer struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	LeagueID  string            `gorm:"size:64;not null;uniqueIndex:idx_transfer_journal,priority:1" json:"league_id"`
	Seq       uint64            `gorm:"not null;uniqueIndex:idx_transfer_journal,priority:2" json:"seq"`
	Account   string            `gorm:"size:42;not null;index" json:"account"`
	Kind      TransferKind      `gorm:"size:32;not null" json:"kind"`
	Direction TransferDirection `gorm:"size:8;not null" json:"direction"`
	Amount    Wei               `gorm:"type:varchar(78);not null" json:"amount"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Transfer model
func (Transfer) TableName() string {
	return "league_transfers"
}

// AffectsPool reports whether the transfer moves prize pool funds rather than bonds or fees.
func (t *Transfer) AffectsPool() bool {
	switch t.Kind {
	case TransferKindEntryFee, TransferKindPrize, TransferKindRefund:
		return true
	}
	return false
}
