package models

import (
	"time"
)

// PushSentinel marks a league settled with no winning outcome; every entry is refunded.
const PushSentinel uint8 = 255

// League represents a prediction league
type League struct {
	ID      string `gorm:"primaryKey;size:64" json:"id"`
	Seq     uint64 `gorm:"uniqueIndex;not null" json:"seq"`
	Title   string `gorm:"size:200;not null" json:"title"`
	Creator string `gorm:"size:42;index;not null" json:"creator"`

	Options []LeagueOption `gorm:"foreignKey:LeagueID" json:"options"`

	EntryFee Wei       `gorm:"type:varchar(78);not null" json:"entry_fee"`
	LockTime time.Time `gorm:"index;not null" json:"lock_time"`

	// PrizePool is the sum of entry fees minus everything paid out.
	PrizePool  Wei    `gorm:"type:varchar(78);not null" json:"prize_pool"`
	BondsHeld  Wei    `gorm:"type:varchar(78);not null" json:"bonds_held"`
	EntryCount uint64 `gorm:"not null;default:0" json:"entry_count"`

	Cancelled     bool  `gorm:"not null;default:false" json:"cancelled"`
	Settled       bool  `gorm:"not null;default:false" json:"settled"`
	WinningOption uint8 `gorm:"not null;default:0" json:"winning_option"`

	// Settlement snapshot used for proportional payouts.
	SettledPool   Wei    `gorm:"type:varchar(78);not null" json:"settled_pool"`
	WinningWeight uint64 `gorm:"not null;default:0" json:"-"`
	ClaimedWeight uint64 `gorm:"not null;default:0" json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// TableName specifies the table name for League model
func (League) TableName() string {
	return "leagues"
}

// IsPush reports whether the league settled without a winner.
func (l *League) IsPush() bool {
	return l.Settled && l.WinningOption == PushSentinel
}

// Open reports whether the league is neither cancelled nor settled.
func (l *League) Open() bool {
	return !l.Cancelled && !l.Settled
}

// LeagueOption is one named outcome of a league with its public pick count
type LeagueOption struct {
	LeagueID string `gorm:"primaryKey;size:64" json:"-"`
	OptionID uint8  `gorm:"primaryKey;autoIncrement:false" json:"option_id"`
	Label    string `gorm:"size:100;not null" json:"label"`
	Picks    uint64 `gorm:"not null;default:0" json:"picks"`
}

// TableName specifies the table name for LeagueOption model
func (LeagueOption) TableName() string {
	return "league_options"
}

// Entry is a participant's confidential prediction in a league
type Entry struct {
	LeagueID    string `gorm:"primaryKey;size:64" json:"league_id"`
	Participant string `gorm:"primaryKey;size:42" json:"participant"`
	OptionID    uint8  `gorm:"not null;index" json:"option_id"`

	// WeightHandle is the opaque ciphertext handle; Proof binds it to this entry.
	WeightHandle string `gorm:"size:66;not null" json:"weight_handle"`
	Proof        []byte `json:"-"`

	Claimed   bool       `gorm:"not null;default:false" json:"claimed"`
	Payout    Wei        `gorm:"type:varchar(78);not null" json:"payout"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// TableName specifies the table name for Entry model
func (Entry) TableName() string {
	return "league_entries"
}

// Proposal is the single optimistic result proposal of a league
type Proposal struct {
	LeagueID       string     `gorm:"primaryKey;size:64" json:"league_id"`
	Proposer       string     `gorm:"size:42;not null" json:"proposer"`
	ProposedOption uint8      `gorm:"not null" json:"proposed_option"`
	BondAmount     Wei        `gorm:"type:varchar(78);not null" json:"bond_amount"`
	ProposeTime    time.Time  `gorm:"not null" json:"propose_time"`
	Challenged     bool       `gorm:"not null;default:false" json:"challenged"`
	Finalized      bool       `gorm:"not null;default:false;index" json:"finalized"`
	Arbitrated     bool       `gorm:"not null;default:false" json:"arbitrated"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
}

// TableName specifies the table name for Proposal model
func (Proposal) TableName() string {
	return "league_proposals"
}

// Challenge disputes a proposal; challenges keep submission order by ID
type Challenge struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	LeagueID      string    `gorm:"size:64;index;not null" json:"league_id"`
	Challenger    string    `gorm:"size:42;not null" json:"challenger"`
	CorrectOption uint8     `gorm:"not null" json:"correct_option"`
	BondAmount    Wei       `gorm:"type:varchar(78);not null" json:"bond_amount"`
	Time          time.Time `gorm:"not null" json:"time"`
}

// TableName specifies the table name for Challenge model
func (Challenge) TableName() string {
	return "league_challenges"
}
