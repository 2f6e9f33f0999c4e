package models

import (
	"time"
)

type EventType string

const (
	EventLeagueCreated    EventType = "LeagueCreated"
	EventEntrySubmitted   EventType = "EntrySubmitted"
	EventEntryEdited      EventType = "EntryEdited"
	EventResultProposed   EventType = "ResultProposed"
	EventResultChallenged EventType = "ResultChallenged"
	EventResultFinalized  EventType = "ResultFinalized"
	EventLeagueCancelled  EventType = "LeagueCancelled"
	EventPrizeClaimed     EventType = "PrizeClaimed"
	EventRefundClaimed    EventType = "RefundClaimed"
	EventBondSettled      EventType = "BondSettled"
)

// LeagueEvent is published to observers after a state change commits
type LeagueEvent struct {
	Type     EventType  `json:"type"`
	LeagueID string     `json:"league_id"`
	Actor    string     `json:"actor"`
	Option   *uint8     `json:"option,omitempty"`
	Amount   *Wei       `json:"amount,omitempty"`
	LockTime *time.Time `json:"lock_time,omitempty"`
	At       time.Time  `json:"at"`
}
