package utils

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var adjectives = []string{
	"Bold", "Lucky", "Sharp", "Steady", "Sly",
	"Patient", "Daring", "Calm", "Keen", "Wary",
	"Rapid", "Shrewd", "Quiet", "Brash", "Canny",
	"Loyal", "Nimble", "Stoic", "Wily", "Grim",
}

var nouns = []string{
	"Oracle", "Punter", "Bookie", "Scout", "Striker",
	"Keeper", "Pundit", "Seer", "Tipster", "Captain",
	"Rookie", "Veteran", "Analyst", "Hunch", "Longshot",
	"Favorite", "Underdog", "Dealer", "Skipper", "Umpire",
}

// Nickname derives a stable display name from a wallet address, so the same
// wallet gets the same name on every backend.
func Nickname(wallet common.Address) string {
	h := crypto.Keccak256(wallet.Bytes())
	adj := adjectives[int(h[0])%len(adjectives)]
	noun := nouns[int(h[1])%len(nouns)]
	suffix := binary.BigEndian.Uint16(h[2:4]) % 10000
	return fmt.Sprintf("%s_%s_%04d", adj, noun, suffix)
}
