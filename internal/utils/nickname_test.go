package utils

import (
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestNickname(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000a11c")
	b := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	assert.Equal(t, Nickname(a), Nickname(a))
	assert.NotEqual(t, Nickname(a), Nickname(b))
	assert.Regexp(t, regexp.MustCompile(`^[A-Z][a-z]+_[A-Z][a-z]+_\d{4}$`), Nickname(a))
}
