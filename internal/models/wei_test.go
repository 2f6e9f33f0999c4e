package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWei(t *testing.T) {
	w, err := ParseWei("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1", w.Ether().String())

	w, err = ParseWei("0x10")
	require.NoError(t, err)
	assert.Equal(t, "16", w.String())

	for _, bad := range []string{"", "-1", "1.5", "ten", "0xzz"} {
		_, err := ParseWei(bad)
		assert.Error(t, err, bad)
	}

	// 2^256 does not fit
	_, err = ParseWei("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	assert.Error(t, err)
}

func TestWeiArithmetic(t *testing.T) {
	ten := NewWei(10)
	three := NewWei(3)

	sum, err := ten.Add(three)
	require.NoError(t, err)
	assert.Equal(t, "13", sum.String())

	diff, err := ten.Sub(three)
	require.NoError(t, err)
	assert.Equal(t, "7", diff.String())

	_, err = three.Sub(ten)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	max := MustParseWei("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	_, err = max.Add(NewWei(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	q, rem := ten.DivMod(3)
	assert.Equal(t, "3", q.String())
	assert.Equal(t, "1", rem.String())

	share, err := NewWei(40).MulDiv(1, 3)
	require.NoError(t, err)
	assert.Equal(t, "13", share.String())

	// the intermediate product may exceed 256 bits
	half, err := max.MulDiv(1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, "57896044618658097711785492504343953926634992332820282019728792003956564819967", half.String())

	_, err = ten.MulDiv(1, 0)
	assert.Error(t, err)

	assert.True(t, three.Lt(ten))
	assert.Equal(t, 1, ten.Cmp(three))
	assert.True(t, Wei{}.IsZero())
}

func TestWeiScanAndValue(t *testing.T) {
	var w Wei
	require.NoError(t, w.Scan("123456789012345678901234567890"))
	assert.Equal(t, "123456789012345678901234567890", w.String())

	v, err := w.Value()
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v)

	require.NoError(t, w.Scan([]byte("42")))
	assert.Equal(t, "42", w.String())
	require.NoError(t, w.Scan(int64(7)))
	assert.Equal(t, "7", w.String())
	require.NoError(t, w.Scan(nil))
	assert.True(t, w.IsZero())

	assert.Error(t, w.Scan(int64(-1)))
	assert.Error(t, w.Scan(3.14))
}

func TestWeiJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Fee Wei `json:"fee"`
	}{Fee: NewWei(5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fee":"5"}`, string(data))

	var in struct {
		A Wei `json:"a"`
		B Wei `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1000","b":25}`), &in))
	assert.Equal(t, "1000", in.A.String())
	assert.Equal(t, "25", in.B.String())

	assert.Error(t, json.Unmarshal([]byte(`{"a":"-3"}`), &in))
}
