package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"stakebft/types"
)

func TestSelectProposerEmpty(t *testing.T) {
	_, ok := SelectProposer(nil, []byte("hash"), 0)
	assert.False(t, ok)
	_, ok = SelectProposer(types.ValidatorSet{"A": 0}, []byte("hash"), 0)
	assert.False(t, ok)
}

func TestSelectProposerDeterministic(t *testing.T) {
	vals := types.ValidatorSet{"A": 10, "B": 20, "C": 30}
	hash := tmhash.Sum([]byte("parent"))

	first, ok := SelectProposer(vals, hash, 3)
	require.True(t, ok)
	assert.True(t, vals.Has(first))
	for i := 0; i < 10; i++ {
		again, _ := SelectProposer(vals.Copy(), hash, 3)
		assert.Equal(t, first, again)
	}

	// 单个验证者总是被选中
	only, ok := SelectProposer(types.ValidatorSet{"A": 1}, hash, 7)
	require.True(t, ok)
	assert.Equal(t, types.Address("A"), only)
}

func TestSelectProposerStakeWeighted(t *testing.T) {
	vals := types.ValidatorSet{"A": 100, "B": 200, "C": 700}
	total := vals.TotalStake()
	counts := make(map[types.Address]int)

	const rounds = 3000
	for i := 0; i < rounds; i++ {
		hash := tmhash.Sum([]byte(fmt.Sprintf("block-%d", i)))
		addr, ok := SelectProposer(vals, hash, int64(i%5))
		require.True(t, ok)
		counts[addr]++
	}

	for addr, stake := range vals {
		expected := float64(stake) / float64(total)
		actual := float64(counts[addr]) / rounds
		assert.InDelta(t, expected, actual, 0.1, "validator %v", addr)
	}
}

func TestTargetEpoch(t *testing.T) {
	assert.EqualValues(t, 5, TargetEpoch(4, 0))
	assert.EqualValues(t, 8, TargetEpoch(4, 3))
}
