package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasSupermajority(t *testing.T) {
	// 恰好2/3时满足
	assert.True(t, HasSupermajority(200, 300))
	assert.False(t, HasSupermajority(199, 300))
	assert.True(t, HasSupermajority(2, 3))
	assert.False(t, HasSupermajority(1, 3))
	// 没有验证者、没有投票
	assert.False(t, HasSupermajority(0, 0))
	assert.True(t, HasSupermajority(1, 0))

	for _, total := range []int64{1, 2, 3, 10, 100, 301} {
		th := SupermajorityThreshold(total)
		assert.True(t, HasSupermajority(th, total), "total=%d", total)
		assert.False(t, HasSupermajority(th-1, total), "total=%d", total)
	}
}

func TestStatistics(t *testing.T) {
	assert.Equal(t, 3.0, Max(1, 3, 2))
	assert.Equal(t, 1.0, Min(1, 3, 2))
	assert.Equal(t, 2.0, Avg(1, 3, 2))
	assert.Equal(t, 2.5, Median(4, 1, 3, 2))
	assert.Equal(t, -1.0, Avg())
}
