package metric

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricSetRegister(t *testing.T) {
	set := NewMetricSet()
	require.NoError(t, set.Register("MEMPOOL", &mockMetricItem{name: "m"}))

	err := set.Register("MEMPOOL", &mockMetricItem{name: "again"})
	assert.True(t, errors.Is(err, ErrMetricLabelExist))

	item, ok := set.Lookup("MEMPOOL")
	require.True(t, ok)
	assert.Equal(t, "m", item.JSONString())

	_, ok = set.Lookup("POOL")
	assert.False(t, ok)
}

func TestMetricSetSnapshot(t *testing.T) {
	set := NewMetricSet()
	require.NoError(t, set.Register("POOL", &mockMetricItem{name: "p"}))
	require.NoError(t, set.Register("CONSENSUS", &mockMetricItem{name: "c"}))

	assert.Equal(t, []string{"CONSENSUS", "POOL"}, set.Labels())
	assert.Equal(t, map[string]string{"CONSENSUS": "c", "POOL": "p"}, set.Snapshot())
	assert.Equal(t, map[string]string{"POOL": "p"}, set.Snapshot("POOL", "UNKNOWN"))
}

func TestRegistryItem(t *testing.T) {
	item := NewRegistryItem("pool - ")
	item.Counter("seen blocks").Inc(3)
	item.Gauge("highest").Update(7)

	set := NewMetricSet()
	require.NoError(t, set.Register("POOL", item))

	s := set.Snapshot("POOL")["POOL"]
	assert.Contains(t, s, "pool - seen blocks")
	assert.Contains(t, s, "3")
	assert.Contains(t, item.TextString(), "highest")
}
