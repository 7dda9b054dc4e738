package blockpool

import (
	mtr "github.com/rcrowley/go-metrics"

	"stakebft/libs/metric"
)

const MetricLabel = "BLOCKPOOL"

type poolMetrics struct {
	*metric.RegistryItem

	seenBlocks        mtr.Counter
	invalidBlocks     mtr.Counter
	notarizedBlocks   mtr.Counter
	seenVotes         mtr.Counter
	duplicateVotes    mtr.Counter
	epochConflicts    mtr.Counter
	pruned            mtr.Counter
	highestSeen       mtr.Gauge
	finalizableLength mtr.Histogram
}

func newPoolMetrics() *poolMetrics {
	item := metric.NewRegistryItem("blockpool - ")
	return &poolMetrics{
		RegistryItem:      item,
		seenBlocks:        item.Counter("seen blocks"),
		invalidBlocks:     item.Counter("invalid blocks"),
		notarizedBlocks:   item.Counter("notarized blocks"),
		seenVotes:         item.Counter("seen votes"),
		duplicateVotes:    item.Counter("duplicate votes"),
		epochConflicts:    item.Counter("epoch conflicts"),
		pruned:            item.Counter("pruned entries"),
		highestSeen:       item.Gauge("highest seen number"),
		finalizableLength: item.Histogram("finalizable chain length"),
	}
}

// Metrics 注册到MetricSet中供rpc查询
func (bp *BlockPool) Metrics() metric.MetricItem {
	return bp.metrics
}
