package metric

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrMetricLabelExist = errors.New("metric label already exist")

// MetricSet 按label汇总各个模块的指标，rpc的metrics接口从这里读取
type MetricSet struct {
	mtx   sync.RWMutex
	items map[string]MetricItem
}

func NewMetricSet() *MetricSet {
	return &MetricSet{items: make(map[string]MetricItem)}
}

// Register 同一个label只能注册一次
func (ms *MetricSet) Register(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()
	if _, ok := ms.items[label]; ok {
		return errors.Wrap(ErrMetricLabelExist, label)
	}
	ms.items[label] = item
	return nil
}

func (ms *MetricSet) Lookup(label string) (MetricItem, bool) {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	item, ok := ms.items[label]
	return item, ok
}

// Labels 按字典序返回
func (ms *MetricSet) Labels() []string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	labels := make([]string, 0, len(ms.items))
	for label := range ms.items {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Snapshot label -> json。不传label时返回全部，未注册的label忽略
func (ms *MetricSet) Snapshot(labels ...string) map[string]string {
	if len(labels) == 0 {
		labels = ms.Labels()
	}
	res := make(map[string]string, len(labels))
	for _, label := range labels {
		if item, ok := ms.Lookup(label); ok {
			res[label] = item.JSONString()
		}
	}
	return res
}
