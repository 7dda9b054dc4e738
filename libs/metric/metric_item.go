package metric

import (
	"strings"

	mtr "github.com/rcrowley/go-metrics"
)

// MetricItem - 一个独立的metric模块对应一个MetricItem
// 实现时要使用
type MetricItem interface {
	JSONString() string
}

// RegistryItem 将go-metrics的registry包装成MetricItem
type RegistryItem struct {
	registry mtr.Registry
}

func NewRegistryItem(prefix string) *RegistryItem {
	return &RegistryItem{registry: mtr.NewPrefixedRegistry(prefix)}
}

func (ri *RegistryItem) Registry() mtr.Registry {
	return ri.registry
}

func (ri *RegistryItem) Counter(name string) mtr.Counter {
	return mtr.GetOrRegisterCounter(name, ri.registry)
}

func (ri *RegistryItem) Gauge(name string) mtr.Gauge {
	return mtr.GetOrRegisterGauge(name, ri.registry)
}

func (ri *RegistryItem) Histogram(name string) mtr.Histogram {
	return mtr.GetOrRegisterHistogram(name, ri.registry, mtr.NewUniformSample(500))
}

func (ri *RegistryItem) JSONString() string {
	builder := &strings.Builder{}
	mtr.WriteJSONOnce(ri.registry, builder)
	return strings.TrimSpace(builder.String())
}

// TextString 文本格式，调试使用
func (ri *RegistryItem) TextString() string {
	builder := &strings.Builder{}
	mtr.WriteOnce(ri.registry, builder)
	return builder.String()
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
