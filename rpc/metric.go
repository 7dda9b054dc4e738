package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics 各模块指标的json快照，label为空时返回全部
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	if label == "" {
		return &ResultMetrics{Metrics: env.MetricSet.Snapshot()}, nil
	}
	return &ResultMetrics{Metrics: env.MetricSet.Snapshot(label)}, nil
}
