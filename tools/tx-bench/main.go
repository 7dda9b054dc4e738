package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	target      string
	connections int
	rate        int
	paths       int
	duration    time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "tx-bench",
	Short: "Send signed set_value transactions to a node at a fixed rate",
	RunE:  runBench,
}

func init() {
	rootCmd.Flags().StringVar(&target, "target", "127.0.0.1:26657", "rpc地址")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", 1, "websocket连接数，每条连接使用独立的账户")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 100, "每条连接每秒发送的交易数")
	rootCmd.Flags().IntVar(&paths, "paths", 100, "写入的路径个数")
	rootCmd.Flags().DurationVarP(&duration, "duration", "T", 10*time.Second, "持续时间")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "输出每秒的发送情况")
}

func runBench(cmd *cobra.Command, args []string) error {
	if connections <= 0 || rate <= 0 || paths <= 0 {
		return fmt.Errorf("connections, rate and paths must be positive")
	}

	logger := log.NewNopLogger()
	if verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}

	t := newTransacter(target, connections, rate, paths)
	t.SetLogger(logger)

	start := time.Now()
	if err := t.Start(); err != nil {
		return err
	}
	time.Sleep(duration)
	t.Stop()

	elapsed := time.Since(start)
	fmt.Printf("sent %d txs in %v (%.1f tx/s), accepted %d, rejected %d\n",
		t.Sent(), elapsed, float64(t.Sent())/elapsed.Seconds(), t.Accepted(), t.Rejected())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
