package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"stakebft/privval"
	"stakebft/types"
)

const (
	sendTimeout = 10 * time.Second
)

var (
	target   string
	keyFile  string
	nonce    int64
	txType   string
	ref      string
	value    string
	amount   int64
	lockup   time.Duration
	showOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "send-tx",
	Short: "Sign a single transaction with a validator key and broadcast it over websocket",
	RunE:  sendTx,
}

func init() {
	rootCmd.Flags().StringVar(&target, "target", "127.0.0.1:26657", "rpc地址")
	rootCmd.Flags().StringVar(&keyFile, "key", "", "priv_validator_key.json，为空时使用随机账户")
	rootCmd.Flags().Int64Var(&nonce, "nonce", 0, "交易的nonce")
	rootCmd.Flags().StringVar(&txType, "type", string(types.TxSetValue), "交易类型: set_value | stake")
	rootCmd.Flags().StringVar(&ref, "ref", "/apps/test", "set_value写入的路径")
	rootCmd.Flags().StringVar(&value, "value", "", "set_value写入的内容")
	rootCmd.Flags().Int64Var(&amount, "amount", 0, "stake的数量")
	rootCmd.Flags().DurationVar(&lockup, "lockup", 0, "stake的锁定时长，0表示使用节点的默认值")
	rootCmd.Flags().BoolVar(&showOnly, "dry-run", false, "只输出交易，不发送")
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

func loadSigner() types.PrivValidator {
	if keyFile == "" {
		return types.NewMockPV()
	}
	return privval.LoadFilePVEmptyState(keyFile, "")
}

func buildTx(signer types.PrivValidator) (*types.Tx, error) {
	var (
		tx  *types.Tx
		err error
	)
	switch types.TxType(txType) {
	case types.TxSetValue:
		tx, err = types.NewTx(types.TxSetValue, signer.GetAddress(), ref, value, types.NowMs())
	case types.TxStake:
		tx, err = types.NewTx(types.TxStake, signer.GetAddress(), "", &types.StakeBody{
			Amount:   amount,
			LockupMs: types.DurationMs(lockup),
		}, types.NowMs())
	default:
		return nil, errors.Errorf("unsupported tx type %q", txType)
	}
	if err != nil {
		return nil, err
	}
	tx.Nonce = nonce
	if err := signer.SignTx(tx); err != nil {
		return nil, err
	}
	return tx, tx.ValidateBasic()
}

func sendTx(cmd *cobra.Command, args []string) error {
	tx, err := buildTx(loadSigner())
	if err != nil {
		return err
	}
	bz, err := tmjson.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	color.Cyan("tx %X", tx.Hash())
	fmt.Println(string(bz))
	if showOnly {
		return nil
	}

	c, _, err := connect(target)
	if err != nil {
		return errors.Wrapf(err, "connect %s", target)
	}
	defer c.Close()

	params, err := tmjson.Marshal(map[string]interface{}{"tx": tx})
	if err != nil {
		return errors.Wrap(err, "failed to encode params")
	}
	c.SetWriteDeadline(time.Now().Add(sendTimeout)) //nolint:errcheck
	err = c.WriteJSON(jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCStringID("send-tx"),
		Method:  "broadcast_tx",
		Params:  json.RawMessage(params),
	})
	if err != nil {
		return err
	}

	c.SetReadDeadline(time.Now().Add(sendTimeout)) //nolint:errcheck
	var resp jsonrpc.RPCResponse
	if err := c.ReadJSON(&resp); err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.Error != nil {
		color.Red("rejected: %v", resp.Error)
		return resp.Error
	}
	color.Green("accepted: %s", string(resp.Result))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
