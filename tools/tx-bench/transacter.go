package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"stakebft/types"
)

const (
	writeWait = 10 * time.Second
	// 小于rpc服务端的pong超时
	pingPeriod = 27 * time.Second
)

// benchConn 一条websocket连接，使用独立的账户和nonce
type benchConn struct {
	idx    int
	ws     *websocket.Conn
	signer types.MockPV
	nonce  int64
	logger log.Logger
}

// transacter 每条连接每秒发送rate个set_value交易
type transacter struct {
	target string
	rate   int
	paths  int
	conns  []*benchConn

	sent     int64
	accepted int64
	rejected int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

func newTransacter(target string, connections, rate, paths int) *transacter {
	return &transacter{
		target: target,
		rate:   rate,
		paths:  paths,
		conns:  make([]*benchConn, connections),
		logger: log.NewNopLogger(),
	}
}

func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start 建立所有连接后开始发送
func (t *transacter) Start() error {
	u := url.URL{Scheme: "ws", Host: t.target, Path: "/websocket"}
	for i := range t.conns {
		ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			t.closeConns()
			return errors.Wrapf(err, "dial %v", u.String())
		}
		t.conns[i] = &benchConn{
			idx:    i,
			ws:     ws,
			signer: types.NewMockPV(),
			logger: t.logger.With("conn", i),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	for _, bc := range t.conns {
		t.wg.Add(2)
		go t.writeLoop(ctx, bc)
		go t.readLoop(bc)
	}
	return nil
}

// Stop 发送close帧，等待服务端关闭连接
func (t *transacter) Stop() {
	t.cancel()
	t.wg.Wait()
}

func (t *transacter) closeConns() {
	for _, bc := range t.conns {
		if bc != nil {
			bc.ws.Close()
		}
	}
}

func (t *transacter) Sent() int64     { return atomic.LoadInt64(&t.sent) }
func (t *transacter) Accepted() int64 { return atomic.LoadInt64(&t.accepted) }
func (t *transacter) Rejected() int64 { return atomic.LoadInt64(&t.rejected) }

// readLoop 统计broadcast_tx的返回结果
func (t *transacter) readLoop(bc *benchConn) {
	defer t.wg.Done()
	defer bc.ws.Close()
	for {
		var resp jsonrpc.RPCResponse
		if err := bc.ws.ReadJSON(&resp); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				bc.logger.Error("read response failed", "err", err)
			}
			return
		}
		if resp.Error != nil {
			atomic.AddInt64(&t.rejected, 1)
			bc.logger.Debug("tx rejected", "err", resp.Error.Message)
		} else {
			atomic.AddInt64(&t.accepted, 1)
		}
	}
}

func (t *transacter) writeLoop(ctx context.Context, bc *benchConn) {
	defer t.wg.Done()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			bc.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := bc.ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
				bc.logger.Error("write close failed", "err", err)
			}
			return
		case <-ping.C:
			bc.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := bc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				bc.logger.Error("write ping failed", "err", err)
				bc.ws.Close()
				return
			}
		case <-tick.C:
			start := time.Now()
			n, err := t.sendBatch(bc, start.Add(time.Second))
			if err != nil {
				bc.logger.Error("send failed", "err", err)
				bc.ws.Close()
				return
			}
			bc.logger.Info(fmt.Sprintf("sent %d txs", n), "took", time.Since(start))
		}
	}
}

// sendBatch 在deadline之前最多发送rate个交易
func (t *transacter) sendBatch(bc *benchConn, deadline time.Time) (int, error) {
	for i := 0; i < t.rate; i++ {
		if i%10 == 0 && time.Now().After(deadline) {
			return i, nil
		}
		tx, err := generateTx(bc.signer, bc.nonce, t.paths)
		if err != nil {
			return i, err
		}
		req, err := newBroadcastRequest(tx, fmt.Sprintf("bench-%d-%d", bc.idx, bc.nonce))
		if err != nil {
			return i, err
		}
		bc.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		if err := bc.ws.WriteJSON(req); err != nil {
			return i, errors.Wrap(err, "write tx")
		}
		bc.nonce++
		atomic.AddInt64(&t.sent, 1)
	}
	return t.rate, nil
}

func newBroadcastRequest(tx *types.Tx, id string) (jsonrpc.RPCRequest, error) {
	// 服务端用tmjson解析参数
	params, err := tmjson.Marshal(map[string]interface{}{"tx": tx})
	if err != nil {
		return jsonrpc.RPCRequest{}, errors.Wrap(err, "failed to encode params")
	}
	return jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCStringID(id),
		Method:  "broadcast_tx",
		Params:  json.RawMessage(params),
	}, nil
}

func generateTx(signer types.MockPV, nonce int64, paths int) (*types.Tx, error) {
	path := fmt.Sprintf("/bench/key%d", rand.Intn(paths)+1) //nolint:gosec
	tx, err := types.NewTx(types.TxSetValue, signer.GetAddress(), path, fmt.Sprint(rand.Int63()), types.NowMs()) //nolint:gosec
	if err != nil {
		return nil, err
	}
	tx.Nonce = nonce
	if err := signer.SignTx(tx); err != nil {
		return nil, err
	}
	return tx, nil
}
