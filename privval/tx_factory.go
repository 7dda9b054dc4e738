package privval

import (
	"sync"

	"stakebft/types"
)

// TxFactory 不持久化nonce的交易工厂，测试和工具使用
type TxFactory struct {
	mtx   sync.Mutex
	pv    types.PrivValidator
	nonce int64
}

func NewTxFactory(pv types.PrivValidator) *TxFactory {
	return &TxFactory{pv: pv, nonce: -1}
}

func (f *TxFactory) GetAddress() types.Address {
	return f.pv.GetAddress()
}

func (f *TxFactory) CreateTransaction(txType types.TxType, ref string, body interface{}, isNonced bool) (*types.Tx, error) {
	tx, err := types.NewTx(txType, f.pv.GetAddress(), ref, body, types.NowMs())
	if err != nil {
		return nil, err
	}
	if isNonced {
		f.mtx.Lock()
		f.nonce++
		tx.Nonce = f.nonce
		f.mtx.Unlock()
	}
	if err := f.pv.SignTx(tx); err != nil {
		return nil, err
	}
	return tx, nil
}
