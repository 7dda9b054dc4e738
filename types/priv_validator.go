package types

import (
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

// PrivValidator 本地账户，负责对交易签名
type PrivValidator interface {
	GetPubKey() (crypto.PubKey, error)
	GetAddress() Address

	SignTx(tx *Tx) error
}

type PrivValidatorsByAddress []PrivValidator

func (pvs PrivValidatorsByAddress) Len() int {
	return len(pvs)
}

func (pvs PrivValidatorsByAddress) Less(i, j int) bool {
	return pvs[i].GetAddress() < pvs[j].GetAddress()
}

func (pvs PrivValidatorsByAddress) Swap(i, j int) {
	pvs[i], pvs[j] = pvs[j], pvs[i]
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without any safety or persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey crypto.PrivKey
}

func NewMockPV() MockPV {
	return MockPV{ed25519.GenPrivKey()}
}

func NewMockPVWithSecret(secret []byte) MockPV {
	return MockPV{ed25519.GenPrivKeyFromSecret(secret)}
}

func (pv MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv MockPV) GetAddress() Address {
	return GetAddress(pv.PrivKey.PubKey())
}

func (pv MockPV) SignTx(tx *Tx) error {
	sig, err := pv.PrivKey.Sign(tx.SignBytes())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

func (pv MockPV) String() string {
	return "MockPV{" + pv.GetAddress().Short() + "}"
}
