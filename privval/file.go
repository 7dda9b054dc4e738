package privval

import (
	"fmt"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"stakebft/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of PrivValidator.
type FilePVKey struct {
	Address types.Address  `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save PrivValidator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePVNonceState 最后使用的nonce，重启后nonce不会重复
type FilePVNonceState struct {
	Nonce int64 `json:"nonce"`

	filePath string
}

func (ns *FilePVNonceState) Save() error {
	if ns.filePath == "" {
		return nil
	}
	jsonBytes, err := tmjson.MarshalIndent(ns, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(ns.filePath, jsonBytes, 0600)
}

//-------------------------------------------------------------------------------

// FilePV implements PrivValidator using data persisted to disk.
// NOTE: the directories containing pv.Key.filePath and pv.NonceState.filePath must already exist.
type FilePV struct {
	mtx sync.Mutex

	Key        FilePVKey
	NonceState FilePVNonceState
}

var _ types.PrivValidator = (*FilePV)(nil)

// NewFilePV generates a new validator from the given key and paths.
func NewFilePV(privKey crypto.PrivKey, keyFilePath, stateFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  types.GetAddress(privKey.PubKey()),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
		NonceState: FilePVNonceState{
			Nonce:    -1,
			filePath: stateFilePath,
		},
	}
}

// GenFilePV generates a new validator with randomly generated private key
// and sets the filePaths, but does not call Save().
func GenFilePV(keyFilePath, stateFilePath string) *FilePV {
	return NewFilePV(ed25519.GenPrivKey(), keyFilePath, stateFilePath)
}

// GenFilePVWithSeed 测试网络中按seed生成确定的私钥
func GenFilePVWithSeed(keyFilePath, stateFilePath string, seed []byte) *FilePV {
	return NewFilePV(ed25519.GenPrivKeyFromSecret(seed), keyFilePath, stateFilePath)
}

// LoadFilePV loads a FilePV from the filePaths. If the key file does not exist,
// the program will exit.
func LoadFilePV(keyFilePath, stateFilePath string) *FilePV {
	return loadFilePV(keyFilePath, stateFilePath, true)
}

// LoadFilePVEmptyState loads a FilePV from the given keyFilePath, with an empty nonce state.
func LoadFilePVEmptyState(keyFilePath, stateFilePath string) *FilePV {
	return loadFilePV(keyFilePath, stateFilePath, false)
}

func loadFilePV(keyFilePath, stateFilePath string, loadState bool) *FilePV {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		tmos.Exit(fmt.Sprintf("Error reading PrivValidator key from %v: %v\n", keyFilePath, err))
	}

	// overwrite pubkey and address for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = types.GetAddress(pvKey.PubKey)
	pvKey.filePath = keyFilePath

	nonceState := FilePVNonceState{Nonce: -1}
	if loadState && tmos.FileExists(stateFilePath) {
		stateJSONBytes, err := ioutil.ReadFile(stateFilePath)
		if err != nil {
			tmos.Exit(err.Error())
		}
		if err := tmjson.Unmarshal(stateJSONBytes, &nonceState); err != nil {
			tmos.Exit(fmt.Sprintf("Error reading PrivValidator state from %v: %v\n", stateFilePath, err))
		}
	}
	nonceState.filePath = stateFilePath

	return &FilePV{
		Key:        pvKey,
		NonceState: nonceState,
	}
}

// LoadOrGenFilePV loads a FilePV from the given filePaths
// or else generates a new one and saves it to the filePaths.
func LoadOrGenFilePV(keyFilePath, stateFilePath string) *FilePV {
	var pv *FilePV
	if tmos.FileExists(keyFilePath) {
		pv = LoadFilePV(keyFilePath, stateFilePath)
	} else {
		pv = GenFilePV(keyFilePath, stateFilePath)
		pv.Save()
	}
	return pv
}

// GetAddress returns the address of the validator.
// Implements PrivValidator.
func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

// GetPubKey returns the public key of the validator.
// Implements PrivValidator.
func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// SignTx implements PrivValidator.
func (pv *FilePV) SignTx(tx *types.Tx) error {
	sig, err := pv.Key.PrivKey.Sign(tx.SignBytes())
	if err != nil {
		return errors.Wrap(err, "error signing tx")
	}
	tx.Signature = sig
	return nil
}

// CreateTransaction 以本地账户的身份构造并签名一个交易
// isNonced为true时使用递增的nonce，并持久化到state文件
func (pv *FilePV) CreateTransaction(txType types.TxType, ref string, body interface{}, isNonced bool) (*types.Tx, error) {
	tx, err := types.NewTx(txType, pv.GetAddress(), ref, body, types.NowMs())
	if err != nil {
		return nil, err
	}

	if isNonced {
		pv.mtx.Lock()
		pv.NonceState.Nonce++
		tx.Nonce = pv.NonceState.Nonce
		err := pv.NonceState.Save()
		pv.mtx.Unlock()
		if err != nil {
			return nil, errors.Wrap(err, "save nonce state")
		}
	}

	if err := pv.SignTx(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
	if err := pv.NonceState.Save(); err != nil {
		panic(err)
	}
}

// Reset resets the nonce state.
// NOTE: Unsafe!
func (pv *FilePV) Reset() {
	pv.NonceState.Nonce = -1
	pv.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"PrivValidator{%v N:%v}",
		pv.GetAddress(),
		pv.NonceState.Nonce,
	)
}
