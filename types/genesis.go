package types

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
)

const MaxChainIDLen = 50

// GenesisValidator 创世时的质押账户
type GenesisValidator struct {
	Address  Address       `json:"address"`
	PubKey   crypto.PubKey `json:"pub_key"`
	Stake    int64         `json:"stake"`
	LockupMs int64         `json:"lockup_ms"`
	Name     string        `json:"name"`
}

// GenesisDoc defines the initial conditions for a chain.
type GenesisDoc struct {
	GenesisTime time.Time          `json:"genesis_time"`
	ChainID     string             `json:"chain_id"`
	Validators  []GenesisValidator `json:"validators"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.Validators) == 0 {
		return errors.New("genesis doc must include at least one validator")
	}

	for i, v := range genDoc.Validators {
		if v.Stake <= 0 {
			return fmt.Errorf("the genesis file cannot contain validators with no stake: %v", v)
		}
		if v.PubKey != nil && v.Address.IsEmpty() {
			genDoc.Validators[i].Address = GetAddress(v.PubKey)
		}
		if genDoc.Validators[i].Address.IsEmpty() {
			return fmt.Errorf("genesis validator #%d has no address", i)
		}
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now()
	}

	return nil
}

func (genDoc *GenesisDoc) ValidatorSet() ValidatorSet {
	vals := make(ValidatorSet, len(genDoc.Validators))
	for _, v := range genDoc.Validators {
		vals[v.Address] += v.Stake
	}
	return vals
}

// Block 创世块：number 0, epoch 0，携带创世验证者集合
func (genDoc *GenesisDoc) Block() *Block {
	var proposer Address
	if len(genDoc.Validators) > 0 {
		proposer = genDoc.Validators[0].Address
	}
	return NewBlock(0, 0, nil, proposer, Txs{}, genDoc.ValidatorSet(), genDoc.GenesisTime.UnixNano()/int64(time.Millisecond))
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := tmjson.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}
