package types

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tendermint/tendermint/crypto/merkle"
)

// ValidatorSet 某个高度的验证者集合 address -> stake
// 区块中携带这个集合，投票时只有集合内且stake一致的投票才会被计入
//
// NOTE: Not goroutine-safe.
type ValidatorSet map[Address]int64

// NewValidatorSet 重复的地址以最后一个为准
func NewValidatorSet(valz ...*Validator) ValidatorSet {
	vals := make(ValidatorSet, len(valz))
	for _, val := range valz {
		vals[val.Address] = val.Stake
	}
	return vals
}

func (vals ValidatorSet) ValidateBasic() error {
	for addr, stake := range vals {
		if err := NewValidator(addr, stake).ValidateBasic(); err != nil {
			return err
		}
	}
	return nil
}

func (vals ValidatorSet) IsNilOrEmpty() bool {
	return len(vals) == 0
}

func (vals ValidatorSet) Size() int {
	return len(vals)
}

func (vals ValidatorSet) Has(addr Address) bool {
	_, ok := vals[addr]
	return ok
}

// StakeOf 不在集合内返回0
func (vals ValidatorSet) StakeOf(addr Address) int64 {
	return vals[addr]
}

func (vals ValidatorSet) TotalStake() int64 {
	var total int64
	for _, stake := range vals {
		total += stake
	}
	return total
}

// SortedAddresses 按地址升序，所有节点遍历顺序一致
func (vals ValidatorSet) SortedAddresses() []Address {
	addrs := make([]Address, 0, len(vals))
	for addr := range vals {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Ordered 返回stake降序的验证者列表
func (vals ValidatorSet) Ordered() []*Validator {
	list := make([]*Validator, 0, len(vals))
	for addr, stake := range vals {
		list = append(list, NewValidator(addr, stake))
	}
	SortValidators(list)
	return list
}

func (vals ValidatorSet) Copy() ValidatorSet {
	if vals == nil {
		return nil
	}
	valsCopy := make(ValidatorSet, len(vals))
	for addr, stake := range vals {
		valsCopy[addr] = stake
	}
	return valsCopy
}

func (vals ValidatorSet) Equal(other ValidatorSet) bool {
	if len(vals) != len(other) {
		return false
	}
	for addr, stake := range vals {
		s, ok := other[addr]
		if !ok || s != stake {
			return false
		}
	}
	return true
}

// Hash returns the Merkle root hash build using sorted (address, stake) leaves.
func (vals ValidatorSet) Hash() []byte {
	addrs := vals.SortedAddresses()
	bzs := make([][]byte, len(addrs))
	for i, addr := range addrs {
		bz := make([]byte, len(addr)+8)
		copy(bz, addr)
		binary.BigEndian.PutUint64(bz[len(addr):], uint64(vals[addr]))
		bzs[i] = bz
	}
	return merkle.HashFromByteSlices(bzs)
}

// MarshalJSON tmjson不支持非string的map key类型，这里自己编码
func (vals ValidatorSet) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[Address]int64(vals))
}

func (vals *ValidatorSet) UnmarshalJSON(bz []byte) error {
	m := make(map[Address]int64)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(bz, &m); err != nil {
		return err
	}
	*vals = m
	return nil
}

func (vals ValidatorSet) String() string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	parts := make([]string, 0, len(vals))
	for _, addr := range vals.SortedAddresses() {
		parts = append(parts, fmt.Sprintf("%v:%d", addr.Short(), vals[addr]))
	}
	return fmt.Sprintf("ValidatorSet{%s}", strings.Join(parts, " "))
}

//----------------------------------------

// RandValidatorSet returns a randomized validator set (size: +numValidators+),
// where each validator has a stake of +stake+.
//
// EXPOSED FOR TESTING.
func RandValidatorSet(numValidators int, stake int64) (ValidatorSet, []PrivValidator) {
	var (
		valz           = make([]*Validator, numValidators)
		privValidators = make([]PrivValidator, numValidators)
	)

	for i := 0; i < numValidators; i++ {
		val, privValidator := RandValidator(stake)
		valz[i] = val
		privValidators[i] = privValidator
	}

	sort.Sort(PrivValidatorsByAddress(privValidators))

	return NewValidatorSet(valz...), privValidators
}
