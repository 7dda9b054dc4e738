package types

import (
	"errors"
	"fmt"
	"sort"
)

// Validator 某个高度上有投票权的账户以及它的权重(stake)
type Validator struct {
	Address Address `json:"address"`
	Stake   int64   `json:"stake"`
}

func NewValidator(addr Address, stake int64) *Validator {
	return &Validator{
		Address: addr,
		Stake:   stake,
	}
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if v.Address.IsEmpty() {
		return errors.New("validator does not have an address")
	}
	if v.Stake <= 0 {
		return fmt.Errorf("validator %v has non-positive stake %d", v.Address, v.Stake)
	}
	return nil
}

func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%v %d}", v.Address.Short(), v.Stake)
}

// SortValidators stake降序，stake相同时按地址升序
func SortValidators(vals []*Validator) {
	sort.SliceStable(vals, func(i, j int) bool {
		if vals[i].Stake != vals[j].Stake {
			return vals[i].Stake > vals[j].Stake
		}
		return vals[i].Address < vals[j].Address
	})
}

//----------------------------------------
// RandValidator

// RandValidator returns a randomized validator, useful for testing.
// UNSTABLE
func RandValidator(stake int64) (*Validator, PrivValidator) {
	privVal := NewMockPV()
	return NewValidator(privVal.GetAddress(), stake), privVal
}
