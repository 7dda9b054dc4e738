package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorSetBasics(t *testing.T) {
	vals := NewValidatorSet(
		NewValidator("C", 10),
		NewValidator("A", 30),
		NewValidator("B", 30),
	)

	assert.EqualValues(t, 70, vals.TotalStake())
	assert.EqualValues(t, 30, vals.StakeOf("A"))
	assert.EqualValues(t, 0, vals.StakeOf("D"))
	assert.Equal(t, []Address{"A", "B", "C"}, vals.SortedAddresses())

	ordered := vals.Ordered()
	assert.Equal(t, Address("A"), ordered[0].Address)
	assert.Equal(t, Address("B"), ordered[1].Address)
	assert.Equal(t, Address("C"), ordered[2].Address)
}

func TestValidatorSetHashAndCopy(t *testing.T) {
	vals := NewValidatorSet(NewValidator("A", 1), NewValidator("B", 2))
	cp := vals.Copy()
	assert.True(t, vals.Equal(cp))
	assert.Equal(t, vals.Hash(), cp.Hash())

	cp["B"] = 3
	assert.False(t, vals.Equal(cp))
	assert.NotEqual(t, vals.Hash(), cp.Hash())
	assert.EqualValues(t, 2, vals["B"], "copy不能影响原集合")
}

func TestValidatorSetValidateBasic(t *testing.T) {
	assert.NoError(t, ValidatorSet{}.ValidateBasic())
	assert.NoError(t, NewValidatorSet(NewValidator("A", 1)).ValidateBasic())
	assert.Error(t, ValidatorSet{"A": 0}.ValidateBasic())
	assert.Error(t, ValidatorSet{"": 1}.ValidateBasic())
}
