package types

import (
	"encoding/binary"

	"go.dedis.ch/kyber/v3/xof/blake2xb"

	"stakebft/types"
)

// SelectProposer 按stake加权、以父区块hash和round为种子选出提案人
// 验证者集合为空或总stake为0时返回false
func SelectProposer(vals types.ValidatorSet, lastHash []byte, round int64) (types.Address, bool) {
	total := vals.TotalStake()
	if len(vals) == 0 || total <= 0 {
		return "", false
	}

	seed := make([]byte, len(lastHash)+8)
	copy(seed, lastHash)
	binary.BigEndian.PutUint64(seed[len(lastHash):], uint64(round))

	var buf [8]byte
	if _, err := blake2xb.New(seed).Read(buf[:]); err != nil {
		panic(err)
	}
	target := int64(binary.BigEndian.Uint64(buf[:]) % uint64(total))

	var cumulative int64
	for _, addr := range vals.SortedAddresses() {
		cumulative += vals[addr]
		if cumulative > target {
			return addr, true
		}
	}
	// 不会到达
	return "", false
}
