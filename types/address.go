package types

import (
	"github.com/tendermint/tendermint/crypto"
)

// Address 账户地址 - 公钥地址的十六进制(大写)表示
// 使用string作为底层类型，方便作为map的key以及json序列化
type Address string

func GetAddress(key crypto.PubKey) Address {
	return Address(key.Address().String())
}

func (addr Address) Equal(other Address) bool {
	if addr == "" || other == "" {
		return false
	}
	return addr == other
}

func (addr Address) IsEmpty() bool {
	return addr == ""
}

func (addr Address) String() string {
	return string(addr)
}

// Short 日志、调试输出使用的短地址
func (addr Address) Short() string {
	if len(addr) <= 8 {
		return string(addr)
	}
	return string(addr[:8])
}
