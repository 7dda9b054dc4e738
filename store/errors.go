package store

import "github.com/pkg/errors"

var (
	// ErrNotFound 路径或区块不存在
	ErrNotFound = errors.New("not found")

	// ErrReservedPath set_value不能写入质押、共识记录等保留路径
	ErrReservedPath = errors.New("reserved path")
)

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}
