package state

import "github.com/pkg/errors"

var (
	ErrInvalidBlock = errors.New("invalid block")
	ErrCommitFailed = errors.New("commit failed")
)

func invalidBlock(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidBlock, format, args...)
}

func IsInvalidBlock(err error) bool {
	return errors.Cause(err) == ErrInvalidBlock
}
