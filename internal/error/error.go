package error

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPool        = errors.New("pool was never initialized")
	ErrReentrantPlayback  = errors.New("pool is already playing back")
	ErrSegmentAllocFailed = errors.New("pool slot allocation exhausted")
)

func New(err error, str string) error {
	return fmt.Errorf("%w: %s", err, str)
}
