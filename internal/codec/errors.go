package codec

import (
	"errors"
	"fmt"
)

// ErrMalformedData 帧数据长度与声明不符
var ErrMalformedData = errors.New("malformed data")

// MalformedDataError 记录期望长度与实际剩余长度
type MalformedDataError struct {
	Expected int
	Actual   int
	Offset   int
	Reason   string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed data: %s at offset %d: expected length %d, actual remaining %d",
		e.Reason, e.Offset, e.Expected, e.Actual)
}

func (e *MalformedDataError) Unwrap() error {
	return ErrMalformedData
}
