package container

import (
	"errors"
	"fmt"
)

var (
	// ErrContainerFormat 容器文件格式错误, 整个文件被拒绝
	ErrContainerFormat = errors.New("container format error")
	// ErrFrameOutOfRange 帧下标越界
	ErrFrameOutOfRange = errors.New("frame index out of range")
)

// FormatError 容器格式错误详情
// 块自检不一致时 Field/Header/Block 记录头表声明值与块内声明值
type FormatError struct {
	Reason     string
	BlockIndex int
	Field      string
	Header     int
	Block      int
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("container format error: block %d %s mismatch: header declares %d, block declares %d",
			e.BlockIndex, e.Field, e.Header, e.Block)
	}
	return "container format error: " + e.Reason
}

func (e *FormatError) Unwrap() error {
	return ErrContainerFormat
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...), BlockIndex: -1}
}
