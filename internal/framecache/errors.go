package framecache

import (
	"errors"
	"fmt"
)

// ErrFrameAccess 查询的帧不在缓存中, 或缓存为空
var ErrFrameAccess = errors.New("frame access error")

// FrameAccessError 访问失败详情, 只通过 Notifier 送出, 不从 getter 返回
type FrameAccessError struct {
	Op    string
	Query string
}

func (e *FrameAccessError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("frame access error: %s on empty cache", e.Op)
	}
	return fmt.Sprintf("frame access error: %s(%s) not in cache", e.Op, e.Query)
}

func (e *FrameAccessError) Unwrap() error {
	return ErrFrameAccess
}
