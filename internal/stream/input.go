package stream

import (
	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// InputKind 输入形态
type InputKind int

const (
	KindWire   InputKind = iota // 扁平数值数组
	KindBinary                  // 已打包的二进制
)

func (k InputKind) String() string {
	switch k {
	case KindWire:
		return "wire"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Input 待摄入的一帧, 两种形态之一
type Input struct {
	kind      InputKind
	wire      codec.WireFrame
	raw       []byte
	enveloped bool
}

// WireInput 线上 JSON 帧
func WireInput(f codec.WireFrame) Input {
	return Input{kind: KindWire, wire: f}
}

// BinaryInput 二进制帧; enveloped 为 true 时 raw 带传输封包
func BinaryInput(raw []byte, enveloped bool) Input {
	return Input{kind: KindBinary, raw: raw, enveloped: enveloped}
}

// Kind 输入形态
func (in Input) Kind() InputKind {
	return in.kind
}

// normalize 转换为规范帧
func (in Input) normalize() (models.CachedFrame, error) {
	switch {
	case in.kind == KindWire:
		return codec.Encode(in.wire)
	case in.enveloped:
		return codec.PassthroughBinary(in.raw)
	default:
		return codec.FrameFromBinary(in.raw)
	}
}
