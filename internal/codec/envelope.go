package codec

import (
	"math"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// 传输封包格式:
//   msgType(f32) + nameLength(f32, 字节数) + name (补齐到 4 字节边界) + 规范帧

// EnvelopeLength 根据 nameLength 字段计算封包头长度
func EnvelopeLength(raw []byte) (int, error) {
	fixed := config.EnvelopeFixedFields * config.FloatSize
	if len(raw) < fixed {
		return 0, &MalformedDataError{
			Expected: fixed,
			Actual:   len(raw),
			Reason:   "envelope shorter than fixed fields",
		}
	}

	nameLen := float64(float32At(raw, 4))
	if nameLen < 0 || nameLen != math.Trunc(nameLen) || nameLen > float64(len(raw)-fixed) {
		return 0, &MalformedDataError{
			Expected: fixed,
			Actual:   len(raw),
			Offset:   4,
			Reason:   "invalid envelope name length",
		}
	}

	padded := int(math.Ceil(nameLen / config.FloatSize))
	return (config.EnvelopeFixedFields + padded) * config.FloatSize, nil
}

// EnvelopeInfo 读取封包中的消息类型和文件名
func EnvelopeInfo(raw []byte) (msgType int, name string, err error) {
	n, err := EnvelopeLength(raw)
	if err != nil {
		return 0, "", err
	}
	if len(raw) < n {
		return 0, "", &MalformedDataError{Expected: n, Actual: len(raw), Reason: "truncated envelope"}
	}
	nameLen := int(float32At(raw, 4))
	fixed := config.EnvelopeFixedFields * config.FloatSize
	return int(float32At(raw, 0)), string(raw[fixed : fixed+nameLen]), nil
}

// PassthroughBinary 去掉传输封包, 返回紧随其后的规范帧 (切片, 不重新编码)
func PassthroughBinary(raw []byte) (models.CachedFrame, error) {
	n, err := EnvelopeLength(raw)
	if err != nil {
		return models.EmptyFrame, err
	}
	if len(raw) < n+config.FrameHeaderSize {
		return models.EmptyFrame, &MalformedDataError{
			Expected: n + config.FrameHeaderSize,
			Actual:   len(raw),
			Reason:   "enveloped frame shorter than header",
		}
	}
	return FrameFromBinary(raw[n:])
}

// WrapBinary 给规范帧加上传输封包
func WrapBinary(msgType int, name string, frame []byte) []byte {
	fixed := config.EnvelopeFixedFields * config.FloatSize
	padded := (len(name) + config.FloatSize - 1) / config.FloatSize * config.FloatSize
	out := make([]byte, fixed+padded+len(frame))

	putFloat32(out, 0, float32(msgType))
	putFloat32(out, 4, float32(len(name)))
	copy(out[fixed:], name)
	copy(out[fixed+padded:], frame)
	return out
}
