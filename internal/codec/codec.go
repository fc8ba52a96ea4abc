// Package codec 把线上的扁平数值帧转换为规范二进制帧布局
//
// 规范帧布局 (小端 float32):
//
//	frameNumber, time, agentCount,
//	agentCount * [visType, instanceId, typeId, x, y, z, xrot, yrot, zrot, cr, nSubpoints, subpoints...]
package codec

import (
	"encoding/binary"
	"math"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// WireFrame 线上格式的一帧
type WireFrame struct {
	FrameNumber int       `json:"frameNumber"`
	Time        float64   `json:"time"`
	Data        []float64 `json:"data"`
}

// VisDataMessage 线上格式的帧包
type VisDataMessage struct {
	MsgType     int         `json:"msgType"`
	BundleStart int         `json:"bundleStart"`
	BundleSize  int         `json:"bundleSize"`
	BundleData  []WireFrame `json:"bundleData"`
	FileName    string      `json:"fileName,omitempty"`
}

// FrameHeader 规范帧头
type FrameHeader struct {
	FrameNumber int
	Time        float64
	AgentCount  int
}

// Encode 将扁平数组编码为规范帧
// 先遍历一遍计算总长度, 只分配一次缓冲区; agent 数据先写, 帧头最后写
func Encode(f WireFrame) (models.CachedFrame, error) {
	agentCount, err := countAgents(f.Data)
	if err != nil {
		return models.EmptyFrame, err
	}

	size := config.FrameHeaderSize + len(f.Data)*config.FloatSize
	buf := make([]byte, size)

	off := config.FrameHeaderSize
	for _, v := range f.Data {
		putFloat32(buf, off, float32(v))
		off += config.FloatSize
	}

	putFloat32(buf, 0, float32(f.FrameNumber))
	putFloat32(buf, 4, float32(f.Time))
	putFloat32(buf, 8, float32(agentCount))

	return models.CachedFrame{
		Data:        buf,
		FrameNumber: f.FrameNumber,
		Time:        float64(float32(f.Time)),
		AgentCount:  agentCount,
		Size:        size,
	}, nil
}

// EncodeBundle 编码整个帧包, 遇到第一个错误即返回
func EncodeBundle(msg VisDataMessage) ([]models.CachedFrame, error) {
	frames := make([]models.CachedFrame, 0, len(msg.BundleData))
	for _, wf := range msg.BundleData {
		f, err := Encode(wf)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// countAgents 逐条遍历 agent 记录, 校验每条记录长度
func countAgents(data []float64) (int, error) {
	count := 0
	pos := 0
	for pos < len(data) {
		remaining := len(data) - pos
		if remaining < config.AgentFixedFields {
			return 0, &MalformedDataError{
				Expected: config.AgentFixedFields,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "truncated agent record",
			}
		}

		n := data[pos+config.SubpointCountField]
		if n < 0 || n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, &MalformedDataError{
				Expected: config.AgentFixedFields,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "invalid subpoint count",
			}
		}

		chunk := config.AgentFixedFields + int(n)
		if chunk > remaining {
			return 0, &MalformedDataError{
				Expected: chunk,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "subpoint count overruns frame data",
			}
		}

		pos += chunk
		count++
	}
	return count, nil
}

// ReadHeader 读取规范帧头
func ReadHeader(data []byte) (FrameHeader, error) {
	if len(data) < config.FrameHeaderSize {
		return FrameHeader{}, &MalformedDataError{
			Expected: config.FrameHeaderSize,
			Actual:   len(data),
			Reason:   "frame shorter than header",
		}
	}
	return FrameHeader{
		FrameNumber: int(float32At(data, 0)),
		Time:        float64(float32At(data, 4)),
		AgentCount:  int(float32At(data, 8)),
	}, nil
}

// FrameFromBinary 把已是规范布局的数据包装为 CachedFrame (不拷贝)
func FrameFromBinary(data []byte) (models.CachedFrame, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return models.EmptyFrame, err
	}
	return models.CachedFrame{
		Data:        data,
		FrameNumber: h.FrameNumber,
		Time:        h.Time,
		AgentCount:  h.AgentCount,
		Size:        len(data),
	}, nil
}

// Decode 解析规范帧, 返回帧头和所有 agent 记录
func Decode(data []byte) (FrameHeader, []models.AgentRecord, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return FrameHeader{}, nil, err
	}
	if len(data)%config.FloatSize != 0 {
		return h, nil, &MalformedDataError{
			Expected: len(data) - len(data)%config.FloatSize,
			Actual:   len(data),
			Reason:   "frame length is not a multiple of 4",
		}
	}

	total := len(data) / config.FloatSize
	pos := config.FrameHeaderFields
	if h.AgentCount < 0 || h.AgentCount > (total-pos)/config.AgentFixedFields {
		return h, nil, &MalformedDataError{
			Expected: h.AgentCount * config.AgentFixedFields,
			Actual:   total - pos,
			Offset:   2,
			Reason:   "agent count does not fit frame data",
		}
	}
	agents := make([]models.AgentRecord, 0, h.AgentCount)

	for i := 0; i < h.AgentCount; i++ {
		remaining := total - pos
		if remaining < config.AgentFixedFields {
			return h, nil, &MalformedDataError{
				Expected: config.AgentFixedFields,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "truncated agent record",
			}
		}

		f := func(k int) float32 { return float32At(data, (pos+k)*config.FloatSize) }
		sub := float64(f(config.SubpointCountField))
		if sub < 0 || sub != math.Trunc(sub) || sub > float64(remaining) {
			return h, nil, &MalformedDataError{
				Expected: config.AgentFixedFields,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "invalid subpoint count",
			}
		}
		n := int(sub)
		chunk := config.AgentFixedFields + n
		if chunk > remaining {
			return h, nil, &MalformedDataError{
				Expected: chunk,
				Actual:   remaining,
				Offset:   pos,
				Reason:   "subpoint count overruns frame data",
			}
		}

		a := models.AgentRecord{
			VisType:         f(0),
			InstanceID:      f(1),
			TypeID:          f(2),
			X:               f(3),
			Y:               f(4),
			Z:               f(5),
			XRot:            f(6),
			YRot:            f(7),
			ZRot:            f(8),
			CollisionRadius: f(9),
			Subpoints:       make([]float32, n),
		}
		for j := 0; j < n; j++ {
			a.Subpoints[j] = f(config.AgentFixedFields + j)
		}
		agents = append(agents, a)
		pos += chunk
	}

	return h, agents, nil
}

func putFloat32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

func float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}
