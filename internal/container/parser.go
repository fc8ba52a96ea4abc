// Package container 解析 SIMULARIUMBINARY 块结构容器文件
package container

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// BinaryReader 已解析的容器文件
// 解析后只读; Frame 返回的切片直接指向 raw
type BinaryReader struct {
	raw     []byte
	header  models.ContainerHeader
	info    models.TrajectoryInfo
	infoRaw json.RawMessage
	plot    json.RawMessage
	spatial []byte // 空间数据块 payload (不含 8 字节子头)
	index   models.SpatialIndex
}

// IsBinary 检查文件头标识
func IsBinary(raw []byte) bool {
	return len(raw) >= config.MarkerSize && string(raw[:config.MarkerSize]) == config.BinaryMarker
}

// Parse 解析完整的容器文件
func Parse(raw []byte) (*BinaryReader, error) {
	if !IsBinary(raw) {
		return nil, formatErrorf("missing %s marker", config.BinaryMarker)
	}

	header, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	r := &BinaryReader{raw: raw, header: header}

	infoCount, spatialCount, plotCount := 0, 0, 0
	for i, b := range header.Blocks {
		switch b.Type {
		case config.BlockTypeTrajectoryInfo:
			payload, err := readBlock(raw, i, b)
			if err != nil {
				return nil, err
			}
			infoCount++
			if infoCount > 1 {
				return nil, formatErrorf("multiple trajectory info blocks")
			}
			if err := r.parseTrajectoryInfo(payload); err != nil {
				return nil, err
			}

		case config.BlockTypeSpatialData:
			payload, err := readBlock(raw, i, b)
			if err != nil {
				return nil, err
			}
			spatialCount++
			if spatialCount > 1 {
				return nil, formatErrorf("multiple spatial data blocks")
			}
			if err := r.parseSpatialData(payload); err != nil {
				return nil, err
			}

		case config.BlockTypePlotData:
			payload, err := readBlock(raw, i, b)
			if err != nil {
				return nil, err
			}
			plotCount++
			if plotCount > 1 {
				return nil, formatErrorf("multiple plot data blocks")
			}
			if !utf8.Valid(payload) || !json.Valid(payload) {
				return nil, formatErrorf("plot data block is not valid UTF-8 JSON")
			}
			r.plot = json.RawMessage(payload)

		default:
			// 保留块 / 未知块: 不读取
			msg := "跳过保留块"
			if !config.IsKnownBlockType(b.Type) {
				msg = "跳过未知块"
			}
			logging.LogDebug(msg, "index", i, "type", b.Type, "size", b.Size)
		}
	}

	if infoCount == 0 {
		return nil, formatErrorf("missing trajectory info block")
	}
	if spatialCount == 0 {
		return nil, formatErrorf("missing spatial data block")
	}

	logging.LogDebug("容器解析完成",
		"version", header.Version,
		"blocks", len(header.Blocks),
		"frames", r.index.FrameCount)
	return r, nil
}

// parseHeader 解析标识之后的整数头: headerLength, version, blockCount, blockCount * (offset, type, size)
func parseHeader(raw []byte) (models.ContainerHeader, error) {
	var h models.ContainerHeader

	pos := config.MarkerSize
	if len(raw) < pos+config.HeaderFieldsSize {
		return h, formatErrorf("file too small for header: %d bytes", len(raw))
	}

	h.HeaderLength = int32At(raw, pos)
	h.Version = int32At(raw, pos+4)
	blockCount := int32At(raw, pos+8)
	pos += config.HeaderFieldsSize

	if blockCount < 1 {
		return h, formatErrorf("invalid block count: %d", blockCount)
	}
	tableEnd := pos + blockCount*config.BlockInfoSize
	if blockCount > len(raw)/config.BlockInfoSize || tableEnd > len(raw) {
		return h, formatErrorf("block table (%d blocks) exceeds file size %d", blockCount, len(raw))
	}

	h.Blocks = make([]models.BlockInfo, blockCount)
	for i := range h.Blocks {
		h.Blocks[i] = models.BlockInfo{
			Offset: int32At(raw, pos),
			Type:   int32At(raw, pos+4),
			Size:   int32At(raw, pos+8),
		}
		pos += config.BlockInfoSize
	}

	if h.Blocks[0].Offset != h.HeaderLength {
		return h, formatErrorf("first block offset %d does not match header length %d",
			h.Blocks[0].Offset, h.HeaderLength)
	}

	return h, nil
}

// readBlock 校验块内子头 (size, type) 与头表一致, 返回不含子头的 payload
func readBlock(raw []byte, index int, b models.BlockInfo) ([]byte, error) {
	if b.Offset < 0 || b.Size < config.BlockSubHeaderSize || b.Offset+b.Size > len(raw) {
		return nil, &FormatError{
			Reason:     fmt.Sprintf("block %d range [%d, %d) outside file of %d bytes", index, b.Offset, b.Offset+b.Size, len(raw)),
			BlockIndex: index,
		}
	}

	blockSize := int32At(raw, b.Offset)
	blockType := int32At(raw, b.Offset+4)

	if blockSize != b.Size {
		return nil, &FormatError{BlockIndex: index, Field: "size", Header: b.Size, Block: blockSize}
	}
	if blockType != b.Type {
		return nil, &FormatError{BlockIndex: index, Field: "type", Header: b.Type, Block: blockType}
	}

	return raw[b.Offset+config.BlockSubHeaderSize : b.Offset+b.Size], nil
}

func (r *BinaryReader) parseTrajectoryInfo(payload []byte) error {
	if !utf8.Valid(payload) {
		return formatErrorf("trajectory info block is not valid UTF-8")
	}
	var info models.TrajectoryInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return &FormatError{Reason: fmt.Sprintf("trajectory info: %v", err), BlockIndex: -1}
	}
	r.info = info
	r.infoRaw = json.RawMessage(payload)
	return nil
}

// parseSpatialData 解析空间数据 payload: version, N, N * offset, N 帧
func (r *BinaryReader) parseSpatialData(payload []byte) error {
	if len(payload) < 8 {
		return formatErrorf("spatial data block too small: %d bytes", len(payload))
	}

	version := int32At(payload, 0)
	n := int32At(payload, 4)
	if n < 0 || n > (len(payload)-8)/4 {
		return formatErrorf("invalid spatial frame count: %d", n)
	}

	dataStart := 8 + 4*n
	offsets := make([]int, n)
	prev := dataStart
	for i := 0; i < n; i++ {
		off := int32At(payload, 8+4*i)
		if off < prev || off+config.FrameHeaderSize > len(payload) {
			return formatErrorf("invalid offset %d for frame %d", off, i)
		}
		offsets[i] = off
		prev = off + config.FrameHeaderSize
	}

	r.spatial = payload
	r.index = models.SpatialIndex{
		Version:      version,
		FrameCount:   n,
		FrameOffsets: offsets,
	}
	return nil
}

// ==================== 查询方法 ====================

// NumFrames 帧数
func (r *BinaryReader) NumFrames() int {
	return r.index.FrameCount
}

// Frame 返回第 i 帧的字节 (指向已加载缓冲区的切片, 不拷贝)
func (r *BinaryReader) Frame(i int) ([]byte, error) {
	if i < 0 || i >= r.index.FrameCount {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, i, r.index.FrameCount)
	}
	start := r.index.FrameOffsets[i]
	end := len(r.spatial)
	if i+1 < r.index.FrameCount {
		end = r.index.FrameOffsets[i+1]
	}
	return r.spatial[start:end:end], nil
}

// CachedFrame 第 i 帧包装为 models.CachedFrame (Data 仍指向已加载缓冲区)
func (r *BinaryReader) CachedFrame(i int) (models.CachedFrame, error) {
	data, err := r.Frame(i)
	if err != nil {
		return models.EmptyFrame, err
	}
	return models.CachedFrame{
		Data:        data,
		FrameNumber: int(float32At(data, 0)),
		Time:        float64(float32At(data, 4)),
		AgentCount:  int(float32At(data, 8)),
		Size:        len(data),
	}, nil
}

// FrameTime 读取第 i 帧的 time 字段
func (r *BinaryReader) FrameTime(i int) (float64, error) {
	data, err := r.Frame(i)
	if err != nil {
		return 0, err
	}
	return float64(float32At(data, 4)), nil
}

// FrameIndexAtTime 线性扫描查找时间对应的帧下标, 未找到返回 -1
func (r *BinaryReader) FrameIndexAtTime(t float64) int {
	for i, off := range r.index.FrameOffsets {
		frameTime := float64(float32At(r.spatial, off+4))
		if models.CompareTimes(t, frameTime, r.info.TimeStepSize) == 0 {
			return i
		}
	}
	return -1
}

// TrajectoryInfo 轨迹元数据
func (r *BinaryReader) TrajectoryInfo() models.TrajectoryInfo {
	return r.info
}

// TrajectoryInfoJSON 元数据块原始 JSON
func (r *BinaryReader) TrajectoryInfoJSON() json.RawMessage {
	return r.infoRaw
}

// PlotData 图表数据块 (可能为 nil)
func (r *BinaryReader) PlotData() json.RawMessage {
	return r.plot
}

// Header 文件头
func (r *BinaryReader) Header() models.ContainerHeader {
	return r.header
}

// SpatialIndex 帧偏移索引
func (r *BinaryReader) SpatialIndex() models.SpatialIndex {
	return r.index
}

// Len 文件总字节数
func (r *BinaryReader) Len() int {
	return len(r.raw)
}

func int32At(buf []byte, off int) int {
	return int(int32(binary.LittleEndian.Uint32(buf[off : off+4])))
}

func float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}
