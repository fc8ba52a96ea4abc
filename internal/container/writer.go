package container

import (
	"encoding/binary"
	"encoding/json"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
)

// Contents 生成容器文件所需的内容
type Contents struct {
	Version        int
	SpatialVersion int
	Info           any             // 序列化为元数据块
	Plot           json.RawMessage // 可选
	Frames         [][]byte        // 规范帧
}

// Encode 按容器格式写出完整文件 (元数据块, 空间数据块, 可选图表块)
func Encode(c Contents) ([]byte, error) {
	info, err := json.Marshal(c.Info)
	if err != nil {
		return nil, err
	}

	spatialSize := 8 + 4*len(c.Frames)
	for _, f := range c.Frames {
		spatialSize += len(f)
	}
	spatial := make([]byte, spatialSize)
	putInt32(spatial, 0, c.SpatialVersion)
	putInt32(spatial, 4, len(c.Frames))
	off := 8 + 4*len(c.Frames)
	for i, f := range c.Frames {
		putInt32(spatial, 8+4*i, off)
		copy(spatial[off:], f)
		off += len(f)
	}

	type block struct {
		typ     int
		payload []byte
	}
	blocks := []block{
		{config.BlockTypeTrajectoryInfo, pad4(info)},
		{config.BlockTypeSpatialData, spatial},
	}
	if len(c.Plot) > 0 {
		blocks = append(blocks, block{config.BlockTypePlotData, pad4(c.Plot)})
	}

	headerLength := config.MarkerSize + config.HeaderFieldsSize + len(blocks)*config.BlockInfoSize
	total := headerLength
	for _, b := range blocks {
		total += config.BlockSubHeaderSize + len(b.payload)
	}

	out := make([]byte, total)
	copy(out, config.BinaryMarker)
	putInt32(out, 16, headerLength)
	putInt32(out, 20, c.Version)
	putInt32(out, 24, len(blocks))

	pos := headerLength
	for i, b := range blocks {
		size := config.BlockSubHeaderSize + len(b.payload)
		entry := 28 + i*config.BlockInfoSize
		putInt32(out, entry, pos)
		putInt32(out, entry+4, b.typ)
		putInt32(out, entry+8, size)

		putInt32(out, pos, size)
		putInt32(out, pos+4, b.typ)
		copy(out[pos+config.BlockSubHeaderSize:], b.payload)
		pos += size
	}

	return out, nil
}

// pad4 JSON 文本补空格到 4 字节边界
func pad4(b []byte) []byte {
	b = append([]byte(nil), b...)
	for len(b)%4 != 0 {
		b = append(b, ' ')
	}
	return b
}

func putInt32(buf []byte, off, v int) {
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(int32(v)))
}
