package trajfile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// ErrJSONFormat JSON 轨迹文件格式错误
var ErrJSONFormat = errors.New("json trajectory format error")

// jsonDocument JSON 轨迹文件结构
type jsonDocument struct {
	TrajectoryInfo json.RawMessage       `json:"trajectoryInfo"`
	SpatialData    *codec.VisDataMessage `json:"spatialData"`
	PlotData       json.RawMessage       `json:"plotData,omitempty"`
}

// JSONReader JSON 轨迹文件, 帧在加载时编码为规范布局
type JSONReader struct {
	info   models.TrajectoryInfo
	plot   json.RawMessage
	frames []models.CachedFrame
}

// ParseJSON 解析 JSON 轨迹文件
func ParseJSON(raw []byte) (*JSONReader, error) {
	var doc jsonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONFormat, err)
	}
	if len(doc.TrajectoryInfo) == 0 {
		return nil, fmt.Errorf("%w: missing trajectoryInfo", ErrJSONFormat)
	}
	if doc.SpatialData == nil {
		return nil, fmt.Errorf("%w: missing spatialData", ErrJSONFormat)
	}

	r := &JSONReader{}
	if err := json.Unmarshal(doc.TrajectoryInfo, &r.info); err != nil {
		return nil, fmt.Errorf("%w: trajectoryInfo: %v", ErrJSONFormat, err)
	}
	frames, err := codec.EncodeBundle(*doc.SpatialData)
	if err != nil {
		return nil, fmt.Errorf("spatialData: %w", err)
	}
	r.frames = frames
	if len(doc.PlotData) > 0 && string(doc.PlotData) != "null" {
		r.plot = append(json.RawMessage(nil), doc.PlotData...)
	}
	return r, nil
}

// NumFrames 帧数
func (r *JSONReader) NumFrames() int {
	return len(r.frames)
}

// FrameIndexAtTime 线性扫描, 未找到返回 -1
func (r *JSONReader) FrameIndexAtTime(t float64) int {
	for i, f := range r.frames {
		if models.CompareTimes(t, f.Time, r.info.TimeStepSize) == 0 {
			return i
		}
	}
	return -1
}

// Frame 第 i 帧的规范字节
func (r *JSONReader) Frame(i int) ([]byte, error) {
	f, err := r.CachedFrame(i)
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}

// CachedFrame 第 i 帧
func (r *JSONReader) CachedFrame(i int) (models.CachedFrame, error) {
	if i < 0 || i >= len(r.frames) {
		return models.EmptyFrame, fmt.Errorf("%w: %d not in [0, %d)", container.ErrFrameOutOfRange, i, len(r.frames))
	}
	return r.frames[i], nil
}

// TrajectoryInfo 轨迹元数据
func (r *JSONReader) TrajectoryInfo() models.TrajectoryInfo {
	return r.info
}

// PlotData 图表数据 (可能为 nil)
func (r *JSONReader) PlotData() json.RawMessage {
	return r.plot
}
