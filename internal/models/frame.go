package models

// CachedFrame 规范布局的单帧
// Data: frameNumber(f32) + time(f32) + agentCount(f32) + agentCount 条 agent 记录
type CachedFrame struct {
	Data        []byte
	FrameNumber int
	Time        float64
	AgentCount  int
	Size        int // 占用字节数, 等于 len(Data)
}

// EmptyFrame 空帧哨兵, 查询失败时返回
var EmptyFrame = CachedFrame{
	FrameNumber: -1,
	Time:        -1,
}

// IsEmpty 是否为空帧哨兵
func (f CachedFrame) IsEmpty() bool {
	return f.Data == nil && f.FrameNumber == -1
}

// AgentRecord 单个 agent 记录 (11 个固定字段 + 子点)
type AgentRecord struct {
	VisType         float32   `json:"visType"`
	InstanceID      float32   `json:"instanceId"`
	TypeID          float32   `json:"typeId"`
	X               float32   `json:"x"`
	Y               float32   `json:"y"`
	Z               float32   `json:"z"`
	XRot            float32   `json:"xrot"`
	YRot            float32   `json:"yrot"`
	ZRot            float32   `json:"zrot"`
	CollisionRadius float32   `json:"cr"`
	Subpoints       []float32 `json:"subpoints"`
}

// Fields 记录的扁平数值形式 (与线上格式字段顺序一致)
func (a AgentRecord) Fields() []float64 {
	out := make([]float64, 0, 11+len(a.Subpoints))
	out = append(out,
		float64(a.VisType), float64(a.InstanceID), float64(a.TypeID),
		float64(a.X), float64(a.Y), float64(a.Z),
		float64(a.XRot), float64(a.YRot), float64(a.ZRot),
		float64(a.CollisionRadius), float64(len(a.Subpoints)))
	for _, p := range a.Subpoints {
		out = append(out, float64(p))
	}
	return out
}

// 可视化类型
const (
	VisTypeDefault = 1000
	VisTypeFiber   = 1001
)

// BlockInfo 容器文件块信息
type BlockInfo struct {
	Type   int `json:"type"`
	Offset int `json:"offset"`
	Size   int `json:"size"`
}

// ContainerHeader 容器文件头
type ContainerHeader struct {
	HeaderLength int         `json:"headerLength"`
	Version      int         `json:"version"`
	Blocks       []BlockInfo `json:"blocks"`
}

// SpatialIndex 空间数据块的帧偏移索引 (相对于 payload 起始)
type SpatialIndex struct {
	Version      int   `json:"version"`
	FrameCount   int   `json:"frameCount"`
	FrameOffsets []int `json:"frameOffsets"`
}

// Vector3 三维向量
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnitInfo 单位
type UnitInfo struct {
	Magnitude float64 `json:"magnitude"`
	Name      string  `json:"name"`
}

// CameraInfo 默认相机
type CameraInfo struct {
	Position       Vector3 `json:"position"`
	LookAtPosition Vector3 `json:"lookAtPosition"`
	UpVector       Vector3 `json:"upVector"`
	FovDegrees     float64 `json:"fovDegrees"`
}

// GeometryInfo agent 类型几何信息
type GeometryInfo struct {
	DisplayType string `json:"displayType"`
	URL         string `json:"url,omitempty"`
	Color       string `json:"color,omitempty"`
}

// TypeMapping agent 类型映射
type TypeMapping struct {
	Name     string        `json:"name"`
	Geometry *GeometryInfo `json:"geometry,omitempty"`
}

// TrajectoryInfo 轨迹元数据 (元数据块 JSON)
type TrajectoryInfo struct {
	Version         int                    `json:"version"`
	TimeUnits       *UnitInfo              `json:"timeUnits,omitempty"`
	TimeStepSize    float64                `json:"timeStepSize"`
	TotalSteps      int                    `json:"totalSteps"`
	SpatialUnits    *UnitInfo              `json:"spatialUnits,omitempty"`
	Size            Vector3                `json:"size"`
	CameraDefault   *CameraInfo            `json:"cameraDefault,omitempty"`
	TypeMapping     map[string]TypeMapping `json:"typeMapping"`
	TrajectoryTitle string                 `json:"trajectoryTitle,omitempty"`
	ModelInfo       map[string]any         `json:"modelInfo,omitempty"`
}
