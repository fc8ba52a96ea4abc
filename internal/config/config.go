package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// 容器文件常量
	BinaryMarker       = "SIMULARIUMBINARY" // 文件头标识 (16 字节)
	MarkerSize         = 16
	HeaderFieldsSize   = 12 // headerLength(4) + version(4) + blockCount(4)
	BlockInfoSize      = 12 // offset(4) + type(4) + size(4)
	BlockSubHeaderSize = 8  // size(4) + type(4)

	// 块类型
	BlockTypeTrajectoryInfo    = 0
	BlockTypeTrajectoryInfoAlt = 1 // 保留
	BlockTypePlotData          = 2
	BlockTypeSpatialData       = 3

	// 规范帧布局
	FrameHeaderFields  = 3  // frameNumber, time, agentCount
	FrameHeaderSize    = 12 // 3 * float32
	AgentFixedFields   = 11
	SubpointCountField = 10 // 在 11 个固定字段中的下标
	FloatSize          = 4

	// 传输封包消息类型
	MsgTypeVisDataArrive  = 1
	MsgTypeVisDataRequest = 2
	MsgTypeVisDataFinish  = 3
	MsgTypeTrajectoryInfo = 13
	EnvelopeFixedFields   = 2 // msgType, nameLength

	// 时间比较容差 = timeStepSize * TimeToleranceFactor
	TimeToleranceFactor   = 0.01
	FallbackTimeTolerance = 1e-6

	// 缓存与解析
	UnboundedCacheSize  = -1
	DefaultMaxCacheSize = 256 * 1024 * 1024 // 256MB
	DefaultParseWorkers = 2
	DefaultJobQueueSize = 64
	DefaultPlaybackFPS  = 30.0

	TrajectoryFileExt      = ".simularium"
	DefaultTrajectoryTitle = "untitled"
)

var (
	// 默认配置
	DefaultStoragePath = "./trajectories"
	Host               = "0.0.0.0"
	Port               = 8000
)

// Config 运行时配置
type Config struct {
	Host         string
	Port         int
	StoragePath  string
	CacheEnabled bool
	MaxCacheSize int // -1 表示不限制
	ParseWorkers int
	JobQueueSize int
	PlaybackFPS  float64
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Host:         Host,
		Port:         Port,
		StoragePath:  DefaultStoragePath,
		CacheEnabled: true,
		MaxCacheSize: DefaultMaxCacheSize,
		ParseWorkers: DefaultParseWorkers,
		JobQueueSize: DefaultJobQueueSize,
		PlaybackFPS:  DefaultPlaybackFPS,
	}
}

// FromEnv 在默认配置上叠加 SIMULARIUM_* 环境变量
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("SIMULARIUM_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("SIMULARIUM_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SIMULARIUM_PORT", &cfg.Port},
		{"SIMULARIUM_MAX_CACHE_SIZE", &cfg.MaxCacheSize},
		{"SIMULARIUM_PARSE_WORKERS", &cfg.ParseWorkers},
		{"SIMULARIUM_JOB_QUEUE_SIZE", &cfg.JobQueueSize},
	}
	for _, it := range ints {
		v := os.Getenv(it.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}

	if v := os.Getenv("SIMULARIUM_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("SIMULARIUM_CACHE_ENABLED: %w", err)
		}
		cfg.CacheEnabled = b
	}
	if v := os.Getenv("SIMULARIUM_PLAYBACK_FPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("SIMULARIUM_PLAYBACK_FPS: %w", err)
		}
		cfg.PlaybackFPS = f
	}

	return cfg, cfg.Validate()
}

// Validate 检查配置是否有效
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxCacheSize < UnboundedCacheSize {
		return fmt.Errorf("invalid max cache size: %d", c.MaxCacheSize)
	}
	if c.ParseWorkers < 0 {
		return fmt.Errorf("invalid parse workers: %d", c.ParseWorkers)
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("invalid job queue size: %d", c.JobQueueSize)
	}
	if c.PlaybackFPS <= 0 {
		return fmt.Errorf("invalid playback fps: %v", c.PlaybackFPS)
	}
	return nil
}

// IsKnownBlockType 检查块类型是否有效
func IsKnownBlockType(t int) bool {
	return t == BlockTypeTrajectoryInfo || t == BlockTypeTrajectoryInfoAlt ||
		t == BlockTypePlotData || t == BlockTypeSpatialData
}
