package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
	"github.com/simularium/simularium-viewer-sub001/internal/stream"
	"github.com/simularium/simularium-viewer-sub001/internal/trajfile"
)

var (
	// ErrNotLoaded 没有打开的轨迹
	ErrNotLoaded = errors.New("no trajectory loaded")
	// ErrInvalidName 文件名不在存储目录内
	ErrInvalidName = errors.New("invalid trajectory file name")
	// ErrNoPlotData 轨迹没有图表数据
	ErrNoPlotData = errors.New("trajectory has no plot data")
)

const maxFileHistory = 10

// openFile 带引用计数的已打开文件, 引用归零时释放 mmap
type openFile struct {
	*trajfile.File
	refs atomic.Int32
}

func (f *openFile) acquire() *openFile {
	f.refs.Add(1)
	return f
}

func (f *openFile) release() {
	if f.refs.Add(-1) == 0 {
		if err := f.File.Close(); err != nil {
			logging.LogWarn("关闭轨迹文件失败", "file", f.Name(), "error", err)
		}
	}
}

// TrajectoryServer 轨迹服务核心: 当前文件, 服务端会话, 最近打开记录
type TrajectoryServer struct {
	mu      sync.RWMutex
	cfg     config.Config
	current *openFile
	session *stream.Session
	history []string
}

// NewTrajectoryServer 创建服务
func NewTrajectoryServer(cfg config.Config) *TrajectoryServer {
	return &TrajectoryServer{
		cfg:     cfg,
		session: stream.NewSession(stream.OptionsFromConfig(cfg)),
	}
}

// SetStoragePath 修改存储目录
func (s *TrajectoryServer) SetStoragePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	s.mu.Lock()
	s.cfg.StoragePath = path
	s.mu.Unlock()
	return nil
}

// SetCachePolicy 修改服务端会话和后续会话的缓存策略
func (s *TrajectoryServer) SetCachePolicy(enabled bool, maxSize int) error {
	if maxSize < config.UnboundedCacheSize {
		return fmt.Errorf("invalid max cache size: %d", maxSize)
	}
	s.mu.Lock()
	s.cfg.CacheEnabled = enabled
	s.cfg.MaxCacheSize = maxSize
	s.mu.Unlock()

	s.session.SetCacheEnabled(enabled)
	s.session.SetMaxCacheSize(maxSize)
	return nil
}

// Open 打开存储目录下的轨迹文件, 替换当前文件
func (s *TrajectoryServer) Open(name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.RLock()
	path := filepath.Join(s.cfg.StoragePath, name)
	s.mu.RUnlock()

	f, err := trajfile.Open(path)
	if err != nil {
		return err
	}
	return s.setCurrent(f)
}

// Load 使用已打开的文件 (测试和内存数据)
func (s *TrajectoryServer) Load(f *trajfile.File) error {
	return s.setCurrent(f)
}

func (s *TrajectoryServer) setCurrent(f *trajfile.File) error {
	next := &openFile{File: f}
	next.acquire()

	s.mu.Lock()
	old := s.current
	s.current = next
	s.addToHistory(f.Name())
	s.mu.Unlock()

	s.session.SwitchTrajectory(f.Name(), f)
	if old != nil {
		old.release()
	}

	logging.LogInfo("已加载轨迹", "file", f.Name(), "format", f.Format, "frames", f.NumFrames())
	return nil
}

// addToHistory 最近打开的文件放在最前, 去重 (调用方持有写锁)
func (s *TrajectoryServer) addToHistory(name string) {
	history := []string{name}
	for _, h := range s.history {
		if h != name {
			history = append(history, h)
		}
	}
	if len(history) > maxFileHistory {
		history = history[:maxFileHistory]
	}
	s.history = history
}

// acquire 获取当前文件的引用, 用完后必须 release
func (s *TrajectoryServer) acquire() (*openFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotLoaded
	}
	return s.current.acquire(), nil
}

// Files 存储目录中的轨迹文件
func (s *TrajectoryServer) Files() ([]trajfile.Entry, error) {
	s.mu.RLock()
	dir := s.cfg.StoragePath
	s.mu.RUnlock()
	return trajfile.List(dir)
}

// TrajectoryInfo 当前轨迹元数据和帧数
func (s *TrajectoryServer) TrajectoryInfo() (models.TrajectoryInfo, int, error) {
	f, err := s.acquire()
	if err != nil {
		return models.TrajectoryInfo{}, 0, err
	}
	defer f.release()
	return f.TrajectoryInfo(), f.NumFrames(), nil
}

// PlotData 当前轨迹的图表数据
func (s *TrajectoryServer) PlotData() (json.RawMessage, error) {
	f, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer f.release()

	plot := f.PlotData()
	if plot == nil {
		return nil, ErrNoPlotData
	}
	return bytes.Clone(plot), nil
}

// FrameIndexAtTime 当前轨迹中该时间的帧下标
func (s *TrajectoryServer) FrameIndexAtTime(t float64) (int, error) {
	f, err := s.acquire()
	if err != nil {
		return -1, err
	}
	defer f.release()
	return f.FrameIndexAtTime(t), nil
}

// Frame 第 i 帧, 优先从服务端会话缓存读取, 未命中时从文件加载并放入缓存
func (s *TrajectoryServer) Frame(i int) (models.CachedFrame, error) {
	f, err := s.acquire()
	if err != nil {
		return models.EmptyFrame, err
	}
	defer f.release()

	fileFrame, err := f.CachedFrame(i)
	if err != nil {
		return models.EmptyFrame, err
	}
	if cached, ok := s.session.Lookup(fileFrame.FrameNumber); ok {
		return cached, nil
	}

	fileFrame.Data = bytes.Clone(fileFrame.Data)
	if err := s.session.Ingest(stream.BinaryInput(fileFrame.Data, false)); err != nil {
		return models.EmptyFrame, err
	}
	s.session.GotoFrameNumber(fileFrame.FrameNumber)
	return fileFrame, nil
}

// Status 服务状态
type Status struct {
	StoragePath  string   `json:"storagePath"`
	Loaded       bool     `json:"loaded"`
	FileName     string   `json:"fileName,omitempty"`
	Format       string   `json:"format,omitempty"`
	NumFrames    int      `json:"numFrames"`
	CacheEnabled bool     `json:"cacheEnabled"`
	MaxCacheSize int      `json:"maxCacheSize"`
	FileHistory  []string `json:"fileHistory"`
}

// Status 当前配置和加载状态
func (s *TrajectoryServer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		StoragePath:  s.cfg.StoragePath,
		CacheEnabled: s.cfg.CacheEnabled,
		MaxCacheSize: s.cfg.MaxCacheSize,
		FileHistory:  append([]string{}, s.history...),
	}
	if s.current != nil {
		st.Loaded = true
		st.FileName = s.current.Name()
		st.Format = string(s.current.Format)
		st.NumFrames = s.current.NumFrames()
	}
	return st
}

// CacheStatus 服务端会话统计
func (s *TrajectoryServer) CacheStatus() stream.Stats {
	return s.session.Stats()
}

// Config 当前配置
func (s *TrajectoryServer) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close 关闭会话, 释放当前文件
func (s *TrajectoryServer) Close() {
	s.session.Close()

	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if cur != nil {
		cur.release()
	}
}
