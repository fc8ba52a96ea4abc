// Package stream 协调帧摄入与播放: 规范化, 缓存, 后台解析与定位
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/framecache"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
	"github.com/simularium/simularium-viewer-sub001/internal/trajfile"
)

var (
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("stream session closed")
	// ErrNoTrajectory 会话没有绑定轨迹文件
	ErrNoTrajectory = errors.New("no trajectory bound")
)

// Options 会话参数
type Options struct {
	Cache     framecache.Options
	Workers   int
	QueueSize int
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Cache:     framecache.DefaultOptions(),
		Workers:   config.DefaultParseWorkers,
		QueueSize: config.DefaultJobQueueSize,
	}
}

// OptionsFromConfig 由运行时配置生成
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.Cache.Enabled = cfg.CacheEnabled
	opts.Cache.MaxSize = cfg.MaxCacheSize
	opts.Workers = cfg.ParseWorkers
	opts.QueueSize = cfg.JobQueueSize
	return opts
}

// Stats 会话统计
type Stats struct {
	ID             string           `json:"id"`
	Trajectory     string           `json:"trajectory"`
	Generation     uint64           `json:"generation"`
	Ingested       int              `json:"ingested"`
	DroppedByGate  int              `json:"droppedByGate"`
	StaleDiscarded int              `json:"staleDiscarded"`
	ParseFailures  int              `json:"parseFailures"`
	Restarts       int              `json:"restarts"` // 向后跳转导致的缓存重建
	Pending        int              `json:"pending"`
	CurrentFrame   int              `json:"currentFrame"`
	WaitingFor     int              `json:"waitingFor"`
	Cache          framecache.Stats `json:"cache"`
}

// Session 一个播放会话: 一份帧缓存, 播放指针, 等待门, 后台解析
type Session struct {
	id   string
	opts Options

	// pipeMu 保护 pipe 的替换; 发送任务时持读锁, 避免向已关闭通道发送
	pipeMu sync.RWMutex
	pipe   *pipeline

	mu         sync.Mutex
	cache      *framecache.Cache
	reader     trajfile.Reader
	trajectory string
	current    int // 当前帧号, -1 表示默认使用第一帧
	waitFor    int // -1 表示未设置等待
	generation uint64
	nextSeq    uint64
	mergeSeq   uint64
	pending    map[uint64]result
	changed    chan struct{}
	closed     bool
	stats      Stats

	wg sync.WaitGroup
}

// NewSession 创建会话并启动后台解析
func NewSession(opts Options) *Session {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = config.DefaultJobQueueSize
	}

	s := &Session{
		id:      uuid.New().String(),
		opts:    opts,
		current: -1,
		waitFor: -1,
		pending: make(map[uint64]result),
		changed: make(chan struct{}),
	}
	if opts.Cache.Notifier == nil {
		opts.Cache.Notifier = func(err error) {
			logging.LogWarn("帧访问失败", "session", s.id, "error", err)
		}
	}
	s.cache = framecache.New(opts.Cache)
	s.pipe = s.startPipeline(s.generation)

	logging.LogDebug("创建会话", "session", s.id, "workers", opts.Workers)
	return s
}

// ID 会话 ID
func (s *Session) ID() string {
	return s.id
}

// ==================== 摄入 ====================

// Ingest 同步规范化并插入缓存
func (s *Session) Ingest(in Input) error {
	f, err := in.normalize()
	if err != nil {
		return fmt.Errorf("ingest %s frame: %w", in.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.insertLocked(f)
	s.broadcastLocked()
	return nil
}

// Submit 交给后台解析, 结果按提交顺序合并
// 队列满时阻塞
func (s *Session) Submit(in Input) error {
	s.pipeMu.RLock()
	defer s.pipeMu.RUnlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	j := job{generation: s.generation, seq: s.nextSeq, input: in}
	s.nextSeq++
	p := s.pipe
	s.mu.Unlock()

	p.jobs <- j
	return nil
}

// insertLocked 经过等待门后插入缓存
// 帧号不大于缓存中最新帧时 (向后跳转) 先清空缓存, 保持缓存内帧号递增
func (s *Session) insertLocked(f models.CachedFrame) {
	if s.waitFor >= 0 {
		if f.FrameNumber != s.waitFor {
			s.stats.DroppedByGate++
			return
		}
		s.waitFor = -1
	}
	if s.cache.NumFrames() > 0 && f.FrameNumber <= s.cache.LastFrame().FrameNumber {
		s.cache.Clear()
		s.current = -1
		s.stats.Restarts++
		logging.LogDebug("向后跳转, 重新缓存", "session", s.id, "frame", f.FrameNumber)
	}
	s.cache.AddFrame(f)
	s.stats.Ingested++
}

// broadcastLocked 唤醒所有 WaitIdle 调用
func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// WaitIdle 等待当前代所有已提交任务合并完成
func (s *Session) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.mergeSeq == s.nextSeq || s.closed {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Changed 下一次缓存变化时关闭的通道
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// ==================== 轨迹切换 ====================

// ClearCache 清空缓存和播放指针, 之前提交的任务全部作废
func (s *Session) ClearCache() {
	s.reset(func() {})
}

// SwitchTrajectory 切换到新轨迹; reader 可为 nil (远端流没有本地文件)
func (s *Session) SwitchTrajectory(name string, reader trajfile.Reader) {
	s.reset(func() {
		s.trajectory = name
		s.reader = reader
		if reader != nil {
			s.cache.SetTimeStepSize(reader.TrajectoryInfo().TimeStepSize)
		}
	})
	logging.LogInfo("切换轨迹", "session", s.id, "file", name)
}

// reset 代号加一, 关闭旧通道对并创建新的
func (s *Session) reset(apply func()) {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.cache.Clear()
	s.current = -1
	s.waitFor = -1
	s.nextSeq, s.mergeSeq = 0, 0
	s.pending = make(map[uint64]result)
	apply()
	old := s.pipe
	s.pipe = s.startPipeline(s.generation)
	s.broadcastLocked()
	generation := s.generation
	s.mu.Unlock()

	close(old.jobs)
	logging.LogDebug("重置会话", "session", s.id, "generation", generation)
}

// SetTimeStepSize 设置时间比较步长 (远端流从元数据消息获得)
func (s *Session) SetTimeStepSize(step float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetTimeStepSize(step)
}

// SetCacheEnabled 修改缓存开关
func (s *Session) SetCacheEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetCacheEnabled(enabled)
}

// SetMaxCacheSize 修改缓存上限
func (s *Session) SetMaxCacheSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetMaxSize(size)
}

// ==================== 播放指针 ====================

// GotoTime 把播放指针移到缓存中该时间的帧; 找不到时指针不变
func (s *Session) GotoTime(t float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.cache.FrameAtTime(t)
	if f.IsEmpty() {
		return false
	}
	s.current = f.FrameNumber
	return true
}

// GotoFrameNumber 把播放指针移到缓存中该帧号; 找不到时指针不变
func (s *Session) GotoFrameNumber(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.cache.FrameAtFrameNumber(n)
	if f.IsEmpty() {
		return false
	}
	s.current = f.FrameNumber
	return true
}

// Lookup 查找缓存中的帧, 不移动指针, 未命中时不通知
func (s *Session) Lookup(n int) (models.CachedFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cache.ContainsFrameAtFrameNumber(n) {
		return models.EmptyFrame, false
	}
	return s.cache.FrameAtFrameNumber(n), true
}

// CurrentFrame 当前帧; 未定位时为缓存中第一帧
func (s *Session) CurrentFrame() models.CachedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

// currentLocked 指针指向的帧已被淘汰时退到缓存中最旧的帧
func (s *Session) currentLocked() models.CachedFrame {
	if s.current >= 0 && s.cache.ContainsFrameAtFrameNumber(s.current) {
		return s.cache.FrameAtFrameNumber(s.current)
	}
	first := s.cache.FirstFrame()
	if s.current < 0 || first.IsEmpty() || s.current < first.FrameNumber {
		return first
	}
	return s.cache.FrameAtFrameNumber(s.current)
}

// CurrentFrameData 当前帧的规范字节
func (s *Session) CurrentFrameData() []byte {
	return s.CurrentFrame().Data
}

// GotoNextFrame 前进一帧; 已是最后一帧时不动
func (s *Session) GotoNextFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.currentLocked()
	if cur.IsEmpty() {
		return false
	}
	if s.current >= 0 && cur.FrameNumber != s.current {
		// 原来的帧已被淘汰, 最旧的缓存帧就是下一帧
		s.current = cur.FrameNumber
		return true
	}
	next, ok := s.cache.FrameAfterFrameNumber(cur.FrameNumber)
	if !ok {
		s.current = cur.FrameNumber
		return false
	}
	s.current = next.FrameNumber
	return true
}

// AtEnd 当前帧是否为缓存中最新的帧
func (s *Session) AtEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.cache.Stats()
	if st.NumFrames == 0 {
		return true
	}
	if s.current < 0 {
		return st.NumFrames == 1
	}
	return s.current == st.LastFrameNumber
}

// ==================== 等待门 ====================

// WaitForFrame 设置等待门: 在帧号 n 到达之前丢弃其他所有帧
// 重复调用覆盖之前的等待
func (s *Session) WaitForFrame(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitFor = n
}

// ClearWait 取消等待门
func (s *Session) ClearWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitFor = -1
}

// Waiting 当前等待的帧号
func (s *Session) Waiting() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitFor, s.waitFor >= 0
}

// ==================== 轨迹查询 ====================

// Reader 当前绑定的轨迹文件, 可能为 nil
func (s *Session) Reader() trajfile.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader
}

// Trajectory 当前轨迹名
func (s *Session) Trajectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajectory
}

// NumFrames 轨迹总帧数 (未绑定文件时为 0)
func (s *Session) NumFrames() int {
	if r := s.Reader(); r != nil {
		return r.NumFrames()
	}
	return 0
}

// FrameIndexAtTime 轨迹中该时间的帧下标, 未找到返回 -1
func (s *Session) FrameIndexAtTime(t float64) int {
	if r := s.Reader(); r != nil {
		return r.FrameIndexAtTime(t)
	}
	return -1
}

// Frame 轨迹第 i 帧的规范字节
func (s *Session) Frame(i int) ([]byte, error) {
	r := s.Reader()
	if r == nil {
		return nil, ErrNoTrajectory
	}
	return r.Frame(i)
}

// TrajectoryInfo 轨迹元数据
func (s *Session) TrajectoryInfo() (models.TrajectoryInfo, error) {
	r := s.Reader()
	if r == nil {
		return models.TrajectoryInfo{}, ErrNoTrajectory
	}
	return r.TrajectoryInfo(), nil
}

// RequestFrame 从绑定的文件读取第 i 帧并提交后台解析
// 帧数据会被拷贝, 缓存不引用文件映射的内存
func (s *Session) RequestFrame(i int) error {
	data, err := s.Frame(i)
	if err != nil {
		return err
	}
	return s.Submit(BinaryInput(bytes.Clone(data), false))
}

// ==================== 状态 ====================

// Stats 统计信息
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.ID = s.id
	st.Trajectory = s.trajectory
	st.Generation = s.generation
	st.Pending = int(s.nextSeq - s.mergeSeq)
	st.CurrentFrame = s.current
	st.WaitingFor = s.waitFor
	st.Cache = s.cache.Stats()
	return st
}

// Close 停止后台解析并等待所有协程退出
func (s *Session) Close() {
	s.pipeMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.pipeMu.Unlock()
		return
	}
	s.closed = true
	s.broadcastLocked()
	p := s.pipe
	s.mu.Unlock()
	close(p.jobs)
	s.pipeMu.Unlock()

	s.wg.Wait()
	logging.LogDebug("会话已关闭", "session", s.id)
}
