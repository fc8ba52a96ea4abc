// Package framecache 按字节预算缓存最近的帧, 支持按帧号和时间定位
package framecache

import (
	"strconv"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

const initialSlots = 16

// Notifier 接收访问失败通知
type Notifier func(error)

// Options 缓存参数
type Options struct {
	Enabled      bool
	MaxSize      int // -1 表示不限制
	TimeStepSize float64
	Notifier     Notifier
}

// DefaultOptions 默认参数: 启用, 不限大小
func DefaultOptions() Options {
	return Options{Enabled: true, MaxSize: config.UnboundedCacheSize}
}

// Stats 缓存统计
type Stats struct {
	NumFrames        int     `json:"numFrames"`
	Size             int     `json:"size"`
	MaxSize          int     `json:"maxSize"`
	Enabled          bool    `json:"enabled"`
	FirstFrameNumber int     `json:"firstFrameNumber"`
	LastFrameNumber  int     `json:"lastFrameNumber"`
	FirstTime        float64 `json:"firstTime"`
	LastTime         float64 `json:"lastTime"`
	Evicted          int     `json:"evicted"`
}

// Cache 环形缓冲区实现的帧缓存
// slots[head] 为最旧的帧, 共 count 个有效槽位; 插入在尾部, 淘汰从头部
// 非并发安全, 由调用方串行访问
type Cache struct {
	slots        []models.CachedFrame
	head         int
	count        int
	size         int
	maxSize      int
	enabled      bool
	timeStepSize float64
	notify       Notifier
	evicted      int
}

// New 创建缓存
func New(opts Options) *Cache {
	c := &Cache{
		enabled:      opts.Enabled,
		maxSize:      opts.MaxSize,
		timeStepSize: opts.TimeStepSize,
		notify:       opts.Notifier,
	}
	if c.notify == nil {
		c.notify = func(err error) {
			logging.LogWarn("帧访问失败", "error", err)
		}
	}
	return c
}

// at 逻辑下标 i (0 为头部) 对应的槽位下标
func (c *Cache) at(i int) int {
	return (c.head + i) % len(c.slots)
}

func (c *Cache) frame(i int) models.CachedFrame {
	return c.slots[c.at(i)]
}

// grow 容量翻倍, 同时把有效帧整理到数组开头
func (c *Cache) grow() {
	n := len(c.slots) * 2
	if n == 0 {
		n = initialSlots
	}
	slots := make([]models.CachedFrame, n)
	for i := 0; i < c.count; i++ {
		slots[i] = c.frame(i)
	}
	c.slots = slots
	c.head = 0
}

// replaceSole 缓存只保留 f, 复用现有槽位
func (c *Cache) replaceSole(f models.CachedFrame) {
	for i := 0; i < c.count; i++ {
		c.slots[c.at(i)] = models.CachedFrame{}
	}
	if len(c.slots) == 0 {
		c.slots = make([]models.CachedFrame, initialSlots)
	}
	c.head = 0
	c.slots[0] = f
	c.count = 1
	c.size = f.Size
}

// AddFrame 在尾部追加一帧
// 禁用或为空时直接替换唯一的帧; 限制大小时先从头部淘汰
// 单帧超过上限时仍然插入
func (c *Cache) AddFrame(f models.CachedFrame) {
	if !c.enabled || c.count == 0 {
		c.replaceSole(f)
		return
	}

	c.TrimCache(f.Size)

	if c.count == len(c.slots) {
		c.grow()
	}
	c.slots[c.at(c.count)] = f
	c.count++
	c.size += f.Size
}

// TrimCache 从头部淘汰, 直到 size + incoming 不超过上限或缓存为空
func (c *Cache) TrimCache(incoming int) {
	if c.maxSize == config.UnboundedCacheSize {
		return
	}
	for c.count > 0 && c.size+incoming > c.maxSize {
		c.removeHead()
		c.evicted++
	}
}

func (c *Cache) removeHead() models.CachedFrame {
	i := c.head
	f := c.slots[i]
	c.slots[i] = models.CachedFrame{}
	c.head = (c.head + 1) % len(c.slots)
	c.count--
	c.size -= f.Size
	if c.count == 0 {
		c.head = 0
	}
	return f
}

// Remove 删除逻辑位置 pos 的帧 (0 为最旧)
func (c *Cache) Remove(pos int) (models.CachedFrame, bool) {
	if pos < 0 || pos >= c.count {
		return models.EmptyFrame, false
	}
	if pos == 0 {
		return c.removeHead(), true
	}

	f := c.frame(pos)
	// 后续帧依次前移一格
	for i := pos; i < c.count-1; i++ {
		c.slots[c.at(i)] = c.frame(i + 1)
	}
	c.slots[c.at(c.count-1)] = models.CachedFrame{}
	c.count--
	c.size -= f.Size
	return f, true
}

// RemoveFrameNumber 删除指定帧号的帧
func (c *Cache) RemoveFrameNumber(n int) bool {
	pos := c.indexOfFrameNumber(n)
	if pos < 0 {
		return false
	}
	_, ok := c.Remove(pos)
	return ok
}

// Clear 清空缓存, 释放帧数据引用
func (c *Cache) Clear() {
	c.slots = nil
	c.head = 0
	c.count = 0
	c.size = 0
}

// ==================== 查询 ====================

// FirstFrame 最旧的帧, 空缓存返回 EmptyFrame 并通知
func (c *Cache) FirstFrame() models.CachedFrame {
	if c.count == 0 {
		c.notify(&FrameAccessError{Op: "FirstFrame"})
		return models.EmptyFrame
	}
	return c.frame(0)
}

// LastFrame 最新的帧, 空缓存返回 EmptyFrame 并通知
func (c *Cache) LastFrame() models.CachedFrame {
	if c.count == 0 {
		c.notify(&FrameAccessError{Op: "LastFrame"})
		return models.EmptyFrame
	}
	return c.frame(c.count - 1)
}

// frameNumberInRange 先和首尾帧比较, 超出范围时不扫描
func (c *Cache) frameNumberInRange(n int) bool {
	if c.count == 0 {
		return false
	}
	return n >= c.frame(0).FrameNumber && n <= c.frame(c.count-1).FrameNumber
}

func (c *Cache) timeInRange(t float64) bool {
	if c.count == 0 {
		return false
	}
	return models.CompareTimes(t, c.frame(0).Time, c.timeStepSize) >= 0 &&
		models.CompareTimes(t, c.frame(c.count-1).Time, c.timeStepSize) <= 0
}

func (c *Cache) indexOfFrameNumber(n int) int {
	if !c.frameNumberInRange(n) {
		return -1
	}
	for i := 0; i < c.count; i++ {
		if c.frame(i).FrameNumber == n {
			return i
		}
	}
	return -1
}

func (c *Cache) indexOfTime(t float64) int {
	if !c.timeInRange(t) {
		return -1
	}
	for i := 0; i < c.count; i++ {
		if models.CompareTimes(t, c.frame(i).Time, c.timeStepSize) == 0 {
			return i
		}
	}
	return -1
}

// FrameAtFrameNumber 按帧号查找
func (c *Cache) FrameAtFrameNumber(n int) models.CachedFrame {
	i := c.indexOfFrameNumber(n)
	if i < 0 {
		c.notify(&FrameAccessError{Op: "FrameAtFrameNumber", Query: strconv.Itoa(n)})
		return models.EmptyFrame
	}
	return c.frame(i)
}

// FrameAtTime 按时间查找 (容差比较)
func (c *Cache) FrameAtTime(t float64) models.CachedFrame {
	i := c.indexOfTime(t)
	if i < 0 {
		c.notify(&FrameAccessError{Op: "FrameAtTime", Query: strconv.FormatFloat(t, 'g', -1, 64)})
		return models.EmptyFrame
	}
	return c.frame(i)
}

// ContainsFrameAtFrameNumber 是否缓存了该帧号
func (c *Cache) ContainsFrameAtFrameNumber(n int) bool {
	return c.indexOfFrameNumber(n) >= 0
}

// ContainsTime 是否缓存了该时间的帧
func (c *Cache) ContainsTime(t float64) bool {
	return c.indexOfTime(t) >= 0
}

// FrameAfterFrameNumber 插入顺序中紧跟帧号 n 的帧, 不存在时不通知
func (c *Cache) FrameAfterFrameNumber(n int) (models.CachedFrame, bool) {
	i := c.indexOfFrameNumber(n)
	if i < 0 || i+1 >= c.count {
		return models.EmptyFrame, false
	}
	return c.frame(i + 1), true
}

// Frames 按插入顺序返回所有帧 (副本)
func (c *Cache) Frames() []models.CachedFrame {
	out := make([]models.CachedFrame, c.count)
	for i := range out {
		out[i] = c.frame(i)
	}
	return out
}

// ==================== 策略 ====================

// SetCacheEnabled 禁用时只保留最新的一帧
func (c *Cache) SetCacheEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled && c.count > 1 {
		c.replaceSole(c.frame(c.count - 1))
	}
}

// SetMaxSize 修改上限, 缩小时立即淘汰
func (c *Cache) SetMaxSize(maxSize int) {
	c.maxSize = maxSize
	c.TrimCache(0)
}

// SetTimeStepSize 设置时间比较使用的步长
func (c *Cache) SetTimeStepSize(step float64) {
	c.timeStepSize = step
}

// SetNotifier 替换访问失败通知函数
func (c *Cache) SetNotifier(n Notifier) {
	if n != nil {
		c.notify = n
	}
}

// Size 当前占用字节数
func (c *Cache) Size() int { return c.size }

// NumFrames 当前帧数
func (c *Cache) NumFrames() int { return c.count }

// MaxSize 上限
func (c *Cache) MaxSize() int { return c.maxSize }

// Enabled 是否启用
func (c *Cache) Enabled() bool { return c.enabled }

// Stats 统计信息
func (c *Cache) Stats() Stats {
	s := Stats{
		NumFrames:        c.count,
		Size:             c.size,
		MaxSize:          c.maxSize,
		Enabled:          c.enabled,
		FirstFrameNumber: -1,
		LastFrameNumber:  -1,
		Evicted:          c.evicted,
	}
	if c.count > 0 {
		first, last := c.frame(0), c.frame(c.count-1)
		s.FirstFrameNumber, s.LastFrameNumber = first.FrameNumber, last.FrameNumber
		s.FirstTime, s.LastTime = first.Time, last.Time
	}
	return s
}
