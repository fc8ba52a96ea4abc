package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/stream"
)

// frameWaitTimeout 等待后台解析完成的上限
const frameWaitTimeout = 5 * time.Second

// Sink 播放输出, websocket 连接各自实现
type Sink interface {
	SendJSON(v any) error
	SendBinary(data []byte) error
}

// Player 单个客户端的播放驱动
// 每个连接一个 stream.Session; 停止播放只关闭 stopChan, 已提交的解析任务由代号保护
type Player struct {
	srv     *TrajectoryServer
	sink    Sink
	session *stream.Session

	mu       sync.Mutex
	file     *openFile
	stopChan chan struct{}
	running  bool
	done     chan struct{}
	next     int // 下一个要播放的帧下标
	speed    float64
	fps      float64
}

// NewPlayer 创建播放驱动
func NewPlayer(srv *TrajectoryServer, sink Sink) *Player {
	cfg := srv.Config()
	fps := cfg.PlaybackFPS
	if fps <= 0 {
		fps = config.DefaultPlaybackFPS
	}
	return &Player{
		srv:      srv,
		sink:     sink,
		session:  stream.NewSession(stream.OptionsFromConfig(cfg)),
		stopChan: make(chan struct{}),
		speed:    1.0,
		fps:      fps,
	}
}

// Session 播放使用的会话
func (p *Player) Session() *stream.Session {
	return p.session
}

// Open 绑定服务当前的轨迹文件, 发送元数据
func (p *Player) Open() error {
	p.Stop()

	f, err := p.srv.acquire()
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.file
	p.file = f
	p.next = 0
	p.mu.Unlock()

	p.session.SwitchTrajectory(f.Name(), f)
	if old != nil {
		old.release()
	}

	return p.sink.SendJSON(map[string]any{
		"type":      "trajectory_info",
		"msgType":   config.MsgTypeTrajectoryInfo,
		"fileName":  f.Name(),
		"numFrames": f.NumFrames(),
		"info":      f.TrajectoryInfo(),
	})
}

// ensureOpen 第一次播放前自动绑定当前文件
func (p *Player) ensureOpen() error {
	p.mu.Lock()
	opened := p.file != nil
	p.mu.Unlock()
	if opened {
		return nil
	}
	return p.Open()
}

// Play 从下一帧开始按速度播放
func (p *Player) Play(speed float64) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	p.Stop()

	p.mu.Lock()
	if speed > 0 {
		p.speed = speed
	}
	p.running = true
	p.done = make(chan struct{})
	stopChan, done := p.stopChan, p.done
	p.mu.Unlock()

	go p.run(stopChan, done)
	return nil
}

// Stop 停止播放并等待播放协程退出
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopChan)
	p.stopChan = make(chan struct{})
	p.running = false
	done := p.done
	p.mu.Unlock()

	<-done
}

// Running 是否在播放
func (p *Player) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SetSpeed 修改播放速度, 播放中立即生效
func (p *Player) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("invalid speed: %v", speed)
	}
	p.mu.Lock()
	p.speed = speed
	running := p.running
	p.mu.Unlock()

	if running {
		return p.Play(speed)
	}
	return nil
}

// Seek 定位到时间 t 对应的帧并发送, 播放中则继续播放
func (p *Player) Seek(t float64) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	idx := p.session.FrameIndexAtTime(t)
	if idx < 0 {
		return fmt.Errorf("no frame at time %v", t)
	}
	return p.Goto(idx)
}

// Goto 定位到帧下标 idx 并发送
func (p *Player) Goto(idx int) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	wasRunning := p.Running()
	p.Stop()

	if err := p.show(idx, true); err != nil {
		return err
	}
	if wasRunning {
		return p.Play(0)
	}
	return nil
}

// Step 暂停状态下前进一帧
func (p *Player) Step() error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	p.Stop()

	p.mu.Lock()
	idx := p.next
	p.mu.Unlock()
	return p.show(idx, false)
}

// show 确保第 idx 帧在缓存中, 移动播放指针并发送
// seek 为 true 时先设置等待门, 丢弃之前请求但尚未合并的帧
func (p *Player) show(idx int, seek bool) error {
	p.mu.Lock()
	f := p.file
	p.mu.Unlock()
	if f == nil {
		return ErrNotLoaded
	}

	meta, err := f.CachedFrame(idx)
	if err != nil {
		return err
	}

	if _, ok := p.session.Lookup(meta.FrameNumber); !ok {
		if seek {
			// 目标在已缓存的帧之前时重新开始缓存
			if last := p.session.Stats().Cache.LastFrameNumber; last >= 0 && meta.FrameNumber < last {
				p.session.ClearCache()
			}
			p.session.WaitForFrame(meta.FrameNumber)
		}
		if err := p.session.RequestFrame(idx); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), frameWaitTimeout)
		err := p.session.WaitIdle(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wait for frame %d: %w", idx, err)
		}
	}

	if !p.session.GotoFrameNumber(meta.FrameNumber) {
		return fmt.Errorf("frame %d not available", meta.FrameNumber)
	}

	p.mu.Lock()
	p.next = idx + 1
	p.mu.Unlock()

	return p.sink.SendBinary(codec.WrapBinary(config.MsgTypeVisDataArrive, f.Name(), p.session.CurrentFrameData()))
}

// run 播放循环, 直到最后一帧或 stopChan 关闭
func (p *Player) run(stopChan chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		if p.stopChan == stopChan {
			p.running = false
		}
		p.mu.Unlock()
	}()

	p.mu.Lock()
	interval := time.Duration(float64(time.Second) / p.fps / p.speed)
	f := p.file
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	lastLog := time.Now()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		idx := p.next
		p.mu.Unlock()
		if idx >= f.NumFrames() {
			p.sink.SendJSON(map[string]any{"type": "stream_end", "msgType": config.MsgTypeVisDataFinish})
			return
		}

		if err := p.show(idx, false); err != nil {
			if errors.Is(err, stream.ErrClosed) {
				return
			}
			p.sink.SendJSON(map[string]any{"error": err.Error()})
			return
		}

		sent++
		if time.Since(lastLog) >= time.Second {
			logging.LogDebug("播放中",
				"session", p.session.ID(),
				"frame", idx,
				"fps", float64(sent)/time.Since(lastLog).Seconds())
			sent = 0
			lastLog = time.Now()
		}
	}
}

// Close 停止播放, 关闭会话并释放文件
func (p *Player) Close() {
	p.Stop()
	p.session.Close()

	p.mu.Lock()
	f := p.file
	p.file = nil
	p.mu.Unlock()
	if f != nil {
		f.release()
	}
}
