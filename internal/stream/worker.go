package stream

import (
	"sync"

	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// job 后台解析任务, 带提交时的代号和序号
type job struct {
	generation uint64
	seq        uint64
	input      Input
}

// result 解析结果
type result struct {
	generation uint64
	seq        uint64
	frame      models.CachedFrame
	err        error
}

// pipeline 一代轨迹对应的一对通道
// 切换轨迹时关闭 jobs, 所有 worker 退出后关闭 results
type pipeline struct {
	generation uint64
	jobs       chan job
	results    chan result
	workers    sync.WaitGroup
}

// startPipeline 启动 worker 和合并协程
func (s *Session) startPipeline(generation uint64) *pipeline {
	p := &pipeline{
		generation: generation,
		jobs:       make(chan job, s.opts.QueueSize),
		results:    make(chan result, s.opts.QueueSize),
	}

	for i := 0; i < s.opts.Workers; i++ {
		p.workers.Add(1)
		s.wg.Add(1)
		go s.worker(p)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		p.workers.Wait()
		close(p.results)
	}()
	go s.merge(p)

	return p
}

func (s *Session) worker(p *pipeline) {
	defer s.wg.Done()
	defer p.workers.Done()

	for j := range p.jobs {
		f, err := j.input.normalize()
		p.results <- result{generation: j.generation, seq: j.seq, frame: f, err: err}
	}
}

// merge 读取解析结果并按序号合并进缓存
func (s *Session) merge(p *pipeline) {
	defer s.wg.Done()

	for r := range p.results {
		s.complete(r)
	}
	logging.LogDebug("解析通道已关闭", "session", s.id, "generation", p.generation)
}

// complete 合并一个结果
// 过期代号的结果直接丢弃; 其余按 seq 暂存, 连续的一段依次插入
func (s *Session) complete(r result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.generation != s.generation {
		s.stats.StaleDiscarded++
		logging.LogDebug("丢弃过期解析结果", "session", s.id, "generation", r.generation, "seq", r.seq)
		return
	}

	s.pending[r.seq] = r
	for {
		next, ok := s.pending[s.mergeSeq]
		if !ok {
			break
		}
		delete(s.pending, s.mergeSeq)
		s.mergeSeq++

		if next.err != nil {
			s.stats.ParseFailures++
			logging.LogWarn("后台解析失败", "session", s.id, "seq", next.seq, "error", next.err)
			continue
		}
		s.insertLocked(next.frame)
	}
	s.broadcastLocked()
}
