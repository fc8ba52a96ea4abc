// Package trajfile 打开本地 .simularium 轨迹文件 (二进制容器或 JSON)
package trajfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"

	"golang.org/x/sys/unix"
)

// Reader 已加载轨迹的只读查询接口
type Reader interface {
	NumFrames() int
	FrameIndexAtTime(t float64) int
	Frame(i int) ([]byte, error)
	CachedFrame(i int) (models.CachedFrame, error)
	TrajectoryInfo() models.TrajectoryInfo
	PlotData() json.RawMessage
}

// Format 文件格式
type Format string

const (
	FormatBinary Format = "binary"
	FormatJSON   Format = "json"
)

// ErrEmptyFile 文件为空
var ErrEmptyFile = errors.New("empty trajectory file")

// File 打开的轨迹文件
// 二进制文件通过 mmap 映射, Frame 返回的切片在 Close 之后失效
type File struct {
	Reader
	Path   string
	Format Format
	mapped []byte
}

// Open 按路径打开轨迹文件, 根据文件头判断格式
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(info.Size())
	if size == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	if container.IsBinary(data) {
		r, err := container.Parse(data)
		if err != nil {
			unix.Munmap(data)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logging.LogInfo("打开二进制轨迹", "file", filepath.Base(path), "frames", r.NumFrames(), "bytes", size)
		return &File{Reader: r, Path: path, Format: FormatBinary, mapped: data}, nil
	}

	// JSON 文件解析后不再引用映射内存
	r, err := ParseJSON(data)
	unix.Munmap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.LogInfo("打开 JSON 轨迹", "file", filepath.Base(path), "frames", r.NumFrames(), "bytes", size)
	return &File{Reader: r, Path: path, Format: FormatJSON}, nil
}

// FromBytes 从内存数据构造 (不使用 mmap)
func FromBytes(name string, raw []byte) (*File, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	if container.IsBinary(raw) {
		r, err := container.Parse(raw)
		if err != nil {
			return nil, err
		}
		return &File{Reader: r, Path: name, Format: FormatBinary}, nil
	}
	r, err := ParseJSON(raw)
	if err != nil {
		return nil, err
	}
	return &File{Reader: r, Path: name, Format: FormatJSON}, nil
}

// Name 文件名
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Close 释放 mmap 映射
func (f *File) Close() error {
	if f.mapped == nil {
		return nil
	}
	data := f.mapped
	f.mapped = nil
	return unix.Munmap(data)
}

// Entry 存储目录中的轨迹文件
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// List 列出目录下的 .simularium 文件, 按名称排序
func List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), config.TrajectoryFileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
