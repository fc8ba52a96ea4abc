package server

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/kataras/iris/v12"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/trajfile"
)

// Handlers API 处理器
type Handlers struct {
	srv *TrajectoryServer
}

// NewHandlers 创建处理器
func NewHandlers(srv *TrajectoryServer) *Handlers {
	return &Handlers{srv: srv}
}

// statusFor 错误对应的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotLoaded), errors.Is(err, ErrNoPlotData),
		errors.Is(err, container.ErrFrameOutOfRange), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, container.ErrContainerFormat), errors.Is(err, codec.ErrMalformedData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx iris.Context, err error) {
	ctx.StatusCode(statusFor(err))
	ctx.JSON(iris.Map{"error": err.Error()})
}

// GetConfig 获取配置
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	ctx.JSON(h.srv.Status())
}

// SetConfig 修改存储目录, 缓存策略, 打开文件
// POST /api/v1/config
func (h *Handlers) SetConfig(ctx iris.Context) {
	var req struct {
		StoragePath  string `json:"storagePath"`
		FileName     string `json:"fileName"`
		CacheEnabled *bool  `json:"cacheEnabled"`
		MaxCacheSize *int   `json:"maxCacheSize"`
	}

	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "无效的 JSON"})
		return
	}

	if req.StoragePath != "" {
		if err := h.srv.SetStoragePath(req.StoragePath); err != nil {
			ctx.StatusCode(http.StatusBadRequest)
			ctx.JSON(iris.Map{"error": "无效的存储路径: " + req.StoragePath})
			return
		}
	}

	if req.CacheEnabled != nil || req.MaxCacheSize != nil {
		cfg := h.srv.Config()
		enabled, maxSize := cfg.CacheEnabled, cfg.MaxCacheSize
		if req.CacheEnabled != nil {
			enabled = *req.CacheEnabled
		}
		if req.MaxCacheSize != nil {
			maxSize = *req.MaxCacheSize
		}
		if err := h.srv.SetCachePolicy(enabled, maxSize); err != nil {
			ctx.StatusCode(http.StatusBadRequest)
			ctx.JSON(iris.Map{"error": err.Error()})
			return
		}
	}

	if req.FileName != "" {
		if err := h.srv.Open(req.FileName); err != nil {
			ctx.StatusCode(statusFor(err))
			ctx.JSON(iris.Map{
				"fileName": req.FileName,
				"loaded":   false,
				"error":    "无法加载轨迹文件: " + err.Error(),
			})
			return
		}
	}

	ctx.JSON(h.srv.Status())
}

// GetFiles 存储目录中的轨迹文件
// GET /api/v1/files
func (h *Handlers) GetFiles(ctx iris.Context) {
	files, err := h.srv.Files()
	if err != nil {
		writeError(ctx, err)
		return
	}
	if files == nil {
		files = []trajfile.Entry{}
	}
	ctx.JSON(iris.Map{"files": files})
}

// GetTrajectory 当前轨迹元数据
// GET /api/v1/trajectory
func (h *Handlers) GetTrajectory(ctx iris.Context) {
	info, numFrames, err := h.srv.TrajectoryInfo()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{
		"trajectoryInfo": info,
		"numFrames":      numFrames,
	})
}

// GetFrame 第 index 帧的规范字节
// GET /api/v1/frames/{index:int}
func (h *Handlers) GetFrame(ctx iris.Context) {
	idx := ctx.Params().GetIntDefault("index", -1)
	f, err := h.srv.Frame(idx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Header("X-Frame-Number", strconv.Itoa(f.FrameNumber))
	ctx.ContentType("application/octet-stream")
	ctx.Write(f.Data)
}

// GetFrameAgents 第 index 帧解码后的 agent 列表
// GET /api/v1/frames/{index:int}/agents
func (h *Handlers) GetFrameAgents(ctx iris.Context) {
	idx := ctx.Params().GetIntDefault("index", -1)
	f, err := h.srv.Frame(idx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	header, agents, err := codec.Decode(f.Data)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{
		"frameNumber": header.FrameNumber,
		"time":        header.Time,
		"agentCount":  header.AgentCount,
		"agents":      agents,
	})
}

// GetFrameAtTime 时间对应的帧下标
// GET /api/v1/frames/at?time=
func (h *Handlers) GetFrameAtTime(ctx iris.Context) {
	t, err := ctx.URLParamFloat64("time")
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "缺少 time 参数"})
		return
	}
	idx, err := h.srv.FrameIndexAtTime(t)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"index": idx})
}

// GetPlot 图表数据
// GET /api/v1/plot
func (h *Handlers) GetPlot(ctx iris.Context) {
	plot, err := h.srv.PlotData()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.ContentType("application/json")
	ctx.Write(plot)
}

// GetCacheStatus 服务端会话缓存状态
// GET /api/v1/cache/status
func (h *Handlers) GetCacheStatus(ctx iris.Context) {
	ctx.JSON(h.srv.CacheStatus())
}

// ==================== 路由注册 ====================

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/config", h.GetConfig)
		v1.Post("/config", h.SetConfig)
		v1.Get("/files", h.GetFiles)
		v1.Get("/trajectory", h.GetTrajectory)
		v1.Get("/frames/at", h.GetFrameAtTime)
		v1.Get("/frames/{index:int}", h.GetFrame)
		v1.Get("/frames/{index:int}/agents", h.GetFrameAgents)
		v1.Get("/plot", h.GetPlot)
		v1.Get("/cache/status", h.GetCacheStatus)
		v1.Get("/stream", h.HandleWebSocket)
	}
}
