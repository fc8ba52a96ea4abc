package handlers

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"
	"github.com/kataras/neffos"

	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/server"
)

// Namespace 播放控制命名空间
const Namespace = "playback"

var errEmitFailed = errors.New("emit failed: connection closed")

// nsSink 通过 neffos 事件输出: JSON 为 "message", 帧为 "frame"
type nsSink struct {
	c *neffos.NSConn
}

func (s nsSink) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !s.c.Emit("message", b) {
		return errEmitFailed
	}
	return nil
}

func (s nsSink) SendBinary(data []byte) error {
	if !s.c.EmitBinary("frame", data) {
		return errEmitFailed
	}
	return nil
}

// WebSocketHandler neffos 播放处理器, 每个连接一个 Player
type WebSocketHandler struct {
	srv     *server.TrajectoryServer
	players map[*neffos.Conn]*server.Player
	mu      sync.RWMutex
}

// NewWebSocketHandler 创建处理器
func NewWebSocketHandler(srv *server.TrajectoryServer) *WebSocketHandler {
	return &WebSocketHandler{
		srv:     srv,
		players: make(map[*neffos.Conn]*server.Player),
	}
}

// OnConnect 连接命名空间, 创建播放器
func (ws *WebSocketHandler) OnConnect(c *neffos.NSConn, msg neffos.Message) error {
	p := server.NewPlayer(ws.srv, nsSink{c: c})
	ws.mu.Lock()
	ws.players[c.Conn] = p
	ws.mu.Unlock()
	logging.LogInfo("客户端连接", "conn", c.Conn.ID(), "session", p.Session().ID())
	return nil
}

// OnDisconnect 断开, 释放播放器
func (ws *WebSocketHandler) OnDisconnect(c *neffos.NSConn, msg neffos.Message) error {
	ws.mu.Lock()
	p := ws.players[c.Conn]
	delete(ws.players, c.Conn)
	ws.mu.Unlock()

	if p != nil {
		p.Close()
	}
	logging.LogInfo("客户端断开", "conn", c.Conn.ID())
	return nil
}

func (ws *WebSocketHandler) player(c *neffos.NSConn) *server.Player {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.players[c.Conn]
}

// request 事件参数, 空 body 表示使用默认值
type request struct {
	Time  float64 `json:"time"`
	Frame int     `json:"frame"`
	Speed float64 `json:"speed"`
}

// handle 包装事件处理: 解析参数, 找到播放器, 出错时回复 error 事件
func (ws *WebSocketHandler) handle(fn func(p *server.Player, req request) error) neffos.MessageHandlerFunc {
	return func(c *neffos.NSConn, msg neffos.Message) error {
		var req request
		if len(msg.Body) > 0 {
			if err := msg.Unmarshal(&req); err != nil {
				c.Emit("error", []byte(`{"error": "无效的 JSON"}`))
				return nil
			}
		}

		p := ws.player(c)
		if p == nil {
			return nil
		}
		if err := fn(p, req); err != nil {
			b, _ := json.Marshal(iris.Map{"error": err.Error(), "event": msg.Event})
			c.Emit("error", b)
		}
		return nil
	}
}

// RegisterEvents 注册 WebSocket 事件
func (ws *WebSocketHandler) RegisterEvents() websocket.Namespaces {
	return websocket.Namespaces{
		Namespace: websocket.Events{
			websocket.OnNamespaceConnected:  ws.OnConnect,
			websocket.OnNamespaceDisconnect: ws.OnDisconnect,
			"open": ws.handle(func(p *server.Player, _ request) error {
				return p.Open()
			}),
			"play": ws.handle(func(p *server.Player, req request) error {
				return p.Play(req.Speed)
			}),
			"pause": ws.handle(func(p *server.Player, _ request) error {
				p.Stop()
				return nil
			}),
			"seek": ws.handle(func(p *server.Player, req request) error {
				return p.Seek(req.Time)
			}),
			"goto": ws.handle(func(p *server.Player, req request) error {
				return p.Goto(req.Frame)
			}),
			"step": ws.handle(func(p *server.Player, _ request) error {
				return p.Step()
			}),
			"speed": ws.handle(func(p *server.Player, req request) error {
				return p.SetSpeed(req.Speed)
			}),
		},
	}
}

// Register 挂载 neffos 服务
// GET /api/v1/playback
func Register(app *iris.Application, srv *server.TrajectoryServer) *neffos.Server {
	h := NewWebSocketHandler(srv)
	ws := websocket.New(websocket.DefaultGorillaUpgrader, h.RegisterEvents())
	app.Get("/api/v1/playback", websocket.Handler(ws))
	return ws
}
