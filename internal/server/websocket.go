package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"github.com/simularium/simularium-viewer-sub001/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage 客户端控制消息
type WSMessage struct {
	Action string  `json:"action"` // open | play | pause | seek | goto | step | speed
	Time   float64 `json:"time"`
	Frame  int     `json:"frame"`
	Speed  float64 `json:"speed"`
}

// wsSink gorilla 连接输出, 写操作串行
type wsSink struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *wsSink) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *wsSink) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.BinaryMessage, data)
}

// HandleWebSocket 帧流 websocket
// GET /api/v1/stream
func (h *Handlers) HandleWebSocket(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		logging.LogWarn("websocket 升级失败", "error", err)
		return
	}
	defer ws.Close()

	sink := &wsSink{ws: ws}
	player := NewPlayer(h.srv, sink)
	defer player.Close()

	sessionID := player.Session().ID()
	logging.LogInfo("新连接", "session", sessionID)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.LogWarn("websocket 读取失败", "session", sessionID, "error", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sink.SendJSON(iris.Map{"error": "无效的 JSON"})
			continue
		}

		if err := dispatch(player, msg); err != nil {
			sink.SendJSON(iris.Map{"error": err.Error(), "action": msg.Action})
		}
		logging.LogDebug("处理控制消息", "session", sessionID, "action", msg.Action)
	}

	logging.LogInfo("断开连接", "session", sessionID)
}

// dispatch 执行一条控制消息
func dispatch(p *Player, msg WSMessage) error {
	switch msg.Action {
	case "open":
		return p.Open()
	case "play":
		return p.Play(msg.Speed)
	case "pause":
		p.Stop()
		return nil
	case "seek":
		return p.Seek(msg.Time)
	case "goto":
		return p.Goto(msg.Frame)
	case "step":
		return p.Step()
	case "speed":
		return p.SetSpeed(msg.Speed)
	default:
		return errUnknownAction(msg.Action)
	}
}

type errUnknownAction string

func (e errUnknownAction) Error() string {
	return "未知操作: " + string(e)
}
