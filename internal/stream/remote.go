package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

// Remote 远端 websocket 帧源, 把收到的帧提交给会话
// 二进制消息按带封包的帧处理, 文本消息按 JSON 帧包或元数据处理
type Remote struct {
	conn    *websocket.Conn
	session *Session
	writeMu sync.Mutex
	info    chan models.TrajectoryInfo
}

// Dial 连接远端流
func Dial(ctx context.Context, url string, header http.Header, session *Session) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	logging.LogInfo("已连接远端流", "session", session.ID(), "url", url)
	return &Remote{
		conn:    conn,
		session: session,
		info:    make(chan models.TrajectoryInfo, 1),
	}, nil
}

// Send 发送 JSON 控制消息
func (r *Remote) Send(v any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(v)
}

// TrajectoryInfo 收到元数据消息时送出 (只保留最新一条)
func (r *Remote) TrajectoryInfo() <-chan models.TrajectoryInfo {
	return r.info
}

// Run 读取消息直到连接关闭或 ctx 取消
func (r *Remote) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.conn.Close()
	})
	defer stop()

	for {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch msgType {
		case websocket.BinaryMessage:
			err = r.session.Submit(BinaryInput(data, true))
		case websocket.TextMessage:
			err = r.handleText(data)
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		if err != nil {
			logging.LogWarn("远端消息处理失败", "session", r.session.ID(), "error", err)
		}
	}
}

func (r *Remote) handleText(data []byte) error {
	var head struct {
		MsgType int `json:"msgType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.MsgType {
	case config.MsgTypeVisDataArrive:
		var msg codec.VisDataMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		for _, wf := range msg.BundleData {
			if err := r.session.Submit(WireInput(wf)); err != nil {
				return err
			}
		}

	case config.MsgTypeTrajectoryInfo:
		var info models.TrajectoryInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return err
		}
		r.session.SetTimeStepSize(info.TimeStepSize)
		select {
		case <-r.info:
		default:
		}
		r.info <- info

	default:
		logging.LogDebug("忽略远端消息", "msgType", head.MsgType)
	}
	return nil
}

// Close 关闭连接
func (r *Remote) Close() error {
	r.writeMu.Lock()
	r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()
	return r.conn.Close()
}
