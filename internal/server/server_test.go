package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

const testFile = "demo.simularium"

// writeTrajectory 在 dir 中写入 3 帧的容器文件
func writeTrajectory(t *testing.T, dir string) {
	t.Helper()
	var frames [][]byte
	for i := 0; i < 3; i++ {
		f, err := codec.Encode(codec.WireFrame{
			FrameNumber: i,
			Time:        float64(i) * 0.5,
			Data:        []float64{1000, float64(i), 0, float64(i), 0, 0, 0, 0, 0, 1, 2, 4, 5},
		})
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, f.Data)
	}
	raw, err := container.Encode(container.Contents{
		Version: 1,
		Info:    models.TrajectoryInfo{TimeStepSize: 0.5, TotalSteps: 3, TrajectoryTitle: "demo"},
		Plot:    json.RawMessage(`{"plots":[]}`),
		Frames:  frames,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, testFile), raw, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) (*TrajectoryServer, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	writeTrajectory(t, dir)

	cfg := config.Default()
	cfg.StoragePath = dir
	cfg.MaxCacheSize = config.UnboundedCacheSize
	cfg.PlaybackFPS = 200
	srv := NewTrajectoryServer(cfg)
	t.Cleanup(srv.Close)

	app := iris.New()
	app.Logger().SetLevel("disable")
	RegisterRoutes(app, NewHandlers(srv))
	if err := app.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	ts := httptest.NewServer(app)
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func loadTestFile(t *testing.T, base string) {
	t.Helper()
	resp, err := http.Post(base+"/api/v1/config", "application/json",
		strings.NewReader(`{"fileName": "`+testFile+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("open status %d: %s", resp.StatusCode, body)
	}
}

func TestRESTNotLoaded(t *testing.T) {
	_, ts := newTestServer(t)
	base := ts.URL + "/api/v1"

	if code, _ := get(t, base+"/trajectory"); code != http.StatusNotFound {
		t.Errorf("trajectory status = %d, want 404", code)
	}
	if code, _ := get(t, base+"/frames/0"); code != http.StatusNotFound {
		t.Errorf("frame status = %d, want 404", code)
	}

	code, body := get(t, base+"/files")
	if code != http.StatusOK || !strings.Contains(string(body), testFile) {
		t.Errorf("files: %d %s", code, body)
	}
}

func TestRESTEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	base := ts.URL + "/api/v1"
	loadTestFile(t, ts.URL)

	code, body := get(t, base+"/trajectory")
	if code != http.StatusOK {
		t.Fatalf("trajectory status %d", code)
	}
	var traj struct {
		TrajectoryInfo models.TrajectoryInfo `json:"trajectoryInfo"`
		NumFrames      int                   `json:"numFrames"`
	}
	if err := json.Unmarshal(body, &traj); err != nil {
		t.Fatal(err)
	}
	if traj.NumFrames != 3 || traj.TrajectoryInfo.TrajectoryTitle != "demo" {
		t.Errorf("trajectory = %+v", traj)
	}

	code, body = get(t, base+"/frames/1")
	if code != http.StatusOK {
		t.Fatalf("frame status %d", code)
	}
	h, err := codec.ReadHeader(body)
	if err != nil || h.FrameNumber != 1 || h.AgentCount != 1 {
		t.Errorf("frame header = %+v, %v", h, err)
	}

	code, body = get(t, base+"/frames/2/agents")
	if code != http.StatusOK || !strings.Contains(string(body), `"subpoints":[4,5]`) {
		t.Errorf("agents: %d %s", code, body)
	}

	if code, _ := get(t, base+"/frames/9"); code != http.StatusNotFound {
		t.Errorf("out of range status = %d, want 404", code)
	}

	code, body = get(t, base+"/frames/at?time=1.0")
	if code != http.StatusOK || !strings.Contains(string(body), `"index":2`) {
		t.Errorf("frames/at: %d %s", code, body)
	}
	code, body = get(t, base+"/frames/at?time=0.25")
	if code != http.StatusOK || !strings.Contains(string(body), `"index":-1`) {
		t.Errorf("frames/at miss: %d %s", code, body)
	}

	code, body = get(t, base+"/plot")
	if code != http.StatusOK || !strings.Contains(string(body), `"plots"`) {
		t.Errorf("plot: %d %s", code, body)
	}

	// 请求过的帧进入服务端会话缓存
	st := srv.CacheStatus()
	if st.Cache.NumFrames != 2 || st.Cache.FirstFrameNumber != 1 || st.Cache.LastFrameNumber != 2 {
		t.Errorf("cache stats = %+v", st.Cache)
	}
	// 向后跳转重新开始缓存
	if code, _ := get(t, base+"/frames/0"); code != http.StatusOK {
		t.Fatal("frame 0 failed")
	}
	if st := srv.CacheStatus(); st.Cache.NumFrames != 1 || st.Cache.FirstFrameNumber != 0 {
		t.Errorf("cache after backwards jump = %+v", st.Cache)
	}

	code, body = get(t, base+"/config")
	if code != http.StatusOK || !strings.Contains(string(body), `"loaded":true`) {
		t.Errorf("config: %d %s", code, body)
	}
}

func TestSetConfigErrors(t *testing.T) {
	_, ts := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing dir", `{"storagePath": "/no/such/dir"}`, http.StatusBadRequest},
		{"path escape", `{"fileName": "../demo.simularium"}`, http.StatusBadRequest},
		{"missing file", `{"fileName": "missing.simularium"}`, http.StatusNotFound},
		{"bad cache size", `{"maxCacheSize": -5}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v1/config", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetReadDeadline(time.Now().Add(10 * time.Second))
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) models.CachedFrame {
	t.Helper()
	typ, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.BinaryMessage {
		t.Fatalf("got text message %s, want binary frame", data)
	}
	f, err := codec.PassthroughBinary(data)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	typ, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.TextMessage {
		t.Fatalf("got binary message, want JSON")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStreamPlayback(t *testing.T) {
	_, ts := newTestServer(t)
	loadTestFile(t, ts.URL)
	c := dialStream(t, ts)

	c.WriteJSON(WSMessage{Action: "open"})
	info := readJSON(t, c)
	if info["type"] != "trajectory_info" || info["numFrames"] != float64(3) {
		t.Fatalf("info = %v", info)
	}

	c.WriteJSON(WSMessage{Action: "seek", Time: 0.5})
	if f := readFrame(t, c); f.FrameNumber != 1 {
		t.Fatalf("seek frame = %d, want 1", f.FrameNumber)
	}

	c.WriteJSON(WSMessage{Action: "play", Speed: 2})
	if f := readFrame(t, c); f.FrameNumber != 2 {
		t.Fatalf("play frame = %d, want 2", f.FrameNumber)
	}
	if end := readJSON(t, c); end["type"] != "stream_end" {
		t.Fatalf("end = %v", end)
	}

	c.WriteJSON(WSMessage{Action: "goto", Frame: 0})
	if f := readFrame(t, c); f.FrameNumber != 0 {
		t.Fatalf("goto frame = %d, want 0", f.FrameNumber)
	}
	c.WriteJSON(WSMessage{Action: "step"})
	if f := readFrame(t, c); f.FrameNumber != 1 {
		t.Fatalf("step frame = %d, want 1", f.FrameNumber)
	}

	c.WriteJSON(WSMessage{Action: "seek", Time: 0.3})
	if m := readJSON(t, c); m["error"] == nil {
		t.Errorf("seek to missing time: %v", m)
	}
	c.WriteJSON(WSMessage{Action: "dance"})
	if m := readJSON(t, c); m["error"] == nil {
		t.Errorf("unknown action: %v", m)
	}
}

func TestStreamWithoutTrajectory(t *testing.T) {
	_, ts := newTestServer(t)
	c := dialStream(t, ts)

	c.WriteJSON(WSMessage{Action: "play"})
	if m := readJSON(t, c); m["error"] == nil {
		t.Errorf("play without trajectory: %v", m)
	}
}
