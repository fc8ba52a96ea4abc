package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
	"github.com/simularium/simularium-viewer-sub001/internal/server"
)

func newPlaybackServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var frames [][]byte
	for i := 0; i < 2; i++ {
		f, err := codec.Encode(codec.WireFrame{FrameNumber: i, Time: float64(i), Data: []float64{1000, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}})
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, f.Data)
	}
	raw, err := container.Encode(container.Contents{Info: models.TrajectoryInfo{TimeStepSize: 1}, Frames: frames})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.simularium"), raw, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.StoragePath = dir
	srv := server.NewTrajectoryServer(cfg)
	t.Cleanup(srv.Close)
	if err := srv.Open("a.simularium"); err != nil {
		t.Fatal(err)
	}

	app := iris.New()
	app.Logger().SetLevel("disable")
	Register(app, srv)
	if err := app.Build(); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(app)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/playback"
}

func TestPlaybackNamespace(t *testing.T) {
	url := newPlaybackServer(t)

	messages := make(chan []byte, 8)
	frames := make(chan []byte, 8)
	errs := make(chan []byte, 8)
	events := websocket.Namespaces{
		Namespace: websocket.Events{
			"message": func(c *websocket.NSConn, msg websocket.Message) error {
				messages <- msg.Body
				return nil
			},
			"frame": func(c *websocket.NSConn, msg websocket.Message) error {
				frames <- msg.Body
				return nil
			},
			"error": func(c *websocket.NSConn, msg websocket.Message) error {
				errs <- msg.Body
				return nil
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := websocket.Dial(ctx, websocket.DefaultGorillaDialer, url, events)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	c, err := client.Connect(ctx, Namespace)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c.Emit("open", nil)
	select {
	case body := <-messages:
		var info map[string]any
		if err := json.Unmarshal(body, &info); err != nil {
			t.Fatal(err)
		}
		if info["numFrames"] != float64(2) || info["fileName"] != "a.simularium" {
			t.Errorf("info = %v", info)
		}
	case <-ctx.Done():
		t.Fatal("no trajectory info")
	}

	c.Emit("goto", []byte(`{"frame": 1}`))
	select {
	case body := <-frames:
		f, err := codec.PassthroughBinary(body)
		if err != nil {
			t.Fatal(err)
		}
		if f.FrameNumber != 1 {
			t.Errorf("frame = %d, want 1", f.FrameNumber)
		}
	case <-ctx.Done():
		t.Fatal("no frame")
	}

	c.Emit("seek", []byte(`{"time": 7}`))
	select {
	case body := <-errs:
		if !strings.Contains(string(body), "seek") {
			t.Errorf("error = %s", body)
		}
	case <-ctx.Done():
		t.Fatal("no error event")
	}
}
