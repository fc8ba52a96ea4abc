package trajfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

func encodeFrame(t *testing.T, n int, tm float64, data ...float64) []byte {
	t.Helper()
	f, err := codec.Encode(codec.WireFrame{FrameNumber: n, Time: tm, Data: data})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return f.Data
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenBinary(t *testing.T) {
	raw, err := container.Encode(container.Contents{
		Version: 1,
		Info:    models.TrajectoryInfo{TimeStepSize: 0.5, TrajectoryTitle: "demo"},
		Plot:    []byte(`{"x":1}`),
		Frames: [][]byte{
			encodeFrame(t, 0, 0, 1000, 1, 2, 0, 0, 0, 0, 0, 0, 1, 0),
			encodeFrame(t, 1, 0.5),
			encodeFrame(t, 2, 1.0),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, t.TempDir(), "demo.simularium", raw)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Format != FormatBinary || f.Name() != "demo.simularium" {
		t.Errorf("format=%s name=%s", f.Format, f.Name())
	}
	if f.NumFrames() != 3 {
		t.Fatalf("NumFrames = %d, want 3", f.NumFrames())
	}
	if i := f.FrameIndexAtTime(1.0); i != 2 {
		t.Errorf("FrameIndexAtTime(1.0) = %d, want 2", i)
	}
	cf, err := f.CachedFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	if cf.AgentCount != 1 {
		t.Errorf("AgentCount = %d, want 1", cf.AgentCount)
	}
	if f.TrajectoryInfo().TrajectoryTitle != "demo" {
		t.Errorf("title = %q", f.TrajectoryInfo().TrajectoryTitle)
	}
	if f.PlotData() == nil {
		t.Error("PlotData missing")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// 重复 Close 无副作用
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

const jsonTrajectory = `{
  "trajectoryInfo": {"version": 3, "timeStepSize": 0.1, "totalSteps": 2, "typeMapping": {"0": {"name": "A"}}},
  "spatialData": {
    "msgType": 1, "bundleStart": 0, "bundleSize": 2,
    "bundleData": [
      {"frameNumber": 0, "time": 0, "data": [1000, 0, 0, 1, 2, 3, 0, 0, 0, 1, 0]},
      {"frameNumber": 1, "time": 0.1, "data": [1000, 0, 0, 1.5, 2, 3, 0, 0, 0, 1, 3, 7, 8, 9]}
    ]
  },
  "plotData": {"data": []}
}`

func TestOpenJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "json.simularium", []byte(jsonTrajectory))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Format != FormatJSON {
		t.Errorf("format = %s, want json", f.Format)
	}
	if f.NumFrames() != 2 {
		t.Fatalf("NumFrames = %d, want 2", f.NumFrames())
	}
	if i := f.FrameIndexAtTime(0.1); i != 1 {
		t.Errorf("FrameIndexAtTime(0.1) = %d, want 1", i)
	}
	if i := f.FrameIndexAtTime(0.3); i != -1 {
		t.Errorf("FrameIndexAtTime(0.3) = %d, want -1", i)
	}

	data, err := f.Frame(1)
	if err != nil {
		t.Fatal(err)
	}
	_, agents, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || len(agents[0].Subpoints) != 3 || agents[0].X != 1.5 {
		t.Errorf("unexpected agents: %+v", agents)
	}
	if _, err := f.Frame(2); !errors.Is(err, container.ErrFrameOutOfRange) {
		t.Errorf("err = %v, want ErrFrameOutOfRange", err)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"empty", "", ErrEmptyFile},
		{"not json", "hello", ErrJSONFormat},
		{"no spatial data", `{"trajectoryInfo": {}}`, ErrJSONFormat},
		{"bad agent data", `{"trajectoryInfo": {}, "spatialData": {"bundleData": [{"data": [1, 2, 3]}]}}`, codec.ErrMalformedData},
		{"corrupt container", "SIMULARIUMBINARY\x00\x00", container.ErrContainerFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".simularium", []byte(tt.content))
			_, err := Open(path)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.simularium", []byte("{}"))
	writeFile(t, dir, "a.simularium", []byte("{}"))
	writeFile(t, dir, "notes.txt", []byte("x"))
	if err := os.Mkdir(filepath.Join(dir, "sub.simularium"), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "a.simularium" || entries[1].Name != "b.simularium" {
		t.Errorf("entries = %+v", entries)
	}
}
