package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/simularium/simularium-viewer-sub001/internal/models"
)

func sampleAgents() []models.AgentRecord {
	return []models.AgentRecord{
		{VisType: 1000, InstanceID: 0, TypeID: 3, X: 1.5, Y: -2, Z: 3.25, CollisionRadius: 0.5},
		{VisType: 1001, InstanceID: 1, TypeID: 7, X: 4, Y: 5, Z: 6, XRot: 0.1, YRot: 0.2, ZRot: 0.3,
			CollisionRadius: 1, Subpoints: []float32{1, 2, 3, 4, 5, 6}},
		{VisType: 1000, InstanceID: 2, TypeID: 3, X: -1, Y: -1, Z: -1, CollisionRadius: 2},
	}
}

func flatten(agents []models.AgentRecord) []float64 {
	var out []float64
	for _, a := range agents {
		out = append(out, a.Fields()...)
	}
	return out
}

func TestEncodeRoundTrip(t *testing.T) {
	agents := sampleAgents()
	wf := WireFrame{FrameNumber: 42, Time: 4.2, Data: flatten(agents)}

	frame, err := Encode(wf)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if frame.Size != len(frame.Data) {
		t.Errorf("Size = %d, want len(Data) = %d", frame.Size, len(frame.Data))
	}
	if want := 12 + 4*len(wf.Data); frame.Size != want {
		t.Errorf("Size = %d, want %d", frame.Size, want)
	}

	h, got, err := Decode(frame.Data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.FrameNumber != 42 || h.AgentCount != 3 || h.Time != float64(float32(4.2)) {
		t.Errorf("header mismatch: %+v", h)
	}
	if frame.FrameNumber != h.FrameNumber || frame.Time != h.Time || frame.AgentCount != h.AgentCount {
		t.Errorf("frame fields %+v disagree with decoded header %+v", frame, h)
	}
	if len(got) != len(agents) {
		t.Fatalf("decoded %d agents, want %d", len(got), len(agents))
	}
	for i := range agents {
		if !bytes.Equal(floatBytes(got[i].Fields()), floatBytes(agents[i].Fields())) {
			t.Errorf("agent %d mismatch: got %+v, want %+v", i, got[i], agents[i])
		}
	}
}

func floatBytes(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		putFloat32(buf, 4*i, float32(f))
	}
	return buf
}

func TestEncodeIsDeterministic(t *testing.T) {
	wf := WireFrame{FrameNumber: 3, Time: 0.3, Data: flatten(sampleAgents())}
	a, err := Encode(wf)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(wf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("Encode produced different bytes for identical input")
	}
}

func TestEncodeEmptyFrame(t *testing.T) {
	f, err := Encode(WireFrame{FrameNumber: 0, Time: 0})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if f.AgentCount != 0 || f.Size != 12 {
		t.Errorf("got agentCount=%d size=%d, want 0 and 12", f.AgentCount, f.Size)
	}
}

func TestEncodeMalformed(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected int
		actual   int
	}{
		{
			name:     "subpoint count overruns",
			data:     []float64{1000, 0, 1, 0, 0, 0, 0, 0, 0, 1, 5, 0.5, 0.6},
			expected: 16,
			actual:   13,
		},
		{
			name:     "truncated fixed fields",
			data:     []float64{1000, 0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 1000, 1},
			expected: 11,
			actual:   2,
		},
		{
			name:     "negative subpoint count",
			data:     []float64{1000, 0, 1, 0, 0, 0, 0, 0, 0, 1, -1},
			expected: 11,
			actual:   11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(WireFrame{Data: tt.data})
			if !errors.Is(err, ErrMalformedData) {
				t.Fatalf("err = %v, want ErrMalformedData", err)
			}
			var me *MalformedDataError
			if !errors.As(err, &me) {
				t.Fatalf("err %T is not *MalformedDataError", err)
			}
			if me.Expected != tt.expected || me.Actual != tt.actual {
				t.Errorf("got expected=%d actual=%d, want %d and %d", me.Expected, me.Actual, tt.expected, tt.actual)
			}
		})
	}
}

func TestDecodeRejectsOverrun(t *testing.T) {
	f, err := Encode(WireFrame{FrameNumber: 1, Data: flatten(sampleAgents())})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Decode(f.Data[:len(f.Data)-8]); !errors.Is(err, ErrMalformedData) {
		t.Errorf("Decode of truncated frame: err = %v, want ErrMalformedData", err)
	}
	if _, err := ReadHeader(f.Data[:8]); !errors.Is(err, ErrMalformedData) {
		t.Errorf("ReadHeader of short buffer: err = %v, want ErrMalformedData", err)
	}
}

func TestDecodeRejectsInvalidCounts(t *testing.T) {
	tests := []struct {
		name  string
		patch func(data []byte)
	}{
		{"fractional subpoint count", func(data []byte) { putFloat32(data, (3+10)*4, 0.5) }},
		{"negative subpoint count", func(data []byte) { putFloat32(data, (3+10)*4, -1) }},
		{"huge agent count", func(data []byte) { putFloat32(data, 8, 1e12) }},
		{"negative agent count", func(data []byte) { putFloat32(data, 8, -3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Encode(WireFrame{FrameNumber: 1, Data: flatten(sampleAgents())})
			if err != nil {
				t.Fatal(err)
			}
			tt.patch(f.Data)
			if _, _, err := Decode(f.Data); !errors.Is(err, ErrMalformedData) {
				t.Errorf("err = %v, want ErrMalformedData", err)
			}
		})
	}
}

func TestEncodeBundle(t *testing.T) {
	msg := VisDataMessage{
		MsgType:    1,
		BundleSize: 2,
		BundleData: []WireFrame{
			{FrameNumber: 0, Time: 0, Data: flatten(sampleAgents()[:1])},
			{FrameNumber: 1, Time: 0.1, Data: flatten(sampleAgents())},
		},
	}
	frames, err := EncodeBundle(msg)
	if err != nil {
		t.Fatalf("EncodeBundle failed: %v", err)
	}
	if len(frames) != 2 || frames[0].AgentCount != 1 || frames[1].AgentCount != 3 {
		t.Errorf("unexpected frames: %+v", frames)
	}

	msg.BundleData = append(msg.BundleData, WireFrame{FrameNumber: 2, Data: []float64{1, 2}})
	if _, err := EncodeBundle(msg); !errors.Is(err, ErrMalformedData) {
		t.Errorf("err = %v, want ErrMalformedData", err)
	}
}
