package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestPassthroughBinary(t *testing.T) {
	frame, err := Encode(WireFrame{FrameNumber: 9, Time: 0.9, Data: flatten(sampleAgents())})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "a", "abcd", "trajectory.simularium"} {
		t.Run("name="+name, func(t *testing.T) {
			raw := WrapBinary(1, name, frame.Data)

			n, err := EnvelopeLength(raw)
			if err != nil {
				t.Fatalf("EnvelopeLength failed: %v", err)
			}
			want := 8 + (len(name)+3)/4*4
			if n != want {
				t.Errorf("EnvelopeLength = %d, want %d", n, want)
			}

			got, err := PassthroughBinary(raw)
			if err != nil {
				t.Fatalf("PassthroughBinary failed: %v", err)
			}
			if !bytes.Equal(got.Data, frame.Data) {
				t.Error("passthrough data differs from wrapped frame")
			}
			if &got.Data[0] != &raw[n] {
				t.Error("passthrough copied the frame instead of slicing it")
			}
			if got.FrameNumber != 9 || got.AgentCount != 3 {
				t.Errorf("header mismatch: %+v", got)
			}

			msgType, gotName, err := EnvelopeInfo(raw)
			if err != nil || msgType != 1 || gotName != name {
				t.Errorf("EnvelopeInfo = (%d, %q, %v), want (1, %q, nil)", msgType, gotName, err, name)
			}
		})
	}
}

func TestPassthroughBinaryTooShort(t *testing.T) {
	raw := WrapBinary(1, "abc", []byte{1, 2, 3, 4})
	if _, err := PassthroughBinary(raw); !errors.Is(err, ErrMalformedData) {
		t.Errorf("err = %v, want ErrMalformedData", err)
	}
	if _, err := PassthroughBinary([]byte{0, 0}); !errors.Is(err, ErrMalformedData) {
		t.Errorf("err = %v, want ErrMalformedData", err)
	}
}

func TestEnvelopeNameLengthOutOfRange(t *testing.T) {
	frame, err := Encode(WireFrame{FrameNumber: 1, Data: flatten(sampleAgents()[:1])})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		nameLen float32
	}{
		{"huge", float32(math.Pow(2, 63))},
		{"past end", 1 << 20},
		{"infinite", float32(math.Inf(1))},
		{"nan", float32(math.NaN())},
		{"fractional", 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := WrapBinary(1, "abcd", frame.Data)
			putFloat32(raw, 4, tt.nameLen)

			if _, err := EnvelopeLength(raw); !errors.Is(err, ErrMalformedData) {
				t.Errorf("EnvelopeLength: err = %v, want ErrMalformedData", err)
			}
			if _, err := PassthroughBinary(raw); !errors.Is(err, ErrMalformedData) {
				t.Errorf("PassthroughBinary: err = %v, want ErrMalformedData", err)
			}
			if _, _, err := EnvelopeInfo(raw); !errors.Is(err, ErrMalformedData) {
				t.Errorf("EnvelopeInfo: err = %v, want ErrMalformedData", err)
			}
		})
	}
}
