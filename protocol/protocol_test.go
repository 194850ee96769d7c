package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeLedCtl(t *testing.T) {
	payload := []byte{byte(UpperLED), 0x00, 0x64, 0x00, 0x64, 0x00, 0x01}
	got, err := Encode(nil, ReqLedCtl, 1, payload)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xAA, 0xAA, 0x0E, 0x0E, 0x01, 0x01, 0x00, 0x64, 0x00, 0x64, 0x00, 0x01}
	crc := crc16(want, 0xFFFF)
	want = append(want, byte(crc>>8), byte(crc))
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		typ := uint8(rng.Intn(256))
		seq := uint8(1 + rng.Intn(254))
		n := rng.Intn(MaxPayload + 1)
		payload := make([]byte, n)
		rng.Read(payload)

		buf, err := Encode(nil, typ, seq, payload)
		if err != nil {
			t.Fatal(err)
		}
		frame, consumed, err := Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		if consumed != len(buf) {
			t.Fatalf("consumed %d, want %d", consumed, len(buf))
		}
		if frame.Type != typ || frame.Seq != seq || !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("got %+v, want type=%x seq=%x payload=% x", frame, typ, seq, payload)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good, err := Encode(nil, ReqGetStatus, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"short", []byte{0xAA}, ErrShortBuffer},
		{"bad magic", []byte{0xAA, 0xAB, 0x07, 0x01, 0x01, 0x00, 0x00}, ErrBadMagic},
		{"bad length too small", func() []byte {
			b := append([]byte(nil), good...)
			b[2] = MinSize - 1
			return b
		}(), ErrBadLength},
		{"truncated body", good[:len(good)-1], ErrShortBuffer},
		{"bad crc", func() []byte {
			b := append([]byte(nil), good...)
			b[len(b)-1] ^= 0xFF
			return b
		}(), ErrBadCRC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.buf)
			if err != tc.want {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStatusReportFlags(t *testing.T) {
	payload := make([]byte, StatusReportSize)
	payload[0] = 0x01
	payload[1] = 0x01
	payload[2] = 0x01
	s, err := DecodeStatusReport(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsDoorOpen() || !s.HasFood() || !s.IsReady() {
		t.Fatalf("got %+v, want all flags set", s)
	}

	payload[1] = 0x00
	s, err = DecodeStatusReport(payload)
	if err != nil {
		t.Fatal(err)
	}
	if s.HasFood() {
		t.Fatal("expected HasFood false")
	}
}
