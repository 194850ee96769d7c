package uart

import (
	"errors"
	"testing"
)

func TestFakePortReadsFedBytesInOrder(t *testing.T) {
	f := &FakePort{}
	f.Feed([]byte{0x01, 0x02, 0x03})

	n, err := f.Available()
	if err != nil || n != 3 {
		t.Fatalf("Available() = %d, %v, want 3, nil", n, err)
	}
	for _, want := range []byte{0x01, 0x02, 0x03} {
		b, err := f.ReadByte()
		if err != nil || b != want {
			t.Fatalf("ReadByte() = 0x%02X, %v, want 0x%02X, nil", b, err, want)
		}
	}
	if _, err := f.ReadByte(); err == nil {
		t.Fatal("ReadByte() on empty buffer should error")
	}
}

func TestFakePortRecordsWrites(t *testing.T) {
	f := &FakePort{}
	if err := f.WriteArray([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteArray: %v", err)
	}
	if len(f.Written) != 1 || string(f.Written[0]) != "\xAA\xBB" {
		t.Fatalf("Written = %+v", f.Written)
	}
}

func TestFakePortFailWrites(t *testing.T) {
	f := &FakePort{}
	want := errors.New("boom")
	f.FailWrites(want)
	if err := f.WriteArray([]byte{0x01}); err != want {
		t.Fatalf("WriteArray err = %v, want %v", err, want)
	}
}
