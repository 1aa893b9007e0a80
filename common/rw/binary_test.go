package rw

import (
	"bytes"
	"testing"
)

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUInt8(0xab)
	w.WriteUInt16(0x1234)
	w.WriteInt32(-42)
	w.WriteUInt32(0xdeadbeef)
	w.WriteInt64(-1 << 40)
	w.WriteFloat32(3.5)
	w.WriteUInt16s([]uint16{1, 2, 3})
	w.WriteFloat32s([]float32{-1, 0, 1})

	r := NewReader(w.GetWriteBytes())
	if got := r.ReadUInt8(); got != 0xab {
		t.Errorf("uint8: got %#x", got)
	}
	if got := r.ReadUInt16(); got != 0x1234 {
		t.Errorf("uint16: got %#x", got)
	}
	if got := r.ReadInt32(); got != -42 {
		t.Errorf("int32: got %d", got)
	}
	if got := r.ReadUInt32(); got != 0xdeadbeef {
		t.Errorf("uint32: got %#x", got)
	}
	if got := r.ReadInt64(); got != -1<<40 {
		t.Errorf("int64: got %d", got)
	}
	if got := r.ReadFloat32(); got != 3.5 {
		t.Errorf("float32: got %v", got)
	}
	u16 := make([]uint16, 3)
	r.ReadUInt16s(u16)
	if u16[0] != 1 || u16[1] != 2 || u16[2] != 3 {
		t.Errorf("uint16s: got %v", u16)
	}
	f32 := make([]float32, 3)
	r.ReadFloat32s(f32)
	if f32[0] != -1 || f32[1] != 0 || f32[2] != 1 {
		t.Errorf("float32s: got %v", f32)
	}
}

func TestReaderPanicsOnShortRead(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("short read should panic")
		}
	}()
	NewReader([]byte{1, 2}).ReadUInt32()
}

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("navigation"), 100)
	packed, err := Compress(payload)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(packed) >= len(payload) {
		t.Errorf("repetitive payload should shrink: %d -> %d", len(payload), len(packed))
	}
	got, err := Uncompress(packed)
	if err != nil {
		t.Fatalf("Uncompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted by the compression round trip")
	}

	if _, err := Uncompress([]byte{0, 1, 2}); err == nil {
		t.Error("garbage input should fail to uncompress")
	}
}
