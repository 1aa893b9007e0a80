// Package rw provides the little-endian binary reader/writer used by the
// navigation mesh cache format. Readers panic on short reads; the
// serializer converts that into a decode error at its boundary.
package rw

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
)

type ReaderWriter struct {
	order   binary.ByteOrder
	dataBuf []byte
	rw      bytes.Buffer
}

func NewWriter() *ReaderWriter {
	return &ReaderWriter{order: binary.LittleEndian, dataBuf: make([]byte, 8)}
}

func NewReader(data []byte) *ReaderWriter {
	r := &ReaderWriter{order: binary.LittleEndian, dataBuf: make([]byte, 8)}
	r.rw.Write(data)
	return r
}

func (w *ReaderWriter) ReadUInt8() uint8 {
	res, err := w.rw.ReadByte()
	if err != nil {
		panic(err)
	}
	return res
}

func (w *ReaderWriter) ReadUInt8s(value []uint8) {
	for i := range value {
		value[i] = w.ReadUInt8()
	}
}

func (w *ReaderWriter) ReadUInt16() uint16 {
	w.read(2)
	return w.order.Uint16(w.dataBuf[:2])
}

func (w *ReaderWriter) ReadUInt16s(value []uint16) {
	for i := range value {
		value[i] = w.ReadUInt16()
	}
}

func (w *ReaderWriter) ReadInt32() int32 {
	return int32(w.ReadUInt32())
}

func (w *ReaderWriter) ReadUInt32() uint32 {
	w.read(4)
	return w.order.Uint32(w.dataBuf[:4])
}

func (w *ReaderWriter) ReadUInt64() uint64 {
	w.read(8)
	return w.order.Uint64(w.dataBuf[:8])
}

func (w *ReaderWriter) ReadInt64() int64 {
	return int64(w.ReadUInt64())
}

func (w *ReaderWriter) ReadFloat32() float32 {
	return math.Float32frombits(w.ReadUInt32())
}

func (w *ReaderWriter) ReadFloat32s(value []float32) {
	for i := range value {
		value[i] = w.ReadFloat32()
	}
}

func (w *ReaderWriter) read(n int) {
	got, err := io.ReadFull(&w.rw, w.dataBuf[:n])
	if err != nil || got != n {
		panic(io.ErrUnexpectedEOF)
	}
}

func (w *ReaderWriter) WriteUInt8(v uint8) {
	w.rw.WriteByte(v)
}

func (w *ReaderWriter) WriteUInt8s(v []uint8) {
	w.rw.Write(v)
}

func (w *ReaderWriter) WriteUInt16(v uint16) {
	w.order.PutUint16(w.dataBuf[:2], v)
	w.rw.Write(w.dataBuf[:2])
}

func (w *ReaderWriter) WriteUInt16s(v []uint16) {
	for _, e := range v {
		w.WriteUInt16(e)
	}
}

func (w *ReaderWriter) WriteInt32(v int32) {
	w.WriteUInt32(uint32(v))
}

func (w *ReaderWriter) WriteUInt32(v uint32) {
	w.order.PutUint32(w.dataBuf[:4], v)
	w.rw.Write(w.dataBuf[:4])
}

func (w *ReaderWriter) WriteUInt64(v uint64) {
	w.order.PutUint64(w.dataBuf[:8], v)
	w.rw.Write(w.dataBuf[:8])
}

func (w *ReaderWriter) WriteInt64(v int64) {
	w.WriteUInt64(uint64(v))
}

func (w *ReaderWriter) WriteFloat32(v float32) {
	w.WriteUInt32(math.Float32bits(v))
}

func (w *ReaderWriter) WriteFloat32s(v []float32) {
	for _, e := range v {
		w.WriteFloat32(e)
	}
}

func (w *ReaderWriter) GetWriteBytes() []byte {
	return w.rw.Bytes()
}

func (w *ReaderWriter) Size() int {
	return w.rw.Len()
}

// Compress gzips data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uncompress reverses Compress.
func Uncompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
