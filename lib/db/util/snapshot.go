package util

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Snapshot layout (all integers little endian):
//
//	magic "XKVSNAP\x00" | version u8 | engine name (u8 len + bytes) | write index u64 | entry count u64
//	entries: key len u32 | key | value len u32 | value
const (
	snapshotMagic   = "XKVSNAP\x00"
	snapshotVersion = 1
	bufferSize      = 1024 * 1024 // 1 MB
)

var ErrSnapshotFormat = errors.New("invalid snapshot format")

// SnapshotHeader is the metadata written in front of the entries
type SnapshotHeader struct {
	Engine   string
	WriteIdx uint64
	Count    uint64
}

// SnapshotWriter writes a snapshot to an underlying writer
type SnapshotWriter struct {
	bw      *bufio.Writer
	written uint64
	count   uint64
}

// NewSnapshotWriter writes the header and returns a writer for exactly h.Count entries
func NewSnapshotWriter(w io.Writer, h SnapshotHeader) (*SnapshotWriter, error) {
	bw := bufio.NewWriterSize(w, bufferSize)
	if len(h.Engine) > 255 {
		return nil, fmt.Errorf("engine name too long: %q", h.Engine)
	}

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return nil, err
	}
	if err := bw.WriteByte(snapshotVersion); err != nil {
		return nil, err
	}
	if err := bw.WriteByte(byte(len(h.Engine))); err != nil {
		return nil, err
	}
	if _, err := bw.WriteString(h.Engine); err != nil {
		return nil, err
	}
	if err := binary.Write(bw, binary.LittleEndian, h.WriteIdx); err != nil {
		return nil, err
	}
	if err := binary.Write(bw, binary.LittleEndian, h.Count); err != nil {
		return nil, err
	}
	return &SnapshotWriter{bw: bw, count: h.Count}, nil
}

// WriteEntry appends a single entry
func (sw *SnapshotWriter) WriteEntry(key string, value []byte) error {
	if sw.written == sw.count {
		return fmt.Errorf("snapshot header announced %d entries", sw.count)
	}
	if err := binary.Write(sw.bw, binary.LittleEndian, uint32(len(key))); err != nil {
		return err
	}
	if _, err := sw.bw.WriteString(key); err != nil {
		return err
	}
	if err := binary.Write(sw.bw, binary.LittleEndian, uint32(len(value))); err != nil {
		return err
	}
	if _, err := sw.bw.Write(value); err != nil {
		return err
	}
	sw.written++
	return nil
}

// Close flushes the buffer and checks that all announced entries were written
func (sw *SnapshotWriter) Close() error {
	if sw.written != sw.count {
		return fmt.Errorf("snapshot incomplete: wrote %d of %d entries", sw.written, sw.count)
	}
	return sw.bw.Flush()
}

// ReadSnapshot reads a snapshot and calls fn for every entry.
// The key and value passed to fn are freshly allocated and may be retained.
func ReadSnapshot(r io.Reader, fn func(key string, value []byte)) (SnapshotHeader, error) {
	br := bufio.NewReaderSize(r, bufferSize)
	var h SnapshotHeader

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return h, err
	}
	if string(magic) != snapshotMagic {
		return h, fmt.Errorf("%w: magic number mismatch", ErrSnapshotFormat)
	}

	version, err := br.ReadByte()
	if err != nil {
		return h, err
	}
	if version != snapshotVersion {
		return h, fmt.Errorf("%w: unsupported version %d (expected %d)", ErrSnapshotFormat, version, snapshotVersion)
	}

	nameLen, err := br.ReadByte()
	if err != nil {
		return h, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return h, err
	}
	h.Engine = string(name)

	if err := binary.Read(br, binary.LittleEndian, &h.WriteIdx); err != nil {
		return h, err
	}
	if err := binary.Read(br, binary.LittleEndian, &h.Count); err != nil {
		return h, err
	}

	for i := uint64(0); i < h.Count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return h, err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return h, err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return h, err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return h, err
		}

		fn(string(key), value)
	}
	return h, nil
}
