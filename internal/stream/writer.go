// Package stream implements the StreamFile writer: it appends chunk
// PCM to a single growing, append-only intermediate audio file and
// reports the post-write byte offset.
package stream

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Magic is the 8-byte StreamFile header magic.
var Magic = [8]byte{'A', 'U', 'R', 'D', 'R', 0, 0, 0}

const HeaderVersion uint32 = 1
const HeaderSize = 16 // magic(8) + version(u32) + sample_rate(u32)

// Writer owns exclusive access to one session's StreamFile. It is the
// single writer in the pipeline; no concurrent writers are permitted.
type Writer struct {
	path       string
	file       *os.File
	sampleRate uint32
	size       uint64
}

// Open creates or reopens the StreamFile at path in append mode. A new
// file gets its 16-byte header written (and synced) here, before any
// Append.
func Open(path string, sampleRate uint32) (*Writer, error) {
	existing, statErr := os.Stat(path)
	isNew := statErr != nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open stream file: %w", err)
	}

	w := &Writer{path: path, file: f, sampleRate: sampleRate}

	if isNew {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		w.size = HeaderSize
	} else {
		w.size = uint64(existing.Size())
	}

	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek to end: %w", err)
	}

	return w, nil
}

func (w *Writer) writeHeader() error {
	var hdr [HeaderSize]byte
	copy(hdr[0:8], Magic[:])
	binary.LittleEndian.PutUint32(hdr[8:12], HeaderVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], w.sampleRate)
	if _, err := w.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return w.file.Sync()
}

// Append writes pcm (int16 little-endian frames) to the stream, syncs
// to disk, and returns the new total file size. A partially-written
// tail past the last durable Checkpoint is recoverable only by
// truncation on resume — Append itself never rolls back a partial
// write.
func (w *Writer) Append(pcm []int16) (uint64, error) {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}

	n, err := w.file.Write(buf)
	if err != nil {
		return w.size, fmt.Errorf("write pcm: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return w.size, fmt.Errorf("fsync stream file: %w", err)
	}

	w.size += uint64(n)
	return w.size, nil
}

// Size returns the current stream file size.
func (w *Writer) Size() uint64 { return w.size }

// TruncateTo truncates the stream file to exactly offset bytes,
// discarding any partially-written tail beyond the last checkpoint,
// and reseeks to the new end for subsequent Append calls.
func (w *Writer) TruncateTo(offset uint64) error {
	if err := w.file.Truncate(int64(offset)); err != nil {
		return fmt.Errorf("truncate stream file: %w", err)
	}
	if _, err := w.file.Seek(int64(offset), os.SEEK_SET); err != nil {
		return fmt.Errorf("seek after truncate: %w", err)
	}
	w.size = offset
	return nil
}

func (w *Writer) Close() error {
	return w.file.Close()
}

// ReadHeader reads and validates the 16-byte StreamFile header,
// returning the declared sample rate.
func ReadHeader(path string) (sampleRate uint32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open stream file: %w", err)
	}
	defer f.Close()

	var hdr [HeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if string(hdr[0:8]) != string(Magic[:]) {
		return 0, fmt.Errorf("bad stream file magic")
	}
	version := binary.LittleEndian.Uint32(hdr[8:12])
	if version != HeaderVersion {
		return 0, fmt.Errorf("unsupported stream file version %d", version)
	}
	return binary.LittleEndian.Uint32(hdr[12:16]), nil
}
