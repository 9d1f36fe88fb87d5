// Package checkpoint implements the Checkpoint Log: a tiny,
// fsync-durable record of progress written with a double-buffer
// discipline so a crash mid-write never corrupts the last good
// checkpoint.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/unalkalkan/narrator/pkg/types"
)

const (
	slotA    = "checkpoint.a"
	slotB    = "checkpoint.b"
	nextFile = "checkpoint.next"
)

var magic = [8]byte{'C', 'K', 'P', 'T', 0, 0, 0, 1}

// Log owns the two alternating checkpoint slots for one session
// workspace. It is the single writer; Checkpoint Log writes are
// serial and only happen after the Stream Writer has acknowledged
// durability of the bytes the checkpoint describes.
type Log struct {
	dir    string
	active string // path of the slot currently believed durable
}

// Open locates the workspace's checkpoint slots. It does not itself
// read or validate any existing checkpoint — call Load for that.
func Open(workspaceDir string) *Log {
	return &Log{dir: workspaceDir}
}

// Write persists cp using the write-next/fsync/rename/fsync-dir
// discipline: write to checkpoint.next, fsync, rename over the
// inactive slot, fsync the directory, then flip the active pointer.
func (l *Log) Write(cp types.Checkpoint) error {
	data, err := encode(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	nextPath := filepath.Join(l.dir, nextFile)
	if err := os.WriteFile(nextPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint.next: %w", err)
	}
	if err := syncFile(nextPath); err != nil {
		return err
	}

	inactive := l.inactiveSlot()
	inactivePath := filepath.Join(l.dir, inactive)
	if err := os.Rename(nextPath, inactivePath); err != nil {
		return fmt.Errorf("rename checkpoint into slot %s: %w", inactive, err)
	}
	if err := syncDir(l.dir); err != nil {
		return err
	}

	l.active = inactive
	return nil
}

func (l *Log) inactiveSlot() string {
	if l.active == slotA {
		return slotB
	}
	return slotA
}

// Load reads both slots, validates CRC and version on each, and
// returns the one with the higher LastCompletedOrdinal. If neither
// slot validates, ok is false — the caller's policy is to discard the
// workspace and restart from chunk 0.
func (l *Log) Load() (cp types.Checkpoint, ok bool) {
	a, aOK := l.readSlot(slotA)
	b, bOK := l.readSlot(slotB)

	switch {
	case aOK && bOK:
		if a.LastCompletedOrdinal >= b.LastCompletedOrdinal {
			l.active = slotA
			return a, true
		}
		l.active = slotB
		return b, true
	case aOK:
		l.active = slotA
		return a, true
	case bOK:
		l.active = slotB
		return b, true
	default:
		return types.Checkpoint{}, false
	}
}

// SlotsExist reports whether either checkpoint slot file is present on
// disk, regardless of whether it validates. Load returning ok=false
// while SlotsExist reports true means a slot file exists but failed
// its CRC/version check (corruption), as opposed to this simply being
// a session with no prior checkpoint at all.
func (l *Log) SlotsExist() bool {
	for _, name := range []string{slotA, slotB} {
		if _, err := os.Stat(filepath.Join(l.dir, name)); err == nil {
			return true
		}
	}
	return false
}

func (l *Log) readSlot(name string) (types.Checkpoint, bool) {
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return types.Checkpoint{}, false
	}
	cp, err := decode(data)
	if err != nil {
		return types.Checkpoint{}, false
	}
	return cp, true
}

// encode renders a Checkpoint using the binary layout:
// magic(8) | version(u32) | fingerprint_len(u32) | fingerprint(bytes)
// | last_ordinal(u64) | stream_offset(u64) | n_markers(u32) |
// markers[ordinal(u64) title_len(u32) title(utf8) offset(u64)]...
// followed by crc32(u32) over everything preceding it.
func encode(cp types.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU32(&buf, types.CheckpointFormatVersion)
	writeU32(&buf, uint32(len(cp.Fingerprint)))
	buf.Write(cp.Fingerprint)
	writeU64(&buf, cp.LastCompletedOrdinal)
	writeU64(&buf, cp.StreamByteOffset)
	writeU32(&buf, uint32(len(cp.ChapterMarkers)))
	for _, m := range cp.ChapterMarkers {
		writeU64(&buf, uint64(m.Ordinal))
		titleBytes := []byte(m.Title)
		writeU32(&buf, uint32(len(titleBytes)))
		buf.Write(titleBytes)
		writeU64(&buf, m.Offset)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	writeU32(&buf, sum)

	return buf.Bytes(), nil
}

func decode(data []byte) (types.Checkpoint, error) {
	var cp types.Checkpoint
	if len(data) < 8+4+4+4 {
		return cp, fmt.Errorf("checkpoint too short")
	}
	if !bytes.Equal(data[0:8], magic[:]) {
		return cp, fmt.Errorf("bad checkpoint magic")
	}

	if len(data) < 4 {
		return cp, fmt.Errorf("truncated checkpoint")
	}
	body := data[:len(data)-4]
	wantCRC := readU32(data[len(data)-4:])
	gotCRC := crc32.ChecksumIEEE(body)
	if gotCRC != wantCRC {
		return cp, fmt.Errorf("checkpoint crc mismatch")
	}

	r := bytes.NewReader(data[8:])

	version, err := readNextU32(r)
	if err != nil {
		return cp, err
	}
	if version != types.CheckpointFormatVersion {
		return cp, fmt.Errorf("unsupported checkpoint version %d", version)
	}

	fpLen, err := readNextU32(r)
	if err != nil {
		return cp, err
	}
	fp := make([]byte, fpLen)
	if _, err := r.Read(fp); err != nil {
		return cp, fmt.Errorf("read fingerprint: %w", err)
	}
	cp.Fingerprint = fp
	cp.Version = version

	lastOrdinal, err := readNextU64(r)
	if err != nil {
		return cp, err
	}
	cp.LastCompletedOrdinal = lastOrdinal

	streamOffset, err := readNextU64(r)
	if err != nil {
		return cp, err
	}
	cp.StreamByteOffset = streamOffset

	nMarkers, err := readNextU32(r)
	if err != nil {
		return cp, err
	}
	markers := make(types.ChapterMarkerTable, 0, nMarkers)
	for i := uint32(0); i < nMarkers; i++ {
		ordinal, err := readNextU64(r)
		if err != nil {
			return cp, err
		}
		titleLen, err := readNextU32(r)
		if err != nil {
			return cp, err
		}
		titleBytes := make([]byte, titleLen)
		if _, err := r.Read(titleBytes); err != nil {
			return cp, fmt.Errorf("read marker title: %w", err)
		}
		offset, err := readNextU64(r)
		if err != nil {
			return cp, err
		}
		markers = append(markers, types.ChapterMarker{
			Ordinal: int(ordinal),
			Title:   string(titleBytes),
			Offset:  offset,
		})
	}
	cp.ChapterMarkers = markers

	return cp, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func readNextU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read u32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readNextU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read u64: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("reopen for sync: %w", err)
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer f.Close()
	return f.Sync()
}
