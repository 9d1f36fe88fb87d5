// Package finalizer drives ffmpeg to encode the raw StreamFile PCM
// into the requested delivery format, injects chapter markers for
// container formats that support them, and atomically moves the
// finished artifact into place.
package finalizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/unalkalkan/narrator/internal/stream"
	"github.com/unalkalkan/narrator/pkg/types"
)

// Options configures one finalization run.
type Options struct {
	FFmpegBin    string
	SampleRate   uint32
	Format       string // mp3, wav, m4a, m4b
	Title        string
	Author       string
	Destination  string // final artifact path
	WorkspaceDir string // session directory to delete after a successful move
}

// Finalizer wraps the ffmpeg invocation used to package a finished
// StreamFile.
type Finalizer struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Finalizer {
	return &Finalizer{opts: opts, log: log}
}

// Finalize verifies the StreamFile is exactly as long as the
// checkpoint claims (truncating any accidental overrun), then encodes
// it via ffmpeg, injects chapter markers for m4b, writes metadata, and
// moves the result to Destination.
func (f *Finalizer) Finalize(ctx context.Context, streamPath string, cp types.Checkpoint) error {
	if err := f.reconcileStreamSize(streamPath, cp.StreamByteOffset); err != nil {
		return fmt.Errorf("reconcile stream size: %w", err)
	}

	sampleRate, err := stream.ReadHeader(streamPath)
	if err != nil {
		return fmt.Errorf("read stream header: %w", err)
	}

	tmpOut := f.opts.Destination + ".tmp" + extFor(f.opts.Format)

	var metaPath string
	if f.opts.Format == "m4b" && len(cp.ChapterMarkers) > 0 {
		metaPath, err = writeChapterMetadata(f.opts.WorkspaceDir, cp.ChapterMarkers, sampleRate, f.opts.Title, f.opts.Author)
		if err != nil {
			return fmt.Errorf("write chapter metadata: %w", err)
		}
	}

	args := f.ffmpegArgs(streamPath, sampleRate, metaPath, tmpOut)
	ffmpeg := f.opts.FFmpegBin
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg binary not found: %w", err)
	}

	logOutput, err := runCommand(ctx, ffmpeg, args...)
	if err != nil {
		f.log.Error("ffmpeg encode failed", zap.String("output", logOutput), zap.Error(err))
		return types.NewPipelineError(types.KindFatalBackend, "finalizer.encode", fmt.Errorf("ffmpeg: %w", err))
	}
	f.log.Debug("ffmpeg encode finished", zap.String("output", logOutput))

	if err := os.MkdirAll(filepath.Dir(f.opts.Destination), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(tmpOut, f.opts.Destination); err != nil {
		return types.NewPipelineError(types.KindStorage, "finalizer.move", fmt.Errorf("move artifact into place: %w", err))
	}

	if err := os.RemoveAll(f.opts.WorkspaceDir); err != nil {
		f.log.Warn("failed to remove session workspace after finalize", zap.String("dir", f.opts.WorkspaceDir), zap.Error(err))
	}

	return nil
}

// reconcileStreamSize truncates the stream file if it grew past the
// checkpoint's recorded offset (a partial write after the last
// checkpoint that never got acknowledged), and fails if the file is
// shorter than that offset.
func (f *Finalizer) reconcileStreamSize(streamPath string, checkpointOffset uint64) error {
	info, err := os.Stat(streamPath)
	if err != nil {
		return fmt.Errorf("stat stream file: %w", err)
	}
	if uint64(info.Size()) < checkpointOffset {
		return fmt.Errorf("stream file is %d bytes, shorter than checkpoint offset %d", info.Size(), checkpointOffset)
	}
	if uint64(info.Size()) == checkpointOffset {
		return nil
	}
	w, err := stream.Open(streamPath, f.opts.SampleRate)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.TruncateTo(checkpointOffset)
}

func (f *Finalizer) ffmpegArgs(streamPath string, sampleRate uint32, metaPath, out string) []string {
	args := []string{
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(int(sampleRate)),
		"-ac", "1",
		"-skip_initial_bytes", strconv.Itoa(stream.HeaderSize),
		"-i", streamPath,
	}
	if metaPath != "" {
		args = append(args, "-i", metaPath, "-map_metadata", "1")
	}
	args = append(args, "-map", "0:a")

	switch f.opts.Format {
	case "mp3":
		args = append(args, "-acodec", "libmp3lame", "-ar", "48000", "-ac", "1")
	case "wav":
		args = append(args, "-acodec", "pcm_s16le", "-ar", "48000", "-ac", "1")
	case "m4a", "m4b":
		args = append(args, "-acodec", "aac", "-ar", "48000", "-ac", "1")
		if f.opts.Format == "m4b" {
			args = append(args, "-f", "mp4")
		}
	default:
		args = append(args, "-acodec", "pcm_s16le", "-ar", "48000", "-ac", "1")
	}

	if f.opts.Title != "" {
		args = append(args, "-metadata", "title="+f.opts.Title)
	}
	if f.opts.Author != "" {
		args = append(args, "-metadata", "artist="+f.opts.Author)
	}

	args = append(args, out)
	return args
}

// writeChapterMetadata renders an ffmpeg ffmetadata file with one
// [CHAPTER] block per marker, converting byte offsets into
// milliseconds via offset_bytes / (sample_rate * bytes_per_frame).
func writeChapterMetadata(workspaceDir string, markers types.ChapterMarkerTable, sampleRate uint32, title, author string) (string, error) {
	const bytesPerFrame = 2 // mono, 16-bit PCM

	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	if title != "" {
		b.WriteString("title=" + title + "\n")
	}
	if author != "" {
		b.WriteString("artist=" + author + "\n")
	}

	for i, m := range markers {
		startMs := offsetToMillis(m.Offset, sampleRate, bytesPerFrame)
		var endMs int64
		if i+1 < len(markers) {
			endMs = offsetToMillis(markers[i+1].Offset, sampleRate, bytesPerFrame)
		} else {
			endMs = startMs + 1 // ffmpeg requires end > start; the last chapter's END is not adjusted afterwards
		}
		b.WriteString("[CHAPTER]\n")
		b.WriteString("TIMEBASE=1/1000\n")
		b.WriteString(fmt.Sprintf("START=%d\n", startMs))
		b.WriteString(fmt.Sprintf("END=%d\n", endMs))
		b.WriteString("title=" + m.Title + "\n")
	}

	path := filepath.Join(workspaceDir, "chapters.tmp")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func offsetToMillis(offsetBytes uint64, sampleRate uint32, bytesPerFrame int) int64 {
	framesPerSecond := int64(sampleRate)
	if framesPerSecond == 0 {
		return 0
	}
	frames := int64(offsetBytes) / int64(bytesPerFrame)
	return (frames * 1000) / framesPerSecond
}

func extFor(format string) string {
	switch format {
	case "mp3":
		return ".mp3"
	case "wav":
		return ".wav"
	case "m4a":
		return ".m4a"
	case "m4b":
		return ".m4b"
	default:
		return ".wav"
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
