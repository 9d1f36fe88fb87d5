package finalizer

import (
	"os"
	"strings"
	"testing"

	"github.com/unalkalkan/narrator/pkg/types"
)

func TestFFmpegArgsWAV(t *testing.T) {
	f := &Finalizer{opts: Options{Format: "wav", SampleRate: 48000, Title: "My Book", Author: "Jane Doe"}}
	args := f.ffmpegArgs("/tmp/stream.pcm", 48000, "", "/tmp/out.wav")

	joined := strings.Join(args, " ")
	for _, want := range []string{"-f s16le", "-ar 48000", "pcm_s16le", "title=My Book", "artist=Jane Doe", "/tmp/out.wav", "-skip_initial_bytes 16"} {
		if !strings.Contains(joined, want) {
			t.Errorf("ffmpeg args %q missing %q", joined, want)
		}
	}
}

func TestFFmpegArgsM4BIncludesChapterMetadata(t *testing.T) {
	f := &Finalizer{opts: Options{Format: "m4b"}}
	args := f.ffmpegArgs("/tmp/stream.pcm", 48000, "/tmp/chapters.tmp", "/tmp/out.m4b")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-i /tmp/chapters.tmp") {
		t.Errorf("expected chapter metadata input wired in, got %q", joined)
	}
	if !strings.Contains(joined, "-map_metadata 1") {
		t.Errorf("expected -map_metadata 1, got %q", joined)
	}
	if !strings.Contains(joined, "-f mp4") {
		t.Errorf("expected mp4 container for m4b, got %q", joined)
	}
}

func TestOffsetToMillis(t *testing.T) {
	// 48000 Hz mono 16-bit: 48000 frames/sec * 2 bytes/frame = 96000 bytes/sec.
	got := offsetToMillis(96000, 48000, 2)
	if got != 1000 {
		t.Errorf("offsetToMillis(96000, 48000, 2) = %d, want 1000", got)
	}
}

func TestWriteChapterMetadataFormat(t *testing.T) {
	dir := t.TempDir()
	markers := types.ChapterMarkerTable{
		{Ordinal: 0, Title: "Chapter One", Offset: 16},
		{Ordinal: 3, Title: "Chapter Two", Offset: 96016},
	}

	path, err := writeChapterMetadata(dir, markers, 48000, "Title", "Author")
	if err != nil {
		t.Fatalf("writeChapterMetadata: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metadata file: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, ";FFMETADATA1") {
		t.Errorf("metadata file missing FFMETADATA1 header: %q", content)
	}
	if strings.Count(content, "[CHAPTER]") != 2 {
		t.Errorf("expected 2 chapter blocks, got content %q", content)
	}
	if !strings.Contains(content, "title=Chapter One") {
		t.Errorf("missing first chapter title: %q", content)
	}
	if !strings.Contains(content, "title=Chapter Two") {
		t.Errorf("missing second chapter title: %q", content)
	}
}

func TestExtFor(t *testing.T) {
	cases := map[string]string{"mp3": ".mp3", "wav": ".wav", "m4a": ".m4a", "m4b": ".m4b", "unknown": ".wav"}
	for format, want := range cases {
		if got := extFor(format); got != want {
			t.Errorf("extFor(%q) = %q, want %q", format, got, want)
		}
	}
}
