package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckEnvironmentFailsOnMissingFFmpeg(t *testing.T) {
	err := CheckEnvironment(context.Background(), "definitely-not-a-real-binary", t.TempDir())
	if err == nil {
		t.Error("CheckEnvironment: expected error for a nonexistent ffmpeg binary")
	}
}

func TestCheckerAggregatesMultipleFailures(t *testing.T) {
	c := NewChecker()
	c.Register("always_bad", func(ctx context.Context) (Status, error) {
		return StatusUnhealthy, context.DeadlineExceeded
	})
	c.Register("also_bad", func(ctx context.Context) (Status, error) {
		return StatusUnhealthy, context.Canceled
	})
	c.Register("always_good", func(ctx context.Context) (Status, error) {
		return StatusHealthy, nil
	})

	result := c.Run(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Result.Status = %v, want unhealthy", result.Status)
	}
	for _, name := range []string{"always_bad", "also_bad"} {
		if result.Checks[name].Status != StatusUnhealthy || result.Checks[name].Error == "" {
			t.Errorf("%s check = %+v, want unhealthy with its error recorded", name, result.Checks[name])
		}
	}
	if result.Checks["always_good"].Status != StatusHealthy {
		t.Errorf("always_good check = %v, want healthy", result.Checks["always_good"].Status)
	}
}

func TestWorkspaceWritableCheckCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "workspace")
	// The workspace check runs whether or not ffmpeg is installed, so
	// only the directory's existence is asserted; an ffmpeg failure is
	// logged, not treated as a test failure.
	err := CheckEnvironment(context.Background(), "ffmpeg", dir)
	if err != nil {
		t.Logf("CheckEnvironment returned %v (acceptable if ffmpeg is absent in this environment)", err)
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		t.Errorf("workspace dir %s not created: %v", dir, statErr)
	}
}
