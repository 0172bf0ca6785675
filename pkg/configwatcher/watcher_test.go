package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"school_dashboard_backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("quiz:\n  default_passing_score: 60\n"), 0o644))

	got := make(chan *config.Config, 1)
	w := New(file, func(cfg *config.Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	w.debounce = 10 * time.Millisecond
	w.load = func(string) (*config.Config, error) {
		return &config.Config{Quiz: config.QuizConfig{DefaultPassingScore: 75}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// fsnotify 注册需要一点时间
	require.Eventually(t, func() bool {
		_ = os.WriteFile(file, []byte("quiz:\n  default_passing_score: 75\n"), 0o644)
		select {
		case cfg := <-got:
			assert.Equal(t, 75.0, cfg.Quiz.DefaultPassingScore)
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
