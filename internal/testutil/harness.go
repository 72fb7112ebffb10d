package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/modrun/internal/app"
	"github.com/specialistvlad/modrun/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteFiles writes files below dir, creating directories as needed. Names
// are slash-separated and relative to dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// HarnessResult holds the outcomes of an app test run.
type HarnessResult struct {
	Root      string
	Output    string
	LogOutput string
	Err       error
	App       *app.App
}

// RunAppTest writes files into a fresh project root, builds an App rooted
// there and runs it once. cfg may be nil; its Root is always replaced.
func RunAppTest(ctx context.Context, t *testing.T, files map[string]string, cfg *app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()

	root := t.TempDir()
	WriteFiles(t, root, files)

	if cfg == nil {
		cfg = &app.Config{}
	}
	cfg.Root = root
	if cfg.ConfigPath != "" && !filepath.IsAbs(cfg.ConfigPath) {
		cfg.ConfigPath = filepath.Join(root, cfg.ConfigPath)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	out, logs := &SafeBuffer{}, &SafeBuffer{}
	result := &HarnessResult{Root: root}
	t.Cleanup(func() {
		if os.Getenv("MODRUN_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	a, err := app.NewApp(ctx, out, logs, cfg, modules...)
	if err == nil {
		result.App = a
		err = a.Run(ctx)
	}
	result.Err = err
	result.Output = out.String()
	result.LogOutput = logs.String()
	return result
}
