// Package artifacts stores run evidence: screenshots and short device log
// captures, under the run's output directory.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	screenshotDir = "screenshots"
	logDir        = "logs"
	tsLayout      = "20060102_150405"
)

// CommandFunc runs an external command and returns its combined output.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

type Manager struct {
	outDir  string
	serial  string
	now     func() time.Time
	command CommandFunc
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithCommand(fn CommandFunc) Option { return func(m *Manager) { m.command = fn } }

// WithSerial targets one device when several are attached to adb.
func WithSerial(serial string) Option { return func(m *Manager) { m.serial = serial } }

// New creates the screenshots/ and logs/ directories under outDir.
func New(outDir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		outDir:  outDir,
		now:     time.Now,
		command: runCommand,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, dir := range []string{screenshotDir, logDir} {
		if err := os.MkdirAll(filepath.Join(outDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return m, nil
}

func (m *Manager) OutDir() string { return m.outDir }

// SavePNG writes a screenshot and returns its path.
func (m *Manager) SavePNG(name string, data []byte) (string, error) {
	path := m.path(screenshotDir, name, ".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// Logcat dumps the device log of the last window through adb. The start is
// taken from the host clock, so device and host are assumed to be in sync.
// The file is written even when adb fails, holding whatever output it
// produced.
func (m *Manager) Logcat(ctx context.Context, name string, window time.Duration) (string, error) {
	path := m.path(logDir, name, ".txt")

	var args []string
	if m.serial != "" {
		args = append(args, "-s", m.serial)
	}
	since := m.now().Add(-window)
	args = append(args, "logcat", "-d", "-T", fmt.Sprintf("%d.%03d", since.Unix(), since.Nanosecond()/int(time.Millisecond)))

	out, runErr := m.command(ctx, "adb", args...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write logcat: %w", err)
	}
	if runErr != nil {
		return path, fmt.Errorf("adb logcat: %w", runErr)
	}
	return path, nil
}

func (m *Manager) path(dir, name, ext string) string {
	return filepath.Join(m.outDir, dir, m.now().Format(tsLayout)+"_"+name+ext)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
