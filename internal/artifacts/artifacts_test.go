package artifacts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/artifacts"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC) }

func TestNew_CreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	if _, err := artifacts.New(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"screenshots", "logs"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory, got %v", sub, err)
		}
	}
}

func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	m, err := artifacts.New(dir, artifacts.WithClock(fixedNow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := m.SavePNG("inject_before", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(dir, "screenshots", "20260301_093005_inject_before.png")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "\x89PNG" {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestLogcat(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string
	m, err := artifacts.New(dir,
		artifacts.WithClock(fixedNow),
		artifacts.WithCommand(func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			return []byte("I/ActivityManager: resumed\n"), nil
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := m.Logcat(context.Background(), "inject_logcat", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(gotArgs, []string{"adb", "logcat", "-d", "-T", "1772357375.000"}) {
		t.Fatalf("unexpected command %v", gotArgs)
	}
	if filepath.Base(path) != "20260301_093005_inject_logcat.txt" {
		t.Fatalf("unexpected file name %s", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "I/ActivityManager: resumed\n" {
		t.Fatalf("unexpected log content %q", data)
	}
}

func TestLogcat_TargetsSerial(t *testing.T) {
	var gotArgs []string
	m, err := artifacts.New(t.TempDir(),
		artifacts.WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 30, 5, 250*int(time.Millisecond), time.UTC) }),
		artifacts.WithSerial("emulator-5554"),
		artifacts.WithCommand(func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			return nil, nil
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Logcat(context.Background(), "logcat", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"adb", "-s", "emulator-5554", "logcat", "-d", "-T", "1772357404.250"}
	if !slices.Equal(gotArgs, want) {
		t.Fatalf("expected %v, got %v", want, gotArgs)
	}
}

func TestLogcat_CommandFailureKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	m, err := artifacts.New(dir, artifacts.WithCommand(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("error: no devices/emulators found"), errors.New("exit status 1")
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := m.Logcat(context.Background(), "logcat", 30*time.Second)
	if err == nil {
		t.Fatal("expected an error when adb fails")
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil || string(data) != "error: no devices/emulators found" {
		t.Fatalf("expected adb output to be kept, got %q (%v)", data, readErr)
	}
}
