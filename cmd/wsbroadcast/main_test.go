package main

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/livecaption/wsbroadcast/internal/errors"
	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/loop"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

func TestClassify(t *testing.T) {
	bind := &pool.Error{Op: pool.OpEnsure, Port: 9001, Err: &broadcast.BindError{
		Port: 9001,
		Addr: ":9001",
		Err:  stderrors.New("address already in use"),
	}}
	coded := errors.New("E104")

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"bind", bind, "E201"},
		{"serve", &pool.Error{Op: pool.OpEnsure, Port: 1, Err: &broadcast.ServeError{Port: 1, Err: stderrors.New("accept")}}, "E202"},
		{"panic", fmt.Errorf("exit: %w", &loop.PanicError{Value: "boom"}), "E202"},
		{"closed", &pool.Error{Op: pool.OpEnsure, Port: 1, Err: pool.ErrClosed}, "E203"},
		{"invalid port", &pool.Error{Op: pool.OpEnsure, Port: -1, Err: pool.ErrInvalidPort}, "E204"},
		{"already coded", coded, "E104"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.code) {
				t.Fatalf("classify(%v) = %v, want code %s", tt.err, got, tt.code)
			}
			if !stderrors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the original error", tt.err)
			}
		})
	}

	if got := classify(nil); got != nil {
		t.Errorf("classify(nil) = %v, want nil", got)
	}
	plain := stderrors.New("plain")
	if got := classify(plain); got != plain {
		t.Errorf("classify(plain) = %v, want it unchanged", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := loadEnvFile(filepath.Join(dir, "missing.env"), false); err != nil {
		t.Errorf("loadEnvFile(missing, implicit) error: %v", err)
	}
	if err := loadEnvFile(filepath.Join(dir, "missing.env"), true); !errors.Is(err, "E301") {
		t.Errorf("loadEnvFile(missing, explicit) error = %v, want E301", err)
	}
	if err := loadEnvFile("", true); err != nil {
		t.Errorf("loadEnvFile(\"\") error: %v", err)
	}

	const key = "WSBROADCAST_TEST_ENV_FILE"
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile() error: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want %q", key, got, "from-file")
	}
}

func TestLoadEnvFileKeepsExistingVariables(t *testing.T) {
	const key = "WSBROADCAST_TEST_ENV_KEEP"
	t.Setenv(key, "from-process")

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile() error: %v", err)
	}
	if got := os.Getenv(key); got != "from-process" {
		t.Errorf("%s = %q, want %q", key, got, "from-process")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version --short = %q, want %q", got, version)
	}

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	for _, want := range []string{"Version:", "Commit:", "Go version:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}
