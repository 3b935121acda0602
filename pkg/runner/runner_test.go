package runner

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestResultTextIsLossy(t *testing.T) {
	res := Result{Stdout: []byte("ok\xff\xfeend"), Stderr: []byte("warn")}

	out := res.StdoutText()
	if !strings.Contains(out, "�") {
		t.Errorf("expected replacement character, got %q", out)
	}
	if !strings.HasPrefix(out, "ok") || !strings.HasSuffix(out, "end") {
		t.Errorf("valid bytes should survive decoding, got %q", out)
	}
	if got := res.CombinedText(); got != "warn "+out {
		t.Errorf("CombinedText = %q", got)
	}
}

func TestExecRunnerLaunchError(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "/nonexistent/definitely-not-a-tool")
	if err == nil {
		t.Fatal("expected launch error")
	}
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %T", err)
	}
	if le.Name != "/nonexistent/definitely-not-a-tool" {
		t.Errorf("unexpected name %q", le.Name)
	}
}

func TestExecRunnerExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	res, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.ExitSuccess {
		t.Error("expected ExitSuccess=false")
	}
	if strings.TrimSpace(res.StdoutText()) != "out" {
		t.Errorf("stdout = %q", res.StdoutText())
	}
	if strings.TrimSpace(res.StderrText()) != "err" {
		t.Errorf("stderr = %q", res.StderrText())
	}

	res, err = ExecRunner{}.Run(context.Background(), "sh", "-c", "exit 0")
	if err != nil || !res.ExitSuccess {
		t.Errorf("expected success, got %+v, %v", res, err)
	}
}

func TestCleanEnvDropsProxyVars(t *testing.T) {
	env := []string{"PATH=/bin", "HTTP_PROXY=http://p:1", "https_proxy=x", "HOME=/root"}
	got := cleanEnv(env)
	if len(got) != 2 || got[0] != "PATH=/bin" || got[1] != "HOME=/root" {
		t.Errorf("cleanEnv = %v", got)
	}
}

type countingRunner struct{ calls int }

func (c *countingRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	c.calls++
	return Result{ExitSuccess: true}, nil
}

func TestNewThrottledDisabled(t *testing.T) {
	inner := &countingRunner{}
	if r := NewThrottled(inner, 0, 1); r != Runner(inner) {
		t.Error("zero rate should return the wrapped runner")
	}
}

func TestThrottledCancelledContext(t *testing.T) {
	inner := &countingRunner{}
	r := NewThrottled(inner, 0.001, 1)

	// First call consumes the burst token
	if _, err := r.Run(context.Background(), "adb"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Run(ctx, "adb"); err == nil {
		t.Error("expected limiter wait to fail")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 delegated call, got %d", inner.calls)
	}
}
