// Package runner launches external tools and captures their output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Result holds the captured output of a finished process
type Result struct {
	ExitSuccess bool
	Stdout      []byte
	Stderr      []byte
}

// StdoutText returns stdout decoded as lossy UTF-8
func (r Result) StdoutText() string {
	return lossy(r.Stdout)
}

// StderrText returns stderr decoded as lossy UTF-8
func (r Result) StderrText() string {
	return lossy(r.Stderr)
}

// CombinedText returns stderr followed by stdout, separated by a space
func (r Result) CombinedText() string {
	return r.StderrText() + " " + r.StdoutText()
}

func lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// LaunchError reports that an executable could not be started
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Runner runs a command to completion.
// A non-zero exit is reported through Result.ExitSuccess, never as an error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

// ExecRunner runs commands with os/exec and a proxy-free environment
type ExecRunner struct {
	Dir string
}

// Run starts the process and waits for it. No timeout is applied.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	cmd.Env = cleanEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		res.ExitSuccess = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, nil
	}
	return res, &LaunchError{Name: name, Err: err}
}

func cleanEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			out = append(out, e)
		}
	}
	return out
}

var _ Runner = ExecRunner{}
