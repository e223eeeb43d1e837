// Package rbridge runs R code through the Rscript executable.
package rbridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"cellfate/domain/core"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

var logger = internal.DefaultLogger.With("rbridge")

// EnvRscriptPath overrides the Rscript executable.
const EnvRscriptPath = "RSCRIPT_PATH"

// Config configures the Rscript runtime
type Config struct {
	Path    string        // Rscript executable, resolved on PATH when empty
	Timeout time.Duration // per call, 0 means the caller's context only
}

// ConfigFromEnv reads RSCRIPT_PATH.
func ConfigFromEnv() Config {
	return Config{Path: strings.TrimSpace(os.Getenv(EnvRscriptPath)), Timeout: 2 * time.Minute}
}

// Rscript implements ports.RRuntime by spawning one Rscript process per call.
type Rscript struct {
	path    string
	timeout time.Duration
}

var _ ports.RRuntime = (*Rscript)(nil)

// New resolves the executable and fails with ErrExternalDependency when it cannot be found.
func New(cfg Config) (*Rscript, error) {
	name := cfg.Path
	if name == "" {
		name = "Rscript"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, apperrors.ExternalDependency("Rscript", fmt.Errorf("%w: %v", core.ErrExternalDependency, err))
	}
	return &Rscript{path: path, timeout: cfg.Timeout}, nil
}

// Path returns the resolved executable.
func (r *Rscript) Path() string { return r.path }

var versionPattern = regexp.MustCompile(`version (\d+\.\d+(?:\.\d+)?)`)

// Version runs Rscript --version. Older releases print it on stderr.
func (r *Rscript) Version(ctx context.Context) (string, error) {
	out, err := r.run(ctx, nil, "--version")
	if err != nil {
		return "", err
	}
	if m := versionPattern.FindSubmatch(out); m != nil {
		return string(m[1]), nil
	}
	return strings.TrimSpace(string(out)), nil
}

var packagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.]*$`)

// HasPackage reports whether library(pkg) would succeed.
func (r *Rscript) HasPackage(ctx context.Context, pkg string) (bool, error) {
	if !packagePattern.MatchString(pkg) {
		return false, apperrors.Validation(core.ErrInvalidSelector, "invalid R package name %q", pkg)
	}
	out, err := r.run(ctx, nil, "-e", fmt.Sprintf("cat(requireNamespace(%q, quietly = TRUE))", pkg))
	if err != nil {
		return false, err
	}
	ok := strings.TrimSpace(string(out)) == "TRUE"
	logger.Debug("R package %s available: %t", pkg, ok)
	return ok, nil
}

// Eval runs script with stdin attached and returns stdout.
func (r *Rscript) Eval(ctx context.Context, script string, stdin []byte) ([]byte, error) {
	return r.run(ctx, stdin, "-e", script)
}

func (r *Rscript) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.path, append([]string{"--vanilla"}, args...)...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if args[0] == "--version" {
		cmd.Stderr = &stdout
	}

	start := time.Now()
	err := cmd.Run()
	logger.Trace("Rscript %s finished in %v", args[0], time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrapf(ctx.Err(), "Rscript interrupted")
		}
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		return nil, apperrors.New(apperrors.CodeExternalDependency,
			fmt.Sprintf("Rscript failed: %v: %s", err, lastLine(msg)))
	}
	return stdout.Bytes(), nil
}

// lastLine returns the final non-empty line of R's error output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
