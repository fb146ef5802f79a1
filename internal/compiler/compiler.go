// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package compiler turns Typst document source into PDF bytes by running
// the external typst binary against uniquely named temporary files.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultTimeout bounds a single compiler process.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConcurrent caps how many compiler processes run at once.
	DefaultMaxConcurrent = 4

	// maxDiagnosticLen truncates compiler output carried in errors.
	maxDiagnosticLen = 4000
)

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF")

// CompileError reports a failed compilation job. Message carries the
// compiler's diagnostic output or the underlying I/O error.
type CompileError struct {
	JobID   string
	Message string
	Timeout bool
	Err     error
}

func (e *CompileError) Error() string {
	return "compile failed: " + e.Message
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Options configures a Compiler. Zero values fall back to defaults.
type Options struct {
	Binary        string        // path or name of the typst executable
	WorkDir       string        // directory for job input and output files
	Timeout       time.Duration // per-job process timeout
	MaxConcurrent int64         // concurrent compiler processes
	Runner        Runner        // process runner, ExecRunner when nil
}

// Compiler runs compilation jobs. It is safe for concurrent use; jobs share
// nothing but the concurrency semaphore.
type Compiler struct {
	binary  string
	workDir string
	timeout time.Duration
	runner  Runner
	sem     *semaphore.Weighted
	newID   func() string
}

// New creates a Compiler and makes sure its work directory exists.
func New(opts Options) (*Compiler, error) {
	if opts.Binary == "" {
		opts.Binary = "typst"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "contractbuilder")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}

	if err := os.MkdirAll(opts.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("compiler work dir: %w", err)
	}

	return &Compiler{
		binary:  opts.Binary,
		workDir: opts.WorkDir,
		timeout: opts.Timeout,
		runner:  opts.Runner,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		newID:   uuid.NewString,
	}, nil
}

// Compile writes source to a job-scoped input file, runs
// `typst compile <input> <output>` and returns the produced PDF. Both job
// files are removed before Compile returns, whatever the outcome. Failures
// are reported as *CompileError and never retried.
func (c *Compiler) Compile(ctx context.Context, source string) ([]byte, error) {
	jobID := c.newID()
	input := filepath.Join(c.workDir, jobID+".typ")
	output := filepath.Join(c.workDir, jobID+".pdf")
	defer c.cleanup(jobID, input, output)

	if err := os.WriteFile(input, []byte(source), 0o600); err != nil {
		return nil, &CompileError{JobID: jobID, Message: fmt.Sprintf("write input: %v", err), Err: err}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &CompileError{JobID: jobID, Message: "cancelled while waiting for a compiler slot", Err: err}
	}
	defer c.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runner.Run(runCtx, c.binary, "compile", input, output)
	if err != nil {
		cerr := &CompileError{JobID: jobID, Err: err}
		switch {
		case ctx.Err() != nil:
			cerr.Message = "compilation cancelled"
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			cerr.Timeout = true
			cerr.Message = fmt.Sprintf("compiler timed out after %s", c.timeout)
		default:
			cerr.Message = diagnostic(out, err)
		}
		slog.Warn("typst compile failed",
			"job", jobID,
			"timeout", cerr.Timeout,
			"duration", time.Since(start).String(),
			"error", cerr.Message,
		)
		return nil, cerr
	}

	pdf, err := os.ReadFile(output)
	if err != nil {
		return nil, &CompileError{JobID: jobID, Message: fmt.Sprintf("read output: %v", err), Err: err}
	}
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, &CompileError{JobID: jobID, Message: "compiler produced an invalid PDF"}
	}

	slog.Debug("typst compile finished",
		"job", jobID,
		"bytes", len(pdf),
		"duration", time.Since(start).String(),
	)
	return pdf, nil
}

// cleanup removes the job files. Errors are logged and dropped; a missing
// output file after a failed run is expected.
func (c *Compiler) cleanup(jobID string, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("compile cleanup failed", "job", jobID, "path", p, "error", err)
		}
	}
}

// diagnostic picks the most useful message from a failed process run.
func diagnostic(out []byte, err error) string {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err.Error()
	}
	if len(msg) > maxDiagnosticLen {
		cut := maxDiagnosticLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "…"
	}
	return msg
}
