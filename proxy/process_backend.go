package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ProcessBackend runs a local analyzer script. Uploads are written to a
// fresh temporary directory whose path is passed to the script; the script
// prints the analysis JSON on stdout. The directory is removed when Analyze
// returns, whatever the outcome.
type ProcessBackend struct {
	Script string
	// Args are placed before the directory argument
	Args    []string
	Timeout time.Duration
	// TempDir is the parent of the per-request directories, os.TempDir when empty
	TempDir string
}

func (b *ProcessBackend) Analyze(ctx context.Context, req *Request) (*Response, error) {
	dir, err := os.MkdirTemp(b.TempDir, "analysis_")
	if err != nil {
		return nil, &BackendError{Kind: ErrFailed, Detail: "creating work directory: " + err.Error(), Err: err}
	}
	defer os.RemoveAll(dir)

	used := make(map[string]bool, len(req.Files))
	for i, f := range req.Files {
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = fmt.Sprintf("upload_%d", i+1)
		}
		name = uniqueName(name, used)
		if err := os.WriteFile(filepath.Join(dir, name), f.Content, 0600); err != nil {
			return nil, &BackendError{Kind: ErrFailed, Detail: "writing upload: " + err.Error(), Err: err}
		}
	}

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, b.Args...), dir)
	if req.URL != "" {
		args = append(args, "--url", req.URL)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.Script, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Orphaned children must not hold the output pipes open forever
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return nil, &BackendError{Kind: ErrUnreachable, Detail: err.Error(), Err: err}
		case ctx.Err() != nil:
			return nil, &BackendError{Kind: ErrFailed, Detail: "analysis timed out", Err: ctx.Err()}
		}
		detail := truncate(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, &BackendError{Kind: ErrFailed, Detail: detail, Err: err}
	}

	return &Response{StatusCode: 200, Body: stdout.Bytes()}, nil
}

// uniqueName suffixes name before its extension until it is not in used,
// then records it.
func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}
