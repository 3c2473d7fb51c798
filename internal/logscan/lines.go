// Package logscan streams append-only JSON-lines session logs into windowed
// token totals and per-day, per-model consumption slices.
package logscan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
)

// DefaultMaxLineBytes caps a single log line. Longer lines are dropped.
const DefaultMaxLineBytes = 8 * 1024 * 1024

const readChunkBytes = 64 * 1024

// StreamLines calls fn for every complete line in r. Lines longer than
// maxLine are skipped without being buffered in full, and an unterminated
// final line is ignored since its writer may still be appending to it. The
// slice passed to fn is only valid for the duration of the call.
//
// ctx is checked before each read; its error is returned as is.
func StreamLines(ctx context.Context, r io.Reader, maxLine int, fn func(line []byte)) error {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	br := bufio.NewReaderSize(r, readChunkBytes)

	var (
		pending   []byte
		oversized bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			body := chunk[:len(chunk)-1]
			if !oversized && len(pending)+len(body) <= maxLine {
				line := body
				if len(pending) > 0 {
					pending = append(pending, body...)
					line = pending
				}
				if line = bytes.TrimRight(line, "\r"); len(line) > 0 {
					fn(line)
				}
			}
			pending = pending[:0]
			oversized = false
		case errors.Is(err, bufio.ErrBufferFull):
			if oversized {
				continue
			}
			if len(pending)+len(chunk) > maxLine {
				oversized = true
				pending = pending[:0]
				continue
			}
			pending = append(pending, chunk...)
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// StreamFile opens path for shared reading and streams its lines. A file
// that no longer exists is treated as empty.
func StreamFile(ctx context.Context, path string, maxLine int, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return StreamLines(ctx, f, maxLine, fn)
}
