// Package sysfs provides small helpers for reading and writing kernel
// control files (/sys, /proc). Reads and writes against a wedged driver
// can block, so every operation is bounded by the caller's context.
package sysfs

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// Exists reports whether a control file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadString reads a control file and returns its trimmed content.
func ReadString(ctx context.Context, path string) (string, error) {
	type result struct {
		data []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(path)
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(string(res.data)), nil
	}
}

// ReadInt reads a control file holding a single integer.
func ReadInt(ctx context.Context, path string) (int64, error) {
	content, err := ReadString(ctx, path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(content, 10, 64)
}

// WriteString writes content to a control file. Kernel nodes reject the
// write as a whole or accept it as a whole; there is no partial state to
// roll back.
func WriteString(ctx context.Context, path, content string) error {
	done := make(chan error, 1)
	go func() {
		done <- os.WriteFile(path, []byte(content), 0o644)
	}()

	select {
	case <-ctx.Done():
		// The write is left to complete or fail on its own; canceling
		// mid-write would not undo anything the kernel already accepted.
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Fields splits a control file's content into whitespace-separated fields.
func Fields(ctx context.Context, path string) ([]string, error) {
	content, err := ReadString(ctx, path)
	if err != nil {
		return nil, err
	}
	return strings.Fields(content), nil
}
