// Package x11 reads window state from an X11 session through xprop and
// session lock state from logind.
package x11

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/activity"
)

const normalWindowType = "_NET_WM_WINDOW_TYPE_NORMAL"

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Backend implements activity.WindowBackend over xprop.
type Backend struct {
	run Runner
}

// NewBackend creates a backend. A nil runner uses ExecRunner.
func NewBackend(run Runner) *Backend {
	if run == nil {
		run = ExecRunner
	}
	return &Backend{run: run}
}

// FocusedWindow returns the window in _NET_ACTIVE_WINDOW. Zero means none.
func (b *Backend) FocusedWindow(ctx context.Context) (activity.WindowHandle, error) {
	out, err := b.run(ctx, "xprop", "-root", "32x", "|$0", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}
	return parseActiveWindow(out)
}

// ListWindows returns the windows in _NET_CLIENT_LIST.
func (b *Backend) ListWindows(ctx context.Context) ([]activity.WindowHandle, error) {
	out, err := b.run(ctx, "xprop", "-root", "|$0+", "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	return parseClientList(out)
}

// Describe returns a window's class and title, or nil for windows that are
// not normal application windows.
func (b *Backend) Describe(ctx context.Context, h activity.WindowHandle) (*activity.WindowInfo, error) {
	out, err := b.run(ctx, "xprop",
		"-id", fmt.Sprintf("0x%x", uint64(h)),
		"-f", "_NET_WM_NAME", "8u", "|$0|",
		"-f", "WM_CLASS", "8s", "|$1|",
		"-f", "_NET_WM_WINDOW_TYPE", "32a", "|$0",
		"_NET_WM_NAME", "WM_CLASS", "_NET_WM_WINDOW_TYPE",
	)
	if err != nil {
		return nil, err
	}
	return parseWindowInfo(out)
}

func parseHandle(s string) (activity.WindowHandle, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q: %w", s, err)
	}
	return activity.WindowHandle(v), nil
}

func parseActiveWindow(out []byte) (activity.WindowHandle, error) {
	_, value, ok := strings.Cut(string(out), "|")
	if !ok {
		return 0, fmt.Errorf("error parsing _NET_ACTIVE_WINDOW: %q", out)
	}
	return parseHandle(value)
}

func parseClientList(out []byte) ([]activity.WindowHandle, error) {
	_, value, ok := strings.Cut(string(out), "|")
	if !ok {
		if strings.Contains(string(out), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("error parsing _NET_CLIENT_LIST: %q", out)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	fields := strings.Split(value, ",")
	handles := make([]activity.WindowHandle, 0, len(fields))
	for _, field := range fields {
		h, err := parseHandle(field)
		if err != nil {
			return nil, fmt.Errorf("error parsing _NET_CLIENT_LIST: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// parseWindowInfo reads one "NAME(TYPE)|value" line per property. Missing
// properties print "NAME:  not found." and have no separator.
func parseWindowInfo(out []byte) (*activity.WindowInfo, error) {
	props := make(map[string]string, 3)
	for _, line := range strings.Split(string(out), "\n") {
		head, value, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(head, "(")
		props[name] = value
	}

	if props["_NET_WM_WINDOW_TYPE"] != normalWindowType {
		return nil, nil
	}

	class, ok := props["WM_CLASS"]
	if !ok {
		return nil, nil
	}
	process, err := unquote(class)
	if err != nil {
		return nil, fmt.Errorf("error parsing WM_CLASS: %w", err)
	}

	var title string
	if raw, ok := props["_NET_WM_NAME"]; ok {
		if title, err = unquote(raw); err != nil {
			return nil, fmt.Errorf("error parsing _NET_WM_NAME: %w", err)
		}
	}

	return &activity.WindowInfo{Process: process, Title: title}, nil
}

// unquote decodes an xprop string value written as "text"|.
func unquote(value string) (string, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "|")
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return "", fmt.Errorf("unquoted value %q", value)
	}
	if s, err := strconv.Unquote(value); err == nil {
		return s, nil
	}
	return value[1 : len(value)-1], nil
}
