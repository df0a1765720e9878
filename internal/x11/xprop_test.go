package x11

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/google/go-cmp/cmp"
)

func TestParseActiveWindow(t *testing.T) {
	h, err := parseActiveWindow([]byte("_NET_ACTIVE_WINDOW|0x3a00007\n"))
	if err != nil {
		t.Fatalf("parseActiveWindow failed: %v", err)
	}
	if h != 0x3a00007 {
		t.Errorf("Expected 0x3a00007, got %#x", uint64(h))
	}

	if _, err := parseActiveWindow([]byte("_NET_ACTIVE_WINDOW:  not found.\n")); err == nil {
		t.Error("Expected error for missing property")
	}
}

func TestParseClientList(t *testing.T) {
	handles, err := parseClientList([]byte("_NET_CLIENT_LIST(WINDOW)|0x1a00003, 0x3a00007, 0x4c00001\n"))
	if err != nil {
		t.Fatalf("parseClientList failed: %v", err)
	}
	want := []activity.WindowHandle{0x1a00003, 0x3a00007, 0x4c00001}
	if diff := cmp.Diff(want, handles); diff != "" {
		t.Errorf("Handles mismatch (-want +got):\n%s", diff)
	}

	handles, err = parseClientList([]byte("_NET_CLIENT_LIST:  not found.\n"))
	if err != nil || len(handles) != 0 {
		t.Errorf("Expected empty list, got %v (err %v)", handles, err)
	}

	if _, err := parseClientList([]byte("_NET_CLIENT_LIST(WINDOW)|0x1, zz\n")); err == nil {
		t.Error("Expected error for bad window id")
	}
}

func TestParseWindowInfo(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    *activity.WindowInfo
		wantErr bool
	}{
		{
			name: "normal window",
			output: "_NET_WM_NAME(UTF8_STRING)|\"generals.io | Play — Mozilla Firefox\"|\n" +
				"WM_CLASS(STRING)|\"firefox\"|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_NORMAL\n",
			want: &activity.WindowInfo{Process: "firefox", Title: "generals.io | Play — Mozilla Firefox"},
		},
		{
			name: "escaped quote",
			output: "_NET_WM_NAME(UTF8_STRING)|\"say \\\"hi\\\"\"|\n" +
				"WM_CLASS(STRING)|\"Code\"|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_NORMAL\n",
			want: &activity.WindowInfo{Process: "Code", Title: `say "hi"`},
		},
		{
			name: "untitled",
			output: "_NET_WM_NAME:  not found.\n" +
				"WM_CLASS(STRING)|\"xterm\"|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_NORMAL\n",
			want: &activity.WindowInfo{Process: "xterm"},
		},
		{
			name: "dock excluded",
			output: "_NET_WM_NAME(UTF8_STRING)|\"panel\"|\n" +
				"WM_CLASS(STRING)|\"plank\"|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_DOCK\n",
			want: nil,
		},
		{
			name: "no window type",
			output: "_NET_WM_NAME(UTF8_STRING)|\"x\"|\n" +
				"WM_CLASS(STRING)|\"x\"|\n" +
				"_NET_WM_WINDOW_TYPE:  not found.\n",
			want: nil,
		},
		{
			name: "unquoted class",
			output: "WM_CLASS(STRING)|firefox|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_NORMAL\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWindowInfo([]byte(tt.output))
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWindowInfo failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("WindowInfo mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackend_Commands(t *testing.T) {
	var calls []string
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name+" "+strings.Join(args, " "))
		switch {
		case strings.Contains(strings.Join(args, " "), "_NET_ACTIVE_WINDOW"):
			return []byte("_NET_ACTIVE_WINDOW|0x2a\n"), nil
		case strings.Contains(strings.Join(args, " "), "_NET_CLIENT_LIST"):
			return []byte("_NET_CLIENT_LIST(WINDOW)|0x2a\n"), nil
		case len(args) > 1 && args[0] == "-id" && args[1] == "0x2a":
			return []byte("_NET_WM_NAME(UTF8_STRING)|\"main.go - monitor - Visual Studio Code\"|\n" +
				"WM_CLASS(STRING)|\"code\"|\n" +
				"_NET_WM_WINDOW_TYPE(ATOM)|_NET_WM_WINDOW_TYPE_NORMAL\n"), nil
		}
		return nil, errors.New("unexpected command")
	}

	backend := NewBackend(run)
	builder, err := activity.NewBuilder(activity.DefaultRegistry(), 16)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	tally, err := builder.Tick(context.Background(), backend)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	key := activity.ActiveProgramKey{Program: "Code", Subprogram: "monitor"}
	if tally.Active[key] != 1 {
		t.Errorf("Expected %v active, got %v", key, tally.Active)
	}
	if tally.Open[activity.ProgramKey{Program: "Code"}] != 1 {
		t.Errorf("Expected Code open, got %v", tally.Open)
	}
	if len(calls) != 3 {
		t.Errorf("Expected 3 xprop calls, got %v", calls)
	}
}

func TestBackend_DescribeError(t *testing.T) {
	backend := NewBackend(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("BadWindow")
	})
	if _, err := backend.Describe(context.Background(), 1); err == nil {
		t.Error("Expected error from runner to propagate")
	}
}
