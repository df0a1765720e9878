package x11

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	logindService   = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindManager   = "org.freedesktop.login1.Manager"
	logindSession   = "org.freedesktop.login1.Session"
	propertiesGet   = "org.freedesktop.DBus.Properties.Get"
	autoSessionPath = "/org/freedesktop/login1/session/auto"
)

// LockGate reports whether the caller's logind session is locked. It
// implements activity.LockGate.
type LockGate struct {
	conn    *dbus.Conn
	session dbus.ObjectPath
}

// NewLockGate connects to the system bus and resolves the session to watch:
// XDG_SESSION_ID when set, otherwise logind's caller session.
func NewLockGate() (*LockGate, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	session := dbus.ObjectPath(autoSessionPath)
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		manager := conn.Object(logindService, logindPath)
		if err := manager.Call(logindManager+".GetSession", 0, id).Store(&session); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to resolve session %s: %w", id, err)
		}
	}

	return &LockGate{conn: conn, session: session}, nil
}

// SessionLocked reads the session's LockedHint.
func (g *LockGate) SessionLocked(ctx context.Context) (bool, error) {
	var locked dbus.Variant
	obj := g.conn.Object(logindService, g.session)
	if err := obj.CallWithContext(ctx, propertiesGet, 0, logindSession, "LockedHint").Store(&locked); err != nil {
		return false, fmt.Errorf("failed to get LockedHint from path %s: %w", g.session, err)
	}

	value, ok := locked.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected LockedHint type %s", locked.Signature())
	}
	return value, nil
}

// Close closes the bus connection.
func (g *LockGate) Close() error {
	return g.conn.Close()
}

// Session is a window backend gated on the session lock state.
type Session struct {
	*Backend
	*LockGate
}
