package systemd

import "testing"

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated {
		t.Error("Expected not activated")
	}
	if listeners.API != nil || listeners.Metrics != nil {
		t.Error("Expected no listeners")
	}
}

func TestNotify_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if IsSystemdService() {
		t.Error("Expected not to be a systemd service")
	}
	if err := NotifyReady(); err != nil {
		t.Errorf("Expected NotifyReady to be a no-op, got %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Errorf("Expected NotifyStopping to be a no-op, got %v", err)
	}
}

func TestWatchdogInterval_Disabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	if got := WatchdogInterval(); got != 0 {
		t.Errorf("Expected watchdog disabled, got %v", got)
	}
}
