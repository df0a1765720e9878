package usage

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrCorruptSnapshot is returned when stored snapshot bytes cannot be decoded.
var ErrCorruptSnapshot = errors.New("usage: corrupt snapshot")

// EncodeSnapshot serializes a snapshot. Account names are the top-level keys.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap == nil {
		snap = make(Snapshot)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses bytes produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap == nil {
		snap = make(Snapshot)
	}
	for account, state := range snap {
		if state == nil {
			snap[account] = newUserState()
			continue
		}
		if state.Devices == nil {
			state.Devices = make(map[DeviceID]DeviceInfo)
		}
		if state.Monitor == nil {
			state.Monitor = make(map[DeviceID]*MonitorTotals)
		}
		for id, totals := range state.Monitor {
			if totals == nil {
				state.Monitor[id] = newMonitorTotals()
			}
		}
	}
	return snap, nil
}
