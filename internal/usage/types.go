package usage

import (
	"fmt"
	"math"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/goccy/go-json"
)

// DeviceID identifies one machine reporting for an account.
type DeviceID uint16

// DeviceType classifies the kind of machine a device is.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceLaptop  DeviceType = "laptop"
	DevicePhone   DeviceType = "phone"
	DeviceTablet  DeviceType = "tablet"
	DeviceOther   DeviceType = "other"
)

// ParseDeviceType parses a device type, defaulting to DeviceOther for "".
func ParseDeviceType(s string) (DeviceType, error) {
	normalized := DeviceType(strings.ToLower(s))
	switch normalized {
	case "":
		return DeviceOther, nil
	case DeviceDesktop, DeviceLaptop, DevicePhone, DeviceTablet, DeviceOther:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid device type: %s (must be desktop, laptop, phone, tablet or other)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize and validate the type.
func (t *DeviceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDeviceType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DeviceInfo describes a device. It is replaced wholesale on every update.
type DeviceInfo struct {
	Type   DeviceType `json:"type"`
	OS     string     `json:"os"`
	Distro string     `json:"distro,omitempty"`
}

func (d DeviceInfo) String() string {
	if d.Distro == "" {
		return d.OS
	}
	return d.OS + ": " + d.Distro
}

// DeviceRecord is the payload a client sends to register its device.
type DeviceRecord struct {
	ID   DeviceID   `json:"id"`
	Data DeviceInfo `json:"data"`
}

// ActiveTotals maps focused activity to accumulated seconds. It serializes
// as a JSON object keyed by the textual form of each ActiveProgramKey.
type ActiveTotals map[activity.ActiveProgramKey]uint32

// MarshalJSON implements json.Marshaler.
func (t ActiveTotals) MarshalJSON() ([]byte, error) {
	raw := make(map[string]uint32, len(t))
	for key, secs := range t {
		raw[key.String()] = addSeconds(raw[key.String()], secs)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. Keys with more than one
// separator are rejected.
func (t *ActiveTotals) UnmarshalJSON(data []byte) error {
	var raw map[string]uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ActiveTotals, len(raw))
	for s, secs := range raw {
		key, err := activity.ParseActiveProgramKey(s)
		if err != nil {
			return err
		}
		out[key] = addSeconds(out[key], secs)
	}
	*t = out
	return nil
}

// OpenTotals maps open programs to accumulated seconds.
type OpenTotals map[activity.ProgramKey]uint32

// MarshalJSON implements json.Marshaler.
func (t OpenTotals) MarshalJSON() ([]byte, error) {
	raw := make(map[string]uint32, len(t))
	for key, secs := range t {
		raw[key.Program] = secs
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *OpenTotals) UnmarshalJSON(data []byte) error {
	var raw map[string]uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(OpenTotals, len(raw))
	for program, secs := range raw {
		out[activity.ProgramKey{Program: program}] = secs
	}
	*t = out
	return nil
}

// Batch is an incremental usage report from one device, covering the time
// since its previous report.
type Batch struct {
	Device DeviceID     `json:"device"`
	Active ActiveTotals `json:"active"`
	Open   OpenTotals   `json:"open"`
}

// NewBatch returns an empty batch for a device.
func NewBatch(device DeviceID) *Batch {
	return &Batch{
		Device: device,
		Active: make(ActiveTotals),
		Open:   make(OpenTotals),
	}
}

// AddTally adds one or more ticks worth of observations, crediting
// seconds for every unit a key was observed.
func (b *Batch) AddTally(t *activity.Tally, seconds uint32) {
	if b.Active == nil {
		b.Active = make(ActiveTotals)
	}
	if b.Open == nil {
		b.Open = make(OpenTotals)
	}
	for key, units := range t.Active {
		b.Active[key] = addSeconds(b.Active[key], mulSeconds(units, seconds))
	}
	for key, units := range t.Open {
		b.Open[key] = addSeconds(b.Open[key], mulSeconds(units, seconds))
	}
}

// Empty reports whether the batch carries no usage.
func (b *Batch) Empty() bool {
	return len(b.Active) == 0 && len(b.Open) == 0
}

// MonitorTotals holds one device's accumulated usage for the day.
type MonitorTotals struct {
	Active ActiveTotals `json:"active"`
	Open   OpenTotals   `json:"open"`
}

func newMonitorTotals() *MonitorTotals {
	return &MonitorTotals{
		Active: make(ActiveTotals),
		Open:   make(OpenTotals),
	}
}

// UserState is one account's usage for a single calendar day. Devices may
// lack an entry in Devices when they only ever reported usage.
type UserState struct {
	Devices map[DeviceID]DeviceInfo     `json:"devices"`
	Monitor map[DeviceID]*MonitorTotals `json:"monitor"`
}

func newUserState() *UserState {
	return &UserState{
		Devices: make(map[DeviceID]DeviceInfo),
		Monitor: make(map[DeviceID]*MonitorTotals),
	}
}

// Clone returns a deep copy.
func (u *UserState) Clone() *UserState {
	out := newUserState()
	if u == nil {
		return out
	}
	for id, info := range u.Devices {
		out.Devices[id] = info
	}
	for id, totals := range u.Monitor {
		copied := newMonitorTotals()
		if totals == nil {
			out.Monitor[id] = copied
			continue
		}
		for key, secs := range totals.Active {
			copied.Active[key] = secs
		}
		for key, secs := range totals.Open {
			copied.Open[key] = secs
		}
		out.Monitor[id] = copied
	}
	return out
}

// DeviceIDs returns every device known to the account, registered or not.
func (u *UserState) DeviceIDs() []DeviceID {
	seen := make(map[DeviceID]struct{}, len(u.Devices)+len(u.Monitor))
	for id := range u.Devices {
		seen[id] = struct{}{}
	}
	for id := range u.Monitor {
		seen[id] = struct{}{}
	}
	ids := make([]DeviceID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot is the full state for one date, keyed by account name.
type Snapshot map[string]*UserState

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for account, state := range s {
		out[account] = state.Clone()
	}
	return out
}

// mulSeconds multiplies a tick count by a tick length, saturating.
func mulSeconds(units, seconds uint32) uint32 {
	if product := uint64(units) * uint64(seconds); product < math.MaxUint32 {
		return uint32(product)
	}
	return math.MaxUint32
}

// addSeconds adds two counters, saturating instead of wrapping.
func addSeconds(a, b uint32) uint32 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint32
}
