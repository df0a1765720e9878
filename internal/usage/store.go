package usage

import (
	"sort"
	"sync"

	"github.com/Allen-B1/monitor-v3/internal/metrics"
	"github.com/rs/zerolog"
)

// Store holds the live usage state for the current date. It is the single
// owner of every UserState; callers only ever receive copies.
//
// All operations take one mutex for the duration of a single in-memory
// read or write and never hold it across I/O.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*UserState
	logger   zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		accounts: make(map[string]*UserState),
		logger:   logger.With().Str("component", "usage-store").Logger(),
	}
}

// account returns the state for name, creating it on demand. Must be called with lock held.
func (s *Store) account(name string) *UserState {
	state, ok := s.accounts[name]
	if !ok || state == nil {
		state = newUserState()
		s.accounts[name] = state
	}
	if state.Devices == nil {
		state.Devices = make(map[DeviceID]DeviceInfo)
	}
	if state.Monitor == nil {
		state.Monitor = make(map[DeviceID]*MonitorTotals)
	}
	return state
}

// MergeUsage adds a batch into the device's totals for the account. Entries
// are only ever added to, so merges commute: any order or grouping of the
// same batches yields the same totals.
func (s *Store) MergeUsage(account string, batch Batch) {
	var activeSecs, openSecs float64

	s.mu.Lock()
	state := s.account(account)
	totals := state.Monitor[batch.Device]
	if totals == nil {
		totals = newMonitorTotals()
		state.Monitor[batch.Device] = totals
	}
	if totals.Active == nil {
		totals.Active = make(ActiveTotals)
	}
	if totals.Open == nil {
		totals.Open = make(OpenTotals)
	}
	for key, secs := range batch.Active {
		totals.Active[key] = addSeconds(totals.Active[key], secs)
		activeSecs += float64(secs)
	}
	for key, secs := range batch.Open {
		totals.Open[key] = addSeconds(totals.Open[key], secs)
		openSecs += float64(secs)
	}
	accounts := len(s.accounts)
	s.mu.Unlock()

	metrics.BatchesMerged.Inc()
	metrics.SecondsMerged.WithLabelValues("active").Add(activeSecs)
	metrics.SecondsMerged.WithLabelValues("open").Add(openSecs)
	metrics.Accounts.Set(float64(accounts))

	s.logger.Debug().
		Str("account", account).
		Uint16("device", uint16(batch.Device)).
		Int("active_keys", len(batch.Active)).
		Int("open_keys", len(batch.Open)).
		Msg("Merged usage batch")
}

// SetDeviceInfo replaces a device's info. Totals are untouched.
func (s *Store) SetDeviceInfo(account string, id DeviceID, info DeviceInfo) {
	s.mu.Lock()
	s.account(account).Devices[id] = info
	accounts := len(s.accounts)
	s.mu.Unlock()

	metrics.DeviceUpdates.Inc()
	metrics.Accounts.Set(float64(accounts))

	s.logger.Debug().
		Str("account", account).
		Uint16("device", uint16(id)).
		Str("info", info.String()).
		Msg("Updated device info")
}

// ReadAccount returns a point-in-time copy of an account's state.
func (s *Store) ReadAccount(account string) (*UserState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.accounts[account]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Accounts returns the sorted account names with state for the current date.
func (s *Store) Accounts() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	return names
}

// Export returns a deep copy of the whole state.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot(s.accounts).Clone()
}

// Replace installs snap as the live state. The store takes ownership of snap.
func (s *Store) Replace(snap Snapshot) {
	if snap == nil {
		snap = make(Snapshot)
	}

	s.mu.Lock()
	s.accounts = snap
	accounts := len(snap)
	s.mu.Unlock()

	metrics.Accounts.Set(float64(accounts))
}

// Swap atomically returns the live state and replaces it with an empty one.
// No merge can land between the two steps.
func (s *Store) Swap() Snapshot {
	s.mu.Lock()
	old := Snapshot(s.accounts)
	s.accounts = make(map[string]*UserState)
	s.mu.Unlock()

	metrics.Accounts.Set(0)
	return old
}
