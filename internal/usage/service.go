package usage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ErrInvalidAccount is returned for account names that cannot be stored or routed.
var ErrInvalidAccount = errors.New("usage: invalid account name")

// Service is the ingest and query contract served to clients. It wraps the
// live store for today and the snapshot sink for earlier dates.
type Service struct {
	store   *Store
	rotator *Rotator
	logger  zerolog.Logger
}

// NewService creates a service over store, reading history through rotator's sink.
func NewService(store *Store, rotator *Rotator, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		rotator: rotator,
		logger:  logger.With().Str("component", "usage-service").Logger(),
	}
}

func validateAccount(account string) error {
	if account == "" || strings.Contains(account, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return nil
}

// SubmitUsage merges a usage batch into today's state for account.
func (s *Service) SubmitUsage(ctx context.Context, account string, batch Batch) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	s.store.MergeUsage(account, batch)
	return nil
}

// SubmitDeviceInfo replaces the info recorded for a device.
func (s *Service) SubmitDeviceInfo(ctx context.Context, account string, id DeviceID, info DeviceInfo) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	s.store.SetDeviceInfo(account, id, info)
	return nil
}

// QueryAccount returns a copy of today's state for account.
func (s *Service) QueryAccount(ctx context.Context, account string) (*UserState, bool) {
	return s.store.ReadAccount(account)
}

// Today returns the date of the live state.
func (s *Service) Today() string {
	return s.rotator.Date()
}

// QueryDate returns account's state for date: the live state for today,
// otherwise the persisted snapshot.
func (s *Service) QueryDate(ctx context.Context, account, date string) (*UserState, bool, error) {
	if err := storage.ValidateDate(date); err != nil {
		return nil, false, err
	}

	if date == s.rotator.Date() {
		state, ok := s.store.ReadAccount(account)
		// A rotation between the two reads moves the day to pending.
		if date == s.rotator.Date() {
			return state, ok, nil
		}
	}

	if snap, ok := s.rotator.Pending(date); ok {
		state, ok := snap[account]
		return state, ok && state != nil, nil
	}

	data, err := s.rotator.sink.Read(ctx, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", date).Msg("Stored snapshot is unreadable")
		return nil, false, err
	}

	state, ok := snap[account]
	return state, ok, nil
}

// Dates returns every date with usage, including today, in ascending order.
func (s *Service) Dates(ctx context.Context) ([]string, error) {
	stored, err := s.rotator.sink.Dates(ctx)
	if err != nil {
		return nil, err
	}

	s.rotator.mu.RLock()
	pending := lo.Keys(s.rotator.pending)
	s.rotator.mu.RUnlock()

	dates := lo.Uniq(append(append(stored, pending...), s.rotator.Date()))
	sort.Strings(dates)
	return dates, nil
}

// Summary returns the per-program report for one device of account on date.
func (s *Service) Summary(ctx context.Context, account, date string, device DeviceID) (*DeviceSummary, bool, error) {
	state, ok, err := s.QueryDate(ctx, account, date)
	if err != nil || !ok {
		return nil, false, err
	}
	summary, ok := Summarize(state, device)
	if !ok {
		return nil, false, nil
	}
	summary.Account = account
	summary.Date = date
	return summary, true, nil
}
