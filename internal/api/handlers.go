package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"date":   s.service.Today(),
	})
}

// handleAdd merges a usage batch for the named account.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var batch usage.Batch
	if err := decodeJSON(w, r, &batch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid usage batch: "+err.Error())
		return
	}

	if err := s.service.SubmitUsage(r.Context(), name, batch); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

// handleDevice records device info for the named account.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var record usage.DeviceRecord
	if err := decodeJSON(w, r, &record); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device record: "+err.Error())
		return
	}

	if err := s.service.SubmitDeviceInfo(r.Context(), name, record.ID, record.Data); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.logger.Info().
		Str("account", name).
		Uint16("device", uint16(record.ID)).
		Str("info", record.Data.String()).
		Msg("Device registered")
	writeJSON(w, http.StatusOK, nil)
}

// handleToday returns today's state for the named account, or null.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	state, ok := s.service.QueryAccount(r.Context(), name)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleDate returns the named account's state for a date, or null.
func (s *Server) handleDate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	state, ok, err := s.service.QueryDate(r.Context(), vars["name"], vars["date"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSummary returns the per-program report for one device, or null.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	device, err := strconv.ParseUint(vars["device"], 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device id")
		return
	}

	summary, ok, err := s.service.Summary(r.Context(), vars["name"], vars["date"], usage.DeviceID(device))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleDates lists the dates with stored or live usage.
func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.service.Dates(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dates": dates,
		"count": len(dates),
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usage.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Failed to process request")
	}
}
