package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/excuse"
	"github.com/cuemby/shiftkeeper/pkg/shifttime"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	summary, err := s.rec.Tick(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation tick failed", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Schedules

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}
	if schedules == nil {
		schedules = []*types.ShiftSchedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handlePutSchedules(w http.ResponseWriter, r *http.Request) {
	var schedules []*types.ShiftSchedule
	if !decode(w, r, &schedules) {
		return
	}

	for _, sched := range schedules {
		if err := validateSchedule(sched); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid schedule", err)
			return
		}
	}
	for _, sched := range schedules {
		if err := s.store.PutSchedule(r.Context(), sched); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to store schedule", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, PutResponse{Stored: len(schedules)})
}

func validateSchedule(sched *types.ShiftSchedule) error {
	if sched == nil || sched.ID == "" {
		return errors.New("schedule id is required")
	}
	if sched.DayOfWeek < time.Sunday || sched.DayOfWeek > time.Saturday {
		return errors.New("day_of_week must be 0 (Sunday) to 6 (Saturday)")
	}
	if _, err := shifttime.ParseClock(sched.StartTime); err != nil {
		return err
	}
	_, err := shifttime.ParseClock(sched.EndTime)
	return err
}

// Occurrences

func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	for param, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := r.URL.Query().Get(param)
		if v == "" {
			continue
		}
		t, err := s.resolver.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+param+" date", err)
			return
		}
		*dst = t
	}

	occs, err := s.store.ListOccurrences(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list occurrences", err)
		return
	}

	dtos := make([]OccurrenceDTO, 0, len(occs))
	for _, occ := range occs {
		dtos = append(dtos, OccurrenceDTO{
			ID:              occ.ID,
			ScheduleID:      occ.ScheduleID,
			Date:            s.resolver.FormatDate(occ.Timestamp),
			AssignedUserIDs: occ.AssignedUserIDs,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handlePutOccurrences(w http.ResponseWriter, r *http.Request) {
	var dtos []OccurrenceDTO
	if !decode(w, r, &dtos) {
		return
	}

	occs := make([]*types.ShiftOccurrence, 0, len(dtos))
	for _, dto := range dtos {
		if dto.ID == "" || dto.ScheduleID == "" {
			writeError(w, http.StatusBadRequest, "Occurrence id and schedule_id are required", nil)
			return
		}
		date, err := s.resolver.ParseDate(dto.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid occurrence date", err)
			return
		}
		occs = append(occs, &types.ShiftOccurrence{
			ID:              dto.ID,
			ScheduleID:      dto.ScheduleID,
			Timestamp:       date,
			AssignedUserIDs: dto.AssignedUserIDs,
		})
	}

	for _, occ := range occs {
		if err := s.store.PutOccurrence(r.Context(), occ); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to store occurrence", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, PutResponse{Stored: len(occs)})
}

// Sessions

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	session := &types.Session{
		ID:        req.ID,
		UserID:    req.UserID,
		Type:      req.Type,
		StartedAt: s.now(),
	}
	if session.Type == "" {
		session.Type = types.SessionTypeStaffing
	}
	if session.Type != types.SessionTypeStaffing && session.Type != types.SessionTypeRegular {
		writeError(w, http.StatusBadRequest, "type must be staffing or regular", nil)
		return
	}
	if req.StartedAt != nil {
		session.StartedAt = *req.StartedAt
	}

	if err := s.store.PutSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	endedAt := s.now()
	if req.EndedAt != nil {
		endedAt = *req.EndedAt
	}

	session, err := s.store.EndSession(r.Context(), chi.URLParam(r, "id"), endedAt)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found", err)
		return
	case errors.Is(err, storage.ErrSessionEnded):
		writeError(w, http.StatusConflict, "Session already ended", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to end session", err)
		return
	}

	resp := EndSessionResponse{Session: session}
	if session.Type == types.SessionTypeStaffing {
		resp.ClosedAttendances, err = s.rec.RecordDeparture(r.Context(), session.UserID, endedAt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Session ended but departure was not recorded", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Attendances

func (s *Server) handleCreateMakeup(w http.ResponseWriter, r *http.Request) {
	var req MakeupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ShiftOccurrenceID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "shift_occurrence_id and user_id are required", nil)
		return
	}

	row, err := s.ledger.CreateUpcoming(r.Context(), req.ShiftOccurrenceID, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create makeup", err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetAttendance(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Attendance not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleListUserAttendances(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListAttendancesByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendances", err)
		return
	}
	if rows == nil {
		rows = []*types.ShiftAttendance{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleExcuse(w http.ResponseWriter, r *http.Request) {
	var req ExcuseRequest
	if !decode(w, r, &req) {
		return
	}
	excused := true
	if req.Excused != nil {
		excused = *req.Excused
	}

	row, err := s.excuses.Excuse(r.Context(), chi.URLParam(r, "id"), req.ExcusedBy, req.Notes, excused)
	if err != nil {
		writeExcuseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decode(w, r, &req) {
		return
	}

	row, err := s.excuses.Review(r.Context(), chi.URLParam(r, "id"), req.ReviewedBy)
	if err != nil {
		writeExcuseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func writeExcuseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Attendance not found", err)
	case errors.Is(err, excuse.ErrShiftNotOccurred):
		writeError(w, http.StatusConflict, "Shift has not occurred yet", err)
	case errors.Is(err, excuse.ErrActorRequired):
		writeError(w, http.StatusBadRequest, "Acting user id is required", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to update attendance", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
