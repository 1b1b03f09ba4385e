package http

import (
	"net/http"

	"expenditures/internal/calendar"
	"expenditures/internal/log"
)

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("q") && !q.Has("start") && !q.Has("end") {
		writeJSON(w, http.StatusOK, toProjectionDTO(s.session.Projection()))
		return
	}

	state, err := filterFromQuery(s.session.Filter(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectionDTO(s.session.ProjectionFor(state)))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.mutator == nil {
		writeError(w, r, errReadOnly)
		return
	}
	var p recordPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := p.toNewRecord()
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.mutator.Create(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.mutator == nil {
		writeError(w, r, errReadOnly)
		return
	}
	var p patchPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := p.toPatch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.mutator.Update(r.Context(), r.PathValue("id"), patch); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.mutator == nil {
		writeError(w, r, errReadOnly)
		return
	}
	if err := s.mutator.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toFilterDTO(s.session.Filter()))
}

// handleSetFilter replaces search and range. Omitted fields clear that part.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var p filterPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := p.toRange()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.session.SetRange(rng); err != nil {
		writeError(w, r, err)
		return
	}
	s.session.SetSearch(p.Search)

	f := s.session.Filter()
	log.FromContext(r.Context()).DebugContext(r.Context(), "Filter updated",
		log.FieldSearch, f.NormalizedSearch(), log.FieldRangeStart, f.Range.Start.String(), log.FieldRangeEnd, f.Range.End.String())
	writeJSON(w, http.StatusOK, toFilterDTO(f))
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.session.ClearFilters()
	writeJSON(w, http.StatusOK, toFilterDTO(s.session.Filter()))
}

func (s *Server) writeCalendar(w http.ResponseWriter, withGrid bool) {
	st, grid := s.session.PickerGrid()
	if !withGrid || !st.IsOpen {
		grid = nil
	}
	dto := toCalendarDTO(st, s.session.Filter().Range, s.session.WeekStart(), grid)
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	s.writeCalendar(w, true)
}

func (s *Server) handleCalendarOpen(w http.ResponseWriter, r *http.Request) {
	var p openPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := calendar.ParseMode(p.Mode)
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	s.session.OpenPicker(mode)
	s.writeCalendar(w, true)
}

func (s *Server) handleCalendarNavigate(w http.ResponseWriter, r *http.Request) {
	var p navigatePayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	dir, err := calendar.ParseDirection(p.Direction)
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	if _, err := s.session.NavigatePicker(dir); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeCalendar(w, true)
}

// handleCalendarSelect writes the picked date into the range. A date that
// would cross the other bound is answered with 422 and the picker stays open.
func (s *Server) handleCalendarSelect(w http.ResponseWriter, r *http.Request) {
	var p selectPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := p.toDate()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.session.SelectDate(d); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeCalendar(w, false)
}

func (s *Server) handleCalendarCancel(w http.ResponseWriter, r *http.Request) {
	s.session.CancelPicker()
	s.writeCalendar(w, false)
}
