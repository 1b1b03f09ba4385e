package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"expenditures/internal/calendar"
	"expenditures/internal/core"
	"expenditures/internal/log"
	"expenditures/internal/view"
)

type recordDTO struct {
	ID        string     `json:"id"`
	Item      string     `json:"item"`
	Amount    string     `json:"amount"`
	Vendor    string     `json:"vendor,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt *time.Time `json:"createdAt"`
}

type filterDTO struct {
	Search string `json:"search"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type projectionDTO struct {
	Version    uint64      `json:"version"`
	ReceivedAt *time.Time  `json:"receivedAt,omitempty"`
	Filter     filterDTO   `json:"filter"`
	Count      int         `json:"count"`
	Total      string      `json:"total"`
	Warnings   int         `json:"warnings,omitempty"`
	Records    []recordDTO `json:"records"`
}

type calendarDTO struct {
	Open      bool       `json:"open"`
	Mode      string     `json:"mode"`
	Month     string     `json:"month"`
	WeekStart string     `json:"weekStart"`
	Range     filterDTO  `json:"range"`
	Grid      [][]string `json:"grid,omitempty"`
}

type errorDTO struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func toRecordDTO(r core.Record) recordDTO {
	dto := recordDTO{
		ID:     r.ID,
		Item:   r.Item,
		Amount: r.Amount.String(),
		Vendor: r.Vendor,
		Notes:  r.Notes,
	}
	if r.HasCreatedAt() {
		t := r.CreatedAt
		dto.CreatedAt = &t
	}
	return dto
}

func toFilterDTO(f core.FilterState) filterDTO {
	return filterDTO{Search: f.SearchText, Start: f.Range.Start.String(), End: f.Range.End.String()}
}

func toProjectionDTO(p view.Projection) projectionDTO {
	dto := projectionDTO{
		Version:  p.Version,
		Filter:   toFilterDTO(p.Filter),
		Count:    p.Summary.Count,
		Total:    p.Summary.Total.StringFixed(2),
		Warnings: p.Warnings,
		Records:  make([]recordDTO, 0, len(p.Records)),
	}
	if !p.ReceivedAt.IsZero() {
		t := p.ReceivedAt
		dto.ReceivedAt = &t
	}
	for _, r := range p.Records {
		dto.Records = append(dto.Records, toRecordDTO(r))
	}
	return dto
}

func toCalendarDTO(st calendar.State, rng core.DateRange, weekStart time.Weekday, grid [][]core.Date) calendarDTO {
	dto := calendarDTO{
		Open:      st.IsOpen,
		Mode:      st.Mode.String(),
		Month:     st.DisplayedMonth.String(),
		WeekStart: weekStart.String(),
		Range:     filterDTO{Start: rng.Start.String(), End: rng.End.String()},
	}
	for _, row := range grid {
		cells := make([]string, len(row))
		for i, d := range row {
			cells[i] = d.String()
		}
		dto.Grid = append(dto.Grid, cells)
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON. Server errors
// are logged with the request's logger; their text is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	writeJSON(w, status, body)
}

func classifyError(err error) (int, errorDTO) {
	var rangeErr *core.InvalidRangeError
	switch {
	case errors.As(err, &rangeErr):
		return http.StatusUnprocessableEntity, errorDTO{Error: rangeErr.Error(), Reason: rangeErr.Reason}
	case errors.Is(err, errBadRequest), errors.Is(err, calendar.ErrInvalidDate):
		return http.StatusBadRequest, errorDTO{Error: err.Error()}
	case errors.Is(err, core.ErrEmptyItem), errors.Is(err, core.ErrItemTooLong),
		errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrEmptyPatch):
		return http.StatusUnprocessableEntity, errorDTO{Error: err.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorDTO{Error: "record not found"}
	case errors.Is(err, calendar.ErrClosed):
		return http.StatusConflict, errorDTO{Error: err.Error()}
	case errors.Is(err, errReadOnly):
		return http.StatusNotImplemented, errorDTO{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorDTO{Error: "internal error"}
	}
}
