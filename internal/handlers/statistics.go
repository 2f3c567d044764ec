package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// StatsCategoryItem is one category's share of the month.
type StatsCategoryItem struct {
	Category   string      `json:"category"`
	Total      json.Number `json:"total"`
	Count      int         `json:"count"`
	Percentage float64     `json:"percentage"`
}

// StatsResponse is the monthly summary returned to clients.
type StatsResponse struct {
	Year           int                 `json:"year"`
	Month          int                 `json:"month"`
	MonthName      string              `json:"month_name"`
	Total          json.Number         `json:"total"`
	Categories     []StatsCategoryItem `json:"categories"`
	PrevYear       int                 `json:"prev_year"`
	PrevMonth      int                 `json:"prev_month"`
	NextYear       int                 `json:"next_year"`
	NextMonth      int                 `json:"next_month"`
	IsCurrentMonth bool                `json:"is_current_month"`
}

// Statistics returns per-category totals for a user's month. year and month
// default to the current month.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())

	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = y
	}
	if s := r.URL.Query().Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid month")
			return
		}
		month = m
	}

	summary, err := h.ledger.Summary(r.Context(), userID, year, month)
	if err != nil {
		h.writeError(w, r, err, "Failed to build summary")
		return
	}

	items := make([]StatsCategoryItem, 0, len(summary.Categories))
	for _, c := range summary.Categories {
		items = append(items, StatsCategoryItem{
			Category:   c.Category,
			Total:      money(c.Total),
			Count:      c.Count,
			Percentage: c.Percentage,
		})
	}

	first := time.Date(summary.Year, time.Month(summary.Month), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	writeJSON(w, http.StatusOK, StatsResponse{
		Year:           summary.Year,
		Month:          summary.Month,
		MonthName:      summary.MonthName,
		Total:          money(summary.Total),
		Categories:     items,
		PrevYear:       prev.Year(),
		PrevMonth:      int(prev.Month()),
		NextYear:       next.Year(),
		NextMonth:      int(next.Month()),
		IsCurrentMonth: summary.Year == now.Year() && summary.Month == int(now.Month()),
	})
}
