package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// parsePagination reads page and limit query parameters, clamping them to
// sane values. Pages are 1-based.
func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageLimit

	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}
	return page, limit
}
