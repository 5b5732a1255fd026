package api

import (
	"net/http"
	"strconv"

	"grimm.is/ruleaudit/internal/logging"
)

// defaultLogLimit bounds /api/v1/logs when no limit is given.
const defaultLogLimit = 100

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteErrorCtx(w, r, http.StatusBadRequest, v, "invalid limit")
			return
		}
		limit = n
	}
	source := r.URL.Query().Get("source")

	WriteJSON(w, http.StatusOK, s.logs.GetLast(limit, source))
}

// logBuffer is the subset of *logging.RingBuffer the server reads.
type logBuffer interface {
	GetLast(n int, source string) []logging.AppLogEntry
}
