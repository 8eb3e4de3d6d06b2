package api

import (
	"bytes"
	"fmt"
	"net/http"

	"salonsched/internal/export"
)

func (s *Server) exportEvents(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	from, to, err := s.dateRange(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Render fully before writing so a failure still yields a JSON error.
	var buf bytes.Buffer
	if _, err := s.exporter.Write(r.Context(), &buf, format, from, endOfDay(to)); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == export.FormatXLSX {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(from, to, format)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
