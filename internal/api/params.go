package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"
)

func (s *Server) parseDate(field, value string) (time.Time, error) {
	d, err := timeutil.ParseDate(value, s.loc)
	if err != nil {
		return time.Time{}, model.Invalid(field, err.Error())
	}
	return d, nil
}

// dateRange reads from/to (YYYY-MM-DD, both inclusive). When required is false a
// missing bound stays zero.
func (s *Server) dateRange(r *http.Request, required bool) (from, to time.Time, err error) {
	q := r.URL.Query()
	v := model.NewValidationError()
	if raw := q.Get("from"); raw != "" {
		if from, err = timeutil.ParseDate(raw, s.loc); err != nil {
			v.Add("from", err.Error())
		}
	} else if required {
		v.Add("from", "is required")
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = timeutil.ParseDate(raw, s.loc); err != nil {
			v.Add("to", err.Error())
		}
	} else if required {
		v.Add("to", "is required")
	}
	if err := v.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := s.checkRange(from, to); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// checkRange rejects inverted ranges and ranges longer than the configured maximum.
func (s *Server) checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	if timeutil.CompareDates(from, to) > 0 {
		return model.Invalid("range", "from must not be after to")
	}
	days := 0
	timeutil.EachDate(from, to, func(time.Time) bool {
		days++
		return days <= s.opts.MaxRangeDays
	})
	if days > s.opts.MaxRangeDays {
		return model.Invalid("range", fmt.Sprintf("range exceeds %d days", s.opts.MaxRangeDays))
	}
	return nil
}

// endOfDay turns an inclusive date bound into an exclusive instant.
func endOfDay(d time.Time) time.Time {
	if d.IsZero() {
		return d
	}
	return timeutil.DayRange(d).End
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// expectedVersion reads ?expected_version=; missing means no optimistic check.
func expectedVersion(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("expected_version")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, model.Invalid("expected_version", "must be a non-negative integer")
	}
	return v, nil
}
