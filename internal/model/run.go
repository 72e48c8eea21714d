package model

import "time"

type Run struct {
	ID            int
	Title         string
	RunDate       time.Time
	StartTime     string
	LIRFsRequired int
	LedBy         int
}

// CoverageGap is a scheduled run with unfilled LIRF slots.
type CoverageGap struct {
	RunID     int
	Title     string
	RunDate   time.Time
	StartTime string
	Required  int
	Assigned  int
}

// Vacancies is the number of leader slots still open.
func (g CoverageGap) Vacancies() int {
	if v := g.Required - g.Assigned; v > 0 {
		return v
	}
	return 0
}
