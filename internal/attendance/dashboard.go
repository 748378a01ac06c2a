package attendance

import (
	"fmt"
	"math"
	"strings"

	"examattendance/internal/export"
)

// RateNotApplicable is reported when no students have been counted.
const RateNotApplicable = "N/A"

// Stats aggregates the whole record sequence.
type Stats struct {
	TotalRecords   int    `json:"totalRecords"`
	TotalStudents  int    `json:"totalStudents"`
	TotalPresent   int    `json:"totalPresent"`
	AttendanceRate string `json:"attendanceRate"`
}

// Summarize computes the dashboard statistics.
func Summarize(records []Record) Stats {
	s := Stats{TotalRecords: len(records)}
	for _, r := range records {
		s.TotalStudents += r.TotalStudents
		s.TotalPresent += r.PresentStudents
	}
	s.AttendanceRate = RateNotApplicable
	if s.TotalStudents > 0 {
		rate := float64(s.TotalPresent) / float64(s.TotalStudents) * 100
		s.AttendanceRate = fmt.Sprintf("%.1f%%", math.Round(rate*10)/10)
	}
	return s
}

// Filter narrows the dashboard table. Empty fields match everything.
type Filter struct {
	CommitteeNumber   string `form:"committee_number" json:"committeeNumber"`
	CommitteeLocation string `form:"committee_location" json:"committeeLocation"`
	AcademicYear      string `form:"academic_year" json:"academicYear"`
	ObserverName      string `form:"observer_name" json:"observerName"`
	// Date is matched as a prefix of the record id, so "2026-10-15" selects
	// records created that UTC day.
	Date string `form:"date" json:"date"`
}

// Match reports whether r satisfies every criterion of f.
func (f Filter) Match(r Record) bool {
	return strings.Contains(r.CommitteeNumber, f.CommitteeNumber) &&
		containsFold(r.CommitteeLocation, f.CommitteeLocation) &&
		(f.AcademicYear == "" || r.AcademicYear == f.AcademicYear) &&
		containsFold(r.ObserverName, f.ObserverName) &&
		strings.HasPrefix(r.ID, f.Date)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Apply returns the records matching f, most recent first.
func Apply(records []Record, f Filter) []Record {
	out := make([]Record, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if f.Match(records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// ExportRows projects records into spreadsheet rows.
func ExportRows(records []Record) []export.Row {
	rows := make([]export.Row, len(records))
	for i, r := range records {
		image := export.ImageAbsent
		if r.HasImage() {
			image = export.ImageAttached
		}
		rows[i] = export.Row{
			CourseName:        r.CourseName,
			AcademicYear:      r.AcademicYear,
			CommitteeNumber:   r.CommitteeNumber,
			CommitteeLocation: r.CommitteeLocation,
			ObserverName:      r.ObserverName,
			Date:              r.Date,
			TotalStudents:     r.TotalStudents,
			PresentStudents:   r.PresentStudents,
			AbsentStudents:    r.AbsentStudents,
			Image:             image,
		}
	}
	return rows
}
