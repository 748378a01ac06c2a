package attendance

import (
	"strconv"
	"strings"
	"time"
)

// IDLayout is the creation timestamp format used for record ids. It sorts
// lexically and its date prefix (2006-01-02) doubles as a day filter.
const IDLayout = "2006-01-02T15:04:05.000Z"

// AcademicYears are the year groups offered by the observer form.
var AcademicYears = []string{"الاولي", "الثانيه", "الثالثه", "الرابعه", "دراسات عليا"}

// Record is one submitted committee attendance observation.
type Record struct {
	ID                   string `json:"id"`
	ObserverName         string `json:"observerName"`
	AcademicYear         string `json:"academicYear"`
	CommitteeNumber      string `json:"committeeNumber"`
	CommitteeLocation    string `json:"committeeLocation"`
	CourseName           string `json:"courseName"`
	Date                 string `json:"date"`
	TotalStudents        int    `json:"totalStudents"`
	PresentStudents      int    `json:"presentStudents"`
	AbsentStudents       int    `json:"absentStudents"`
	AttendanceSheetImage string `json:"attendanceSheetImage,omitempty"`
}

// HasImage reports whether an attendance sheet photo was attached.
func (r Record) HasImage() bool { return r.AttendanceSheetImage != "" }

// Draft holds the editable fields of a record before it is submitted.
type Draft struct {
	ObserverName         string `json:"observerName"`
	AcademicYear         string `json:"academicYear"`
	CommitteeNumber      string `json:"committeeNumber"`
	CommitteeLocation    string `json:"committeeLocation"`
	CourseName           string `json:"courseName"`
	TotalStudents        int    `json:"totalStudents"`
	PresentStudents      int    `json:"presentStudents"`
	AttendanceSheetImage string `json:"attendanceSheetImage,omitempty"`
}

// Absent is total minus present. It is negative for an invalid draft.
func (d Draft) Absent() int { return d.TotalStudents - d.PresentStudents }

func (d Draft) validateCounts() error {
	if d.TotalStudents < 0 || d.PresentStudents < 0 {
		return ErrNegativeCount
	}
	return nil
}

// NewRecord stamps a draft with its id and display date. It rejects drafts
// whose present count exceeds the total.
func NewRecord(d Draft, now time.Time, loc *time.Location) (Record, error) {
	if err := d.validateCounts(); err != nil {
		return Record{}, err
	}
	absent := d.Absent()
	if absent < 0 {
		return Record{}, ErrPresentExceedsTotal
	}
	return Record{
		ID:                   now.UTC().Format(IDLayout),
		ObserverName:         d.ObserverName,
		AcademicYear:         d.AcademicYear,
		CommitteeNumber:      d.CommitteeNumber,
		CommitteeLocation:    d.CommitteeLocation,
		CourseName:           d.CourseName,
		Date:                 DisplayDate(now, loc),
		TotalStudents:        d.TotalStudents,
		PresentStudents:      d.PresentStudents,
		AbsentStudents:       absent,
		AttendanceSheetImage: d.AttendanceSheetImage,
	}, nil
}

const rlm = "‏"

var arabicDigits = strings.NewReplacer(
	"0", "٠", "1", "١", "2", "٢", "3", "٣", "4", "٤",
	"5", "٥", "6", "٦", "7", "٧", "8", "٨", "9", "٩",
)

// DisplayDate renders t the way Egyptian Arabic locales print a date and
// time, e.g. "١٥‏/١٠‏/٢٠٢٦، ٣:٠٤:٠٥ م". It is for display only.
func DisplayDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	period := "ص"
	if t.Hour() >= 12 {
		period = "م"
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(t.Day()))
	b.WriteString(rlm + "/")
	b.WriteString(strconv.Itoa(int(t.Month())))
	b.WriteString(rlm + "/")
	b.WriteString(strconv.Itoa(t.Year()))
	b.WriteString("، ")
	b.WriteString(strconv.Itoa(hour))
	b.WriteString(t.Format(":04:05"))
	b.WriteString(" " + period)
	return arabicDigits.Replace(b.String())
}
