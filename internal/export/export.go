// Package export turns the dashboard's filtered records into a downloadable
// spreadsheet.
package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "بيانات الغياب"
	FileName    = "بيانات_الغياب.xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	ImageAttached = "مرفقة"
	ImageAbsent   = "لا يوجد"
)

// Headers are the column titles in export order.
var Headers = []string{
	"اسم المقرر",
	"الفرقة",
	"رقم اللجنة",
	"مكان اللجنة",
	"اسم الملاحظ",
	"التاريخ",
	"إجمالي الطلاب",
	"عدد الحاضرين",
	"عدد الغائبين",
	"صورة الكشف",
}

// Row is one exported record. Image is a presence indicator, never the
// photo itself.
type Row struct {
	CourseName        string
	AcademicYear      string
	CommitteeNumber   string
	CommitteeLocation string
	ObserverName      string
	Date              string
	TotalStudents     int
	PresentStudents   int
	AbsentStudents    int
	Image             string
}

// Values lists the cells of r in Headers order.
func (r Row) Values() []any {
	return []any{
		r.CourseName,
		r.AcademicYear,
		r.CommitteeNumber,
		r.CommitteeLocation,
		r.ObserverName,
		r.Date,
		r.TotalStudents,
		r.PresentStudents,
		r.AbsentStudents,
		r.Image,
	}
}

// File is a generated document ready to be served or written to disk.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter renders rows into a file.
type Exporter interface {
	Export(rows []Row) (File, error)
}

// XLSX writes rows to a single-sheet Excel workbook.
type XLSX struct{}

func (XLSX) Export(rows []Row) (File, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return File{}, fmt.Errorf("export: rename sheet: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return File{}, fmt.Errorf("export: write header: %w", err)
	}

	for i, r := range rows {
		values := r.Values()
		if err := f.SetSheetRow(SheetName, "A"+strconv.Itoa(i+2), &values); err != nil {
			return File{}, fmt.Errorf("export: write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return File{}, fmt.Errorf("export: write workbook: %w", err)
	}
	return File{Name: FileName, ContentType: ContentType, Data: buf.Bytes()}, nil
}
