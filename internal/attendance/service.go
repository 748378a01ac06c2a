package attendance

import (
	"examattendance/internal/export"
)

// Dashboard is what the admin screen renders.
type Dashboard struct {
	Stats   Stats    `json:"stats"`
	Records []Record `json:"records"`
}

// Service derives the admin views from the repository.
type Service struct {
	repo     *Repository
	exporter export.Exporter
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, exporter export.Exporter) *Service {
	return &Service{repo: repo, exporter: exporter}
}

// Dashboard recomputes stats over every record and the filtered table.
func (s *Service) Dashboard(f Filter) Dashboard {
	all := s.repo.All()
	return Dashboard{Stats: Summarize(all), Records: Apply(all, f)}
}

// Export renders the filtered table through the configured exporter.
func (s *Service) Export(f Filter) (export.File, error) {
	return s.exporter.Export(ExportRows(Apply(s.repo.All(), f)))
}

// Image returns the decoded attendance sheet of a record, selected as in
// Repository.Find.
func (s *Service) Image(id string, index int) (contentType string, data []byte, ok bool, err error) {
	rec, found := s.repo.Find(id, index)
	if !found || !rec.HasImage() {
		return "", nil, false, nil
	}
	contentType, data, err = DecodeImage(rec.AttendanceSheetImage)
	return contentType, data, true, err
}
