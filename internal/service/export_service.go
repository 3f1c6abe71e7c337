package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/export"
)

type rosterRepository interface {
	All(ctx context.Context) ([]models.Student, error)
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the student roster as CSV or PDF.
type ExportService struct {
	students  rosterRepository
	renderers map[export.Format]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(students rosterRepository, logger *zap.Logger, csv, pdf export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		students:  students,
		renderers: map[export.Format]export.Renderer{export.FormatCSV: csv, export.FormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// Roster renders every student in the requested format.
func (s *ExportService) Roster(ctx context.Context, rawFormat string) (*ExportResult, error) {
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(rawFormat)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}

	students, err := s.students.All(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load students")
	}

	renderer := s.renderers[format]
	body, err := renderer.Render(buildRosterDataset(students))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	filename := fmt.Sprintf("students-%s.%s", s.now().UTC().Format("20060102"), format)
	s.logger.Info("student roster exported", zap.String("format", string(format)), zap.Int("rows", len(students)))
	return &ExportResult{Filename: filename, ContentType: renderer.ContentType(), Body: body}, nil
}

func buildRosterDataset(students []models.Student) export.Dataset {
	rows := make([][]string, 0, len(students))
	for _, st := range students {
		extra := make([]string, len(st.AccessibleLevels))
		for i, l := range st.AccessibleLevels {
			extra[i] = strconv.Itoa(l)
		}
		rows = append(rows, []string{
			st.Name,
			st.Email,
			strconv.Itoa(st.Level),
			strings.Join(extra, " "),
			deref(st.Phone),
			string(st.AuthProvider),
			st.CreatedAt.UTC().Format("2006-01-02"),
		})
	}
	return export.Dataset{
		Title:   "Student Roster",
		Headers: []string{"Name", "Email", "Level", "Extra Levels", "Phone", "Sign-in", "Joined"},
		Rows:    rows,
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
