package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
	"github.com/jessiekimhj/scheduler-api/pkg/export"
)

// Export formats accepted by the history endpoint.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type exportLessonRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Lesson, error)
}

// ExportService renders a student's full lesson history as CSV or PDF.
type ExportService struct {
	students exportStudentRepository
	lessons  exportLessonRepository
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(students exportStudentRepository, lessons exportLessonRepository, logger *zap.Logger) *ExportService {
	return &ExportService{
		students: students,
		lessons:  lessons,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportResult is a rendered document ready to stream to the client.
type ExportResult struct {
	Payload     []byte
	Filename    string
	ContentType string
}

// History renders the student's lesson history in the requested format.
func (s *ExportService) History(ctx context.Context, studentID, format string) (*ExportResult, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student for export")
	}

	lessons, err := s.lessons.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load lessons for export")
	}

	table := historyTable(lessons)
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case ExportFormatCSV, "":
		payload, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export")
		}
		return &ExportResult{
			Payload:     payload,
			Filename:    fmt.Sprintf("lessons_%s_%s.csv", studentID, stamp),
			ContentType: "text/csv",
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(table, fmt.Sprintf("Lesson history - %s", student.Name))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf export")
		}
		return &ExportResult{
			Payload:     payload,
			Filename:    fmt.Sprintf("lessons_%s_%s.pdf", studentID, stamp),
			ContentType: "application/pdf",
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func historyTable(lessons []models.Lesson) export.Table {
	rows := make([][]string, 0, len(lessons))
	for _, lesson := range lessons {
		bundle := "ad-hoc"
		if lesson.InBundle() {
			bundle = strconv.Itoa(lesson.BundleTag)
		}
		rows = append(rows, []string{
			lesson.Title,
			lesson.StartTime.Format("2006-01-02 15:04"),
			lesson.EndTime.Format("15:04"),
			bundle,
			strconv.Itoa(lesson.SequenceNumber),
			strconv.FormatBool(lesson.Paid),
			string(lesson.Status),
		})
	}
	return export.Table{
		Columns: []string{"Title", "Start", "End", "Bundle", "Seq", "Paid", "Status"},
		Rows:    rows,
	}
}
