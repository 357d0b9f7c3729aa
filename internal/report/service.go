// Package report renders per-job media inventories as XLSX workbooks.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/fieldmedia/internal/entity"
)

// MediaLister lists a job's media records in capture order.
type MediaLister interface {
	ListByJob(ctx context.Context, businessID, jobID string) ([]*entity.Media, error)
}

// Service produces XLSX bytes for job media reports.
type Service struct {
	media  MediaLister
	logger *slog.Logger
}

func NewService(media MediaLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{media: media, logger: logger}
}

const sheet = "Media"

var headers = []string{
	"Captured At",
	"Category",
	"Description",
	"File",
	"Kind",
	"Dimensions",
	"Camera",
	"Latitude",
	"Longitude",
	"Status",
	"Content Hash",
	"Duplicate Of",
}

// JobMediaXLSX returns a workbook with one row per media item of the job.
// Items whose content hash matches an earlier row name that row's file.
func (s *Service) JobMediaXLSX(ctx context.Context, businessID, jobID string) ([]byte, error) {
	start := time.Now()

	items, err := s.media.ListByJob(ctx, businessID, jobID)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	firstByHash := make(map[string]string, len(items))
	row := 2
	for _, m := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		captured := m.CreatedAt
		if m.TakenAt != nil {
			captured = *m.TakenAt
		}
		write(1, captured.UTC().Format("2006-01-02 15:04"))
		write(2, m.Category)
		write(3, truncate(m.Description, 140))
		write(4, m.Filename)
		write(5, string(m.Kind))
		if m.Width != nil && m.Height != nil {
			write(6, fmt.Sprintf("%dx%d", *m.Width, *m.Height))
		}
		write(7, camera(m))
		if m.Latitude != nil && m.Longitude != nil {
			write(8, *m.Latitude)
			write(9, *m.Longitude)
		}
		write(10, string(m.ProcessingStatus))
		if m.ContentHash != nil {
			hash := *m.ContentHash
			write(11, hash)
			if first, ok := firstByHash[hash]; ok {
				write(12, first)
			} else {
				firstByHash[hash] = m.Filename
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 18) // captured
	_ = f.SetColWidth(sheet, "B", "B", 18) // category
	_ = f.SetColWidth(sheet, "C", "C", 48) // description
	_ = f.SetColWidth(sheet, "D", "D", 28) // file
	_ = f.SetColWidth(sheet, "E", "F", 12)
	_ = f.SetColWidth(sheet, "G", "G", 24) // camera
	_ = f.SetColWidth(sheet, "H", "J", 12)
	_ = f.SetColWidth(sheet, "K", "L", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("report.xlsx.ok",
		"business_id", businessID,
		"job_id", jobID,
		"rows", len(items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func camera(m *entity.Media) string {
	var out string
	if m.CameraMake != nil {
		out = *m.CameraMake
	}
	if m.CameraModel != nil {
		if out != "" {
			out += " "
		}
		out += *m.CameraModel
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
