package core

import (
	"bytes"
	"context"
	"io"
	"time"
)

// maxPreviewGroups bounds the groups echoed back by a preview.
const maxPreviewGroups = 50

// PreviewGroup is a test pack that would be created.
type PreviewGroup struct {
	Line     int    `json:"line"`
	Name     string `json:"name"`
	ITRName  string `json:"itr_name,omitempty"`
	Progress int    `json:"progress"`
	Estado   Estado `json:"estado"`
	Tags     int    `json:"tags"`
	Released int    `json:"released"`
}

// ImportPreview is the outcome of a dry-run import.
type ImportPreview struct {
	TotalRows        int            `json:"total_rows"`
	TestPacks        int            `json:"test_packs"`
	Tags             int            `json:"tags"`
	RowsSkipped      int            `json:"rows_skipped"`
	Groups           []PreviewGroup `json:"groups"`
	Problems         []FailedRow    `json:"problems,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// PreviewImport parses, validates and links a workbook without writing
// anything, so the user can review what an import would do.
func (s *Service) PreviewImport(ctx context.Context, sess *Session, r io.Reader) (*ImportPreview, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	start := time.Now()

	data, err := readLimited(r, s.maxFileSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := ParseWorkbook(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	preview := BuildPreview(rows)
	preview.ProcessingTimeMs = time.Since(start).Milliseconds()
	return preview, nil
}

// BuildPreview summarizes what importing rows would write.
func BuildPreview(rows []RawRow) *ImportPreview {
	link := LinkRows(ValidateRows(rows))
	p := &ImportPreview{
		TotalRows:   len(rows),
		TestPacks:   len(link.Groups),
		Tags:        link.TagCount(),
		RowsSkipped: link.RowsSkipped(),
		Problems:    failedRows(link),
	}
	for i, g := range link.Groups {
		if i >= maxPreviewGroups {
			break
		}
		released := 0
		for _, t := range g.Tags {
			if t.Estado == EstadoLiberado {
				released++
			}
		}
		p.Groups = append(p.Groups, PreviewGroup{
			Line:     g.Line,
			Name:     g.Pack.Name,
			ITRName:  g.Pack.ITRName,
			Progress: g.Pack.Progress,
			Estado:   g.Pack.Estado,
			Tags:     len(g.Tags),
			Released: released,
		})
	}
	return p
}
