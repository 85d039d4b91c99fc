package core

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportSheet is the sheet name of exported and template workbooks.
const ExportSheet = "Test Packs"

// ExportColumns is the flat layout written by ExportWorkbook. ParseWorkbook
// reads it back. test_pack_key numbers the packs of the sheet from 1, so
// packs that share a name stay apart.
var ExportColumns = []string{
	ColTestPackKey, ColTestPack, ColITR, ColProgress, ColTestPackEstado,
	ColTagName, ColEstado, ColFechaLiberacion,
}

// TemplateColumns is the linked layout offered as a blank import template.
var TemplateColumns = []string{
	ColTipo, ColTestPackIndex, ColTestPack, ColITR, ColProgress,
	ColTagName, ColEstado, ColFechaLiberacion,
}

// ExportWorkbook writes one row per tag, denormalized with its test pack.
// Packs keep the given order; tags are ordered by name within a pack. Tags
// whose test pack is not in packs are left out. A pack without tags gets
// one row with blank tag columns so it survives a re-import.
func ExportWorkbook(w io.Writer, packs []TestPack, tags []Tag) error {
	byPack := make(map[string][]Tag, len(packs))
	for _, t := range tags {
		byPack[t.TestPackID] = append(byPack[t.TestPackID], t)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), ExportSheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	sw, err := f.NewStreamWriter(ExportSheet)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if err := sw.SetRow("A1", toAny(ExportColumns)); err != nil {
		return fmt.Errorf("export header: %w", err)
	}

	line := 2
	for i, p := range packs {
		key := i + 1
		packTags := byPack[p.ID]
		slices.SortStableFunc(packTags, func(a, b Tag) int { return cmp.Compare(a.TagName, b.TagName) })
		if len(packTags) == 0 {
			cell, _ := excelize.CoordinatesToCellName(1, line)
			if err := sw.SetRow(cell, []any{key, p.Name, p.ITRName, p.Progress, string(p.Estado)}); err != nil {
				return fmt.Errorf("export line %d: %w", line, err)
			}
			line++
			continue
		}
		for _, t := range packTags {
			fecha := ""
			if t.FechaLiberacion != nil {
				fecha = t.FechaLiberacion.String()
			}
			cell, _ := excelize.CoordinatesToCellName(1, line)
			row := []any{key, p.Name, p.ITRName, p.Progress, string(p.Estado), t.TagName, string(t.Estado), fecha}
			if err := sw.SetRow(cell, row); err != nil {
				return fmt.Errorf("export line %d: %w", line, err)
			}
			line++
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export write: %w", err)
	}
	return nil
}

// WriteTemplate writes an import template with the linked layout header
// and one example group.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), ExportSheet); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	rows := [][]any{
		toAny(TemplateColumns),
		{"test_pack", "", "TP-001", "ITR-A01", 0, "", "", ""},
		{"tag", 0, "", "", "", "TAG-001", "pendiente", ""},
		{"tag", 0, "", "", "", "TAG-002", "liberado", "2024-01-15"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("template row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("template write: %w", err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// ExportTestPacks writes the test packs matching f, with their tags, to w.
// The list filter applies to test packs; every tag of a matching pack is
// exported.
func (s *Service) ExportTestPacks(ctx context.Context, sess *Session, f TestPackFilter, w io.Writer) (int, error) {
	if err := s.checkRead(sess); err != nil {
		return 0, err
	}
	stop := s.guard.Track("export test packs")
	defer stop()

	f.Limit, f.Offset = 0, 0
	packs, err := s.store.ListTestPacks(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("list test packs: %w", err)
	}
	ids := make([]string, len(packs))
	for i, p := range packs {
		ids[i] = p.ID
	}

	var tags []Tag
	if len(ids) > 0 {
		tags, err = s.store.ListTags(ctx, TagFilter{TestPackIDs: ids})
		if err != nil {
			return 0, fmt.Errorf("list tags: %w", err)
		}
	}
	if err := ExportWorkbook(w, packs, tags); err != nil {
		return 0, err
	}
	return len(tags), nil
}

// ExportFileName names an export download.
func ExportFileName(now time.Time) string {
	return "test_packs_" + now.Format("20060102_150405") + ".xlsx"
}
