package core

// validation.go checks RawRows and converts them into typed records.
//
// Every row comes out as exactly one of TestPackRow, TagRow or InvalidRow.
// Problems never abort the import: an InvalidRow carries the first
// ValidationError found and is counted as skipped downstream.

import (
	"math"
	"strconv"
	"strings"
)

// ValidatedRow is a RawRow after validation.
type ValidatedRow interface {
	SheetLine() int
	validatedRow()
}

// TestPackRow is a valid test-pack record.
type TestPackRow struct {
	Line    int
	Ordinal int // position among all test-pack rows, valid or not
	Pack    TestPackInput
}

// TagRow is a valid tag record. Tag.TestPackID is filled in by the writer.
type TagRow struct {
	Line      int
	PackIndex int
	Tag       TagInput
}

// InvalidRow is a row that failed validation.
type InvalidRow struct {
	Line    int
	Kind    RowKind
	Ordinal int // meaningful when Kind is KindTestPack
	Err     *ValidationError
}

func (r TestPackRow) SheetLine() int { return r.Line }
func (r TagRow) SheetLine() int      { return r.Line }
func (r InvalidRow) SheetLine() int  { return r.Line }

func (TestPackRow) validatedRow() {}
func (TagRow) validatedRow()      {}
func (InvalidRow) validatedRow()  {}

// ValidateRows validates each row in order.
func ValidateRows(rows []RawRow) []ValidatedRow {
	out := make([]ValidatedRow, len(rows))
	for i, r := range rows {
		out[i] = ValidateRow(r)
	}
	return out
}

// ValidateRow validates a single RawRow.
func ValidateRow(r RawRow) ValidatedRow {
	switch r.Kind {
	case KindTestPack:
		return validateTestPack(r)
	case KindTag:
		return validateTag(r)
	default:
		return InvalidRow{Line: r.Line, Kind: KindUnknown, Err: &ValidationError{
			Line:    r.Line,
			Field:   ColTipo,
			Value:   r.Cell(ColTipo),
			Message: "invalid enum value, expected test_pack or tag",
		}}
	}
}

func validateTestPack(r RawRow) ValidatedRow {
	invalid := func(field, value, msg string) ValidatedRow {
		return InvalidRow{Line: r.Line, Kind: KindTestPack, Ordinal: r.PackOrdinal, Err: &ValidationError{
			Line: r.Line, Field: field, Value: value, Message: msg,
		}}
	}

	name := r.Cell(ColTestPack)
	if name == "" {
		return invalid(ColTestPack, "", "required field is empty")
	}

	progress := 0
	if raw := r.Cell(ColProgress); raw != "" {
		n, ok := ParseInt(raw)
		if !ok {
			return invalid(ColProgress, raw, "invalid number format")
		}
		progress = ClampPercent(n)
	}

	estadoCol := ColTestPackEstado
	if _, ok := r.Cells[estadoCol]; !ok {
		estadoCol = ColEstado
	}
	estado, ok := ParseEstado(r.Cell(estadoCol))
	if !ok {
		return invalid(estadoCol, r.Cell(estadoCol), "invalid enum value, expected pendiente or liberado")
	}

	return TestPackRow{
		Line:    r.Line,
		Ordinal: r.PackOrdinal,
		Pack: TestPackInput{
			Name:     name,
			ITRName:  r.Cell(ColITR),
			Progress: progress,
			Estado:   estado,
		},
	}
}

func validateTag(r RawRow) ValidatedRow {
	invalid := func(field, value, msg string) ValidatedRow {
		return InvalidRow{Line: r.Line, Kind: KindTag, Err: &ValidationError{
			Line: r.Line, Field: field, Value: value, Message: msg,
		}}
	}

	name := r.Cell(ColTagName)
	if name == "" {
		return invalid(ColTagName, "", "required field is empty")
	}

	rawIndex := r.Cell(ColTestPackIndex)
	if rawIndex == "" {
		return invalid(ColTestPackIndex, "", "required field is empty: missing test pack reference")
	}
	index, ok := parseIndex(rawIndex)
	if !ok {
		return invalid(ColTestPackIndex, rawIndex, "invalid number format for test pack reference")
	}

	estado, ok := ParseEstado(r.Cell(ColEstado))
	if !ok {
		return invalid(ColEstado, r.Cell(ColEstado), "invalid enum value, expected pendiente or liberado")
	}

	tag := TagInput{TagName: name, Estado: estado}
	if estado == EstadoLiberado {
		rawDate := r.Cell(ColFechaLiberacion)
		if rawDate == "" {
			return invalid(ColFechaLiberacion, "", "required field is empty: "+ErrReleaseDateRequired.Error())
		}
		d, ok := ParseDate(rawDate)
		if !ok {
			return invalid(ColFechaLiberacion, rawDate, "invalid date format (use YYYY-MM-DD or DD/MM/YYYY)")
		}
		tag.FechaLiberacion = &d
	}

	return TagRow{Line: r.Line, PackIndex: index, Tag: tag}
}

// parseIndex accepts whole numbers only, including "2.0" as written by
// spreadsheets that store every number as a float.
func parseIndex(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
