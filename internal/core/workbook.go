package core

// workbook.go reads the first sheet of an .xlsx file into RawRows.
//
// Two layouts are accepted:
//
//	linked  a "tipo" column marks each row test_pack or tag; tag rows point
//	        at their test pack with a zero-based "test_pack_index" counted
//	        over the test-pack rows of the sheet.
//	flat    no "tipo" column; each row carries its test pack's fields next
//	        to one tag. This is the layout written by ExportWorkbook. Rows
//	        of one pack share a "test_pack_key"; sheets without that column
//	        group rows by test pack name.
//
// Flat rows are expanded here into linked form so the validator and linker
// only ever see one shape.

import (
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Canonical column names.
const (
	ColTipo            = "tipo"
	ColTestPackIndex   = "test_pack_index"
	ColTestPackKey     = "test_pack_key"
	ColTestPack        = "test_pack"
	ColITR             = "itr"
	ColProgress        = "progress"
	ColTestPackEstado  = "test_pack_estado"
	ColTagName         = "tag_name"
	ColEstado          = "estado"
	ColFechaLiberacion = "fecha_liberacion"
)

// MaxImportRows caps the data rows read from one sheet.
const MaxImportRows = 10000

// WorkbookColumns lists every recognised column with its accepted aliases.
var WorkbookColumns = []FieldSpec{
	{Name: ColTipo, Aliases: []string{"kind", "row_type", "tipo_fila"}},
	{Name: ColTestPackIndex, Aliases: []string{"test_pack_ref", "indice_test_pack"}},
	{Name: ColTestPackKey, Aliases: []string{"pack_key", "clave_test_pack"}},
	{Name: ColTestPack, Aliases: []string{"test_pack_name", "name", "nombre"}},
	{Name: ColITR, Aliases: []string{"itr_name"}},
	{Name: ColProgress, Aliases: []string{"progreso", "avance"}},
	{Name: ColTestPackEstado, Aliases: []string{"estado_test_pack"}},
	{Name: ColTagName, Aliases: []string{"tag"}},
	{Name: ColEstado, Aliases: []string{"status"}},
	{Name: ColFechaLiberacion, Aliases: []string{"release_date"}},
}

var columnAliases = buildColumnAliases(WorkbookColumns)

func buildColumnAliases(specs []FieldSpec) map[string]string {
	m := make(map[string]string)
	for _, spec := range specs {
		m[spec.Name] = spec.Name
		for _, a := range spec.Aliases {
			m[NormalizeHeader(a)] = spec.Name
		}
	}
	return m
}

// pack fields copied onto the test-pack record of a flat row
var packColumns = []string{ColTestPack, ColITR, ColProgress, ColTestPackEstado}

// RowKind says what a RawRow describes.
type RowKind int

const (
	KindUnknown RowKind = iota
	KindTestPack
	KindTag
)

func (k RowKind) String() string {
	switch k {
	case KindTestPack:
		return "test_pack"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// RawRow is one record read from the sheet, before validation.
type RawRow struct {
	Line        int     // 1-based sheet line
	Kind        RowKind // KindUnknown when tipo holds an unrecognised value
	PackOrdinal int     // position among test-pack rows; test-pack rows only
	Cells       map[string]string
}

// Cell returns the cleaned value of a canonical column, "" if absent.
func (r RawRow) Cell(col string) string {
	return r.Cells[col]
}

// HeaderIndex maps canonical column names to sheet positions.
type HeaderIndex map[string]int

// MakeHeaderIndex resolves a header row against the column alias table.
// Unknown columns are ignored; the first occurrence of a column wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		canon, ok := columnAliases[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[canon]; !dup {
			idx[canon] = i
		}
	}
	return idx
}

// ParseWorkbook reads the first sheet of an .xlsx workbook.
func ParseWorkbook(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Reason: "invalid xlsx file", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ParseError{Reason: "cannot read sheet " + strconv.Quote(sheets[0]), Err: err}
	}
	shown, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: "cannot read sheet " + strconv.Quote(sheets[0]), Err: err}
	}
	usePercentText(rows, shown)
	return ParseRows(rows)
}

// usePercentText replaces raw cells with their displayed text when the cell
// has a percent format: a stored 0.75 shown as "75%" reads as 75.
func usePercentText(raw, shown [][]string) {
	for i := range min(len(raw), len(shown)) {
		for j := range min(len(raw[i]), len(shown[i])) {
			if strings.HasSuffix(strings.TrimSpace(shown[i][j]), "%") {
				raw[i][j] = shown[i][j]
			}
		}
	}
}

// ParseRows turns sheet rows, header first, into RawRows.
func ParseRows(rows [][]string) ([]RawRow, error) {
	headerAt := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, &ParseError{Reason: "empty file: sheet has no header row"}
	}

	idx := MakeHeaderIndex(rows[headerAt])
	if len(idx) == 0 {
		return nil, &ParseError{Reason: "column not found: header has no recognised columns"}
	}
	_, hasTipo := idx[ColTipo]
	_, hasIndex := idx[ColTestPackIndex]
	_, hasTag := idx[ColTagName]
	flat := !hasTipo && !hasIndex && hasTag

	p := &rowParser{idx: idx, packByKey: make(map[string]int)}
	dataRows := 0
	for i := headerAt + 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		dataRows++
		if dataRows > MaxImportRows {
			return nil, &ParseError{Reason: "file too large: more than " + strconv.Itoa(MaxImportRows) + " data rows"}
		}
		cells := p.cells(rows[i])
		line := i + 1
		if flat {
			p.addFlat(line, cells)
		} else {
			p.addLinked(line, cells)
		}
	}
	if dataRows == 0 {
		return nil, &ParseError{Reason: "empty file: sheet has no data rows"}
	}
	return p.out, nil
}

type rowParser struct {
	idx       HeaderIndex
	out       []RawRow
	packs     int
	packByKey map[string]int
}

func (p *rowParser) cells(row []string) map[string]string {
	m := make(map[string]string, len(p.idx))
	for col, pos := range p.idx {
		if pos < len(row) {
			if v := CleanCell(row[pos]); v != "" {
				m[col] = v
			}
		}
	}
	return m
}

func (p *rowParser) addLinked(line int, cells map[string]string) {
	kind := rowKind(cells)
	row := RawRow{Line: line, Kind: kind, Cells: cells}
	if kind == KindTestPack {
		row.PackOrdinal = p.packs
		p.packs++
	}
	p.out = append(p.out, row)
}

// addFlat emits a test-pack record on the first sighting of a pack, then a
// tag record pointing at that pack. A pack is identified by its
// test_pack_key, or by its name when the key is blank.
func (p *rowParser) addFlat(line int, cells map[string]string) {
	name, key := cells[ColTestPack], cells[ColTestPackKey]
	group := "name:" + name
	if key != "" {
		group = "key:" + key
	}
	ordinal, seen := p.packByKey[group]
	if (name != "" || key != "") && !seen {
		packCells := make(map[string]string, len(packColumns))
		for _, col := range packColumns {
			if v, ok := cells[col]; ok {
				packCells[col] = v
			}
		}
		ordinal = p.packs
		p.packByKey[group] = ordinal
		p.packs++
		seen = true
		p.out = append(p.out, RawRow{Line: line, Kind: KindTestPack, PackOrdinal: ordinal, Cells: packCells})
	}

	if cells[ColTagName] == "" {
		return
	}
	tagCells := map[string]string{ColTagName: cells[ColTagName]}
	for _, col := range []string{ColEstado, ColFechaLiberacion} {
		if v, ok := cells[col]; ok {
			tagCells[col] = v
		}
	}
	if seen {
		tagCells[ColTestPackIndex] = strconv.Itoa(ordinal)
	}
	p.out = append(p.out, RawRow{Line: line, Kind: KindTag, Cells: tagCells})
}

// rowKind reads tipo, or infers it from the presence of a tag name.
func rowKind(cells map[string]string) RowKind {
	switch strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(cells[ColTipo])) {
	case "test_pack", "testpack", "pack":
		return KindTestPack
	case "tag":
		return KindTag
	case "":
		if cells[ColTagName] != "" {
			return KindTag
		}
		return KindTestPack
	default:
		return KindUnknown
	}
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
