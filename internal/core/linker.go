package core

import "strconv"

// ImportGroup is a valid test pack with the valid tags that point at it.
type ImportGroup struct {
	Pack     TestPackInput
	Line     int
	Tags     []TagInput
	TagLines []int
}

// LinkResult is the linker's output: groups in sheet order plus every row
// that will not be written.
type LinkResult struct {
	Groups       []ImportGroup
	Invalid      []InvalidRow
	LinkErrors   []*LinkError
	SkippedPacks int
	SkippedTags  int
}

// TagCount returns the number of tags across all groups.
func (r LinkResult) TagCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Tags)
	}
	return n
}

// RowsSkipped counts every row that failed validation or linking.
func (r LinkResult) RowsSkipped() int {
	return len(r.Invalid) + len(r.LinkErrors)
}

// LinkRows groups validated rows. A tag's PackIndex is a position among
// all test-pack rows of the sheet, so invalid test-pack rows keep their
// slot; a tag pointing at an invalid or missing pack gets a LinkError.
func LinkRows(rows []ValidatedRow) LinkResult {
	var res LinkResult

	// ordinal -> group position, -1 for invalid packs
	slots := make(map[int]int)
	packRows := 0
	for _, row := range rows {
		switch r := row.(type) {
		case TestPackRow:
			slots[r.Ordinal] = len(res.Groups)
			res.Groups = append(res.Groups, ImportGroup{Pack: r.Pack, Line: r.Line})
			packRows++
		case InvalidRow:
			if r.Kind == KindTestPack {
				slots[r.Ordinal] = -1
				packRows++
				res.SkippedPacks++
			}
		}
	}

	for _, row := range rows {
		switch r := row.(type) {
		case TagRow:
			slot, ok := slots[r.PackIndex]
			switch {
			case r.PackIndex < 0 || r.PackIndex >= packRows || !ok:
				res.LinkErrors = append(res.LinkErrors, &LinkError{
					Line: r.Line, TagName: r.Tag.TagName, Index: r.PackIndex,
					Reason: "out of range (sheet has " + strconv.Itoa(packRows) + " test packs)",
				})
				res.SkippedTags++
			case slot < 0:
				res.LinkErrors = append(res.LinkErrors, &LinkError{
					Line: r.Line, TagName: r.Tag.TagName, Index: r.PackIndex,
					Reason: "refers to an invalid test pack row",
				})
				res.SkippedTags++
			default:
				g := &res.Groups[slot]
				g.Tags = append(g.Tags, r.Tag)
				g.TagLines = append(g.TagLines, r.Line)
			}
		case InvalidRow:
			res.Invalid = append(res.Invalid, r)
			if r.Kind == KindTag {
				res.SkippedTags++
			}
		}
	}
	return res
}
