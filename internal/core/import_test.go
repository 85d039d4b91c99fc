package core_test

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/core/coretest"
)

var testStart = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...core.Option) (*core.Service, *coretest.MemStore, *clockwork.FakeClock) {
	t.Helper()
	store := coretest.NewMemStore()
	clock := clockwork.NewFakeClockAt(testStart)
	store.SetNow(clock.Now)
	opts = append([]core.Option{core.WithClock(clock)}, opts...)
	return core.NewService(store, opts...), store, clock
}

func editor() *core.Session {
	return core.NewSession("user-editor", "editor@example.com", core.RoleEditor, time.Time{})
}

func viewer() *core.Session {
	return core.NewSession("user-viewer", "viewer@example.com", core.RoleViewer, time.Time{})
}

func admin() *core.Session {
	return core.NewSession("user-admin", "admin@example.com", core.RoleAdmin, time.Time{})
}

// workbook builds an .xlsx from rows, header first.
func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

var linkedHeader = []any{"tipo", "test_pack_index", "test_pack", "itr", "progress", "tag_name", "estado", "fecha_liberacion"}

func twoPacksFiveTags(t *testing.T) *bytes.Buffer {
	return workbook(t,
		linkedHeader,
		[]any{"test_pack", "", "TP-1", "ITR-A", 40},
		[]any{"test_pack", "", "TP-2", "ITR-B", 80},
		[]any{"tag", 0, "", "", "", "T-1", "pendiente"},
		[]any{"tag", 0, "", "", "", "T-2", "liberado", "2024-05-01"},
		[]any{"tag", 0, "", "", "", "T-3", ""},
		[]any{"tag", 1, "", "", "", "T-4", "liberado", "02/05/2024"},
		[]any{"tag", 1, "", "", "", "T-5", "pendiente"},
	)
}

func TestImportWorkbook_TwoPacksFiveTags(t *testing.T) {
	svc, store, _ := newTestService(t)

	res, err := svc.ImportWorkbook(context.Background(), editor(), "site.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)

	assert.Equal(t, core.ImportComplete, res.Status)
	assert.Equal(t, 7, res.TotalRows)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 5, res.TagsCreated)
	assert.Zero(t, res.TagsSkipped)
	assert.Zero(t, res.RowsSkipped)
	assert.False(t, res.TimedOut)

	packs := store.AllTestPacks()
	require.Len(t, packs, 2)
	ids := map[string]string{}
	for _, p := range packs {
		ids[p.ID] = p.Name
		assert.Equal(t, res.ImportID, p.ImportID)
	}

	perPack := map[string]int{}
	for _, tg := range store.AllTags() {
		name, ok := ids[tg.TestPackID]
		require.True(t, ok, "tag %s points outside this import", tg.TagName)
		perPack[name]++
		assert.Equal(t, tg.Estado == core.EstadoLiberado, tg.FechaLiberacion != nil)
	}
	assert.Equal(t, map[string]int{"TP-1": 3, "TP-2": 2}, perPack)

	rec, err := store.GetImport(context.Background(), res.ImportID)
	require.NoError(t, err)
	assert.Equal(t, core.ImportComplete, rec.Status)
	assert.Equal(t, "user-editor", rec.UserID)
}

func TestImportWorkbook_OutOfRangeIndexSkipped(t *testing.T) {
	svc, store, _ := newTestService(t)

	buf := workbook(t,
		linkedHeader,
		[]any{"test_pack", "", "TP-1"},
		[]any{"test_pack", "", "TP-2"},
		[]any{"tag", 0, "", "", "", "T-1"},
		[]any{"tag", 9, "", "", "", "T-far"},
		[]any{"tag", -1, "", "", "", "T-neg"},
		[]any{"tag", 1, "", "", "", "T-2"},
	)
	res, err := svc.ImportWorkbook(context.Background(), editor(), "refs.xlsx", buf)
	require.NoError(t, err)

	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 2, res.TagsCreated)
	assert.Equal(t, 2, res.TagsSkipped)
	require.Len(t, res.FailedRows, 2)
	assert.Equal(t, 5, res.FailedRows[0].Line)
	assert.Equal(t, 6, res.FailedRows[1].Line)
	assert.Len(t, store.AllTags(), 2)
}

func TestImportWorkbook_ClampsProgress(t *testing.T) {
	svc, store, _ := newTestService(t)

	buf := workbook(t,
		linkedHeader,
		[]any{"test_pack", "", "high", "", 150},
		[]any{"test_pack", "", "low", "", -10},
	)
	_, err := svc.ImportWorkbook(context.Background(), editor(), "clamp.xlsx", buf)
	require.NoError(t, err)

	got := map[string]int{}
	for _, p := range store.AllTestPacks() {
		got[p.Name] = p.Progress
	}
	assert.Equal(t, map[string]int{"high": 100, "low": 0}, got)
}

func TestImportWorkbook_TestPackPhaseFailureWritesNothing(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.FailOn("InsertTestPacks", errors.New("connection reset by peer"))

	res, err := svc.ImportWorkbook(context.Background(), editor(), "fail.xlsx", twoPacksFiveTags(t))

	var werr *core.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, core.PhaseTestPacks, werr.Phase)
	assert.Equal(t, core.ImportFailed, res.Status)
	assert.Zero(t, res.TestPacksCreated)
	assert.Zero(t, res.TagsCreated)
	assert.Equal(t, 2, res.TestPacksSkipped)
	assert.Equal(t, 5, res.TagsSkipped)
	assert.Zero(t, store.Calls("InsertTags"))
	assert.Empty(t, store.AllTestPacks())
	assert.Equal(t, "DB005", core.MapError(err).Code)

	rec, err := store.GetImport(context.Background(), res.ImportID)
	require.NoError(t, err)
	assert.Equal(t, core.ImportFailed, rec.Status)
}

func TestImportWorkbook_TagPhaseFailureIsPartial(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.FailOn("InsertTags", errors.New("boom"))

	res, err := svc.ImportWorkbook(context.Background(), editor(), "partial.xlsx", twoPacksFiveTags(t))

	var werr *core.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, core.PhaseTags, werr.Phase)
	assert.Equal(t, core.ImportPartial, res.Status)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Zero(t, res.TagsCreated)
	assert.Len(t, store.AllTestPacks(), 2, "test packs from phase 1 stay")
	assert.Equal(t, "IMP003", core.MapError(err).Code)

	// explicit rollback removes them
	rb, err := svc.RollbackImport(context.Background(), editor(), res.ImportID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rb.TestPacksDeleted)
	assert.Empty(t, store.AllTestPacks())

	_, err = svc.RollbackImport(context.Background(), editor(), res.ImportID)
	assert.ErrorIs(t, err, core.ErrImportRolledBack)
}

func TestImportWorkbook_ReimportDoubles(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportWorkbook(ctx, editor(), "site.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)

	var export bytes.Buffer
	n, err := svc.ExportTestPacks(ctx, viewer(), core.TestPackFilter{}, &export)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	res, err := svc.ImportWorkbook(ctx, editor(), "export.xlsx", &export)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 5, res.TagsCreated)

	assert.Len(t, store.AllTestPacks(), 4)
	assert.Len(t, store.AllTags(), 10)
}

func TestImportWorkbook_RoundTrip(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	buf := workbook(t,
		linkedHeader,
		[]any{"test_pack", "", "TP-1", "ITR-A", 40},
		[]any{"test_pack", "", ""}, // invalid: no name
		[]any{"tag", 0, "", "", "", "T-1", "liberado", "2024-05-01"},
		[]any{"tag", 0, "", "", "", "T-2"},
		[]any{"tag", 1, "", "", "", "T-orphan"},
		[]any{"tag", 0, "", "", "", "", "pendiente"}, // invalid: no tag name
	)
	_, err := svc.ImportWorkbook(ctx, editor(), "in.xlsx", buf)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = svc.ExportTestPacks(ctx, viewer(), core.TestPackFilter{}, &out)
	require.NoError(t, err)

	rows, err := core.ParseWorkbook(&out)
	require.NoError(t, err)
	var tagNames []string
	for _, r := range rows {
		if r.Kind == core.KindTag {
			tagNames = append(tagNames, r.Cell(core.ColTagName))
		}
	}
	sort.Strings(tagNames)
	assert.Equal(t, []string{"T-1", "T-2"}, tagNames)

	var released core.Tag
	for _, tg := range store.AllTags() {
		if tg.TagName == "T-1" {
			released = tg
		}
	}
	require.NotNil(t, released.FechaLiberacion)
	assert.Equal(t, "2024-05-01", released.FechaLiberacion.String())
}

func TestImportWorkbook_ReimportKeepsSameNamePacksApart(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	buf := workbook(t,
		linkedHeader,
		[]any{"test_pack", "", "TP-1", "ITR-A", 20},
		[]any{"test_pack", "", "TP-1", "ITR-B", 70},
		[]any{"tag", 0, "", "", "", "T-A"},
		[]any{"tag", 1, "", "", "", "T-B"},
	)
	_, err := svc.ImportWorkbook(ctx, editor(), "in.xlsx", buf)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = svc.ExportTestPacks(ctx, viewer(), core.TestPackFilter{}, &out)
	require.NoError(t, err)

	res, err := svc.ImportWorkbook(ctx, editor(), "export.xlsx", &out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 2, res.TagsCreated)

	packs := store.AllTestPacks()
	require.Len(t, packs, 4)
	itrByPack := make(map[string]string, len(packs))
	for _, p := range packs {
		itrByPack[p.ID] = p.ITRName
	}

	tagsByITR := map[string][]string{}
	for _, tg := range store.AllTags() {
		itr := itrByPack[tg.TestPackID]
		tagsByITR[itr] = append(tagsByITR[itr], tg.TagName)
	}
	assert.Equal(t, []string{"T-A", "T-A"}, tagsByITR["ITR-A"])
	assert.Equal(t, []string{"T-B", "T-B"}, tagsByITR["ITR-B"])
}

func TestImportWorkbook_FlatLayout(t *testing.T) {
	svc, _, _ := newTestService(t)

	buf := workbook(t,
		[]any{"Test Pack", "ITR", "Progress", "Tag Name", "Estado", "Fecha Liberacion", "Comments"},
		[]any{"TP-1", "ITR-A", 10, "T-1", "pendiente", "", "x"},
		[]any{"TP-1", "ITR-A", 10, "T-2", "liberado", "2024-01-15", ""},
		[]any{"TP-2", "", 0, "T-3", "", "", ""},
	)
	res, err := svc.ImportWorkbook(context.Background(), editor(), "flat.xlsx", buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 3, res.TagsCreated)
}

func TestImportWorkbook_Errors(t *testing.T) {
	t.Run("viewer cannot import", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		_, err := svc.ImportWorkbook(context.Background(), viewer(), "x.xlsx", twoPacksFiveTags(t))
		assert.ErrorIs(t, err, core.ErrForbidden)
		assert.Zero(t, store.Calls("InsertTestPacks"))
	})

	t.Run("ended session", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		sess := editor()
		sess.End()
		_, err := svc.ImportWorkbook(context.Background(), sess, "x.xlsx", twoPacksFiveTags(t))
		assert.ErrorIs(t, err, core.ErrSessionEnded)
	})

	t.Run("file too large", func(t *testing.T) {
		svc, _, _ := newTestService(t, core.WithMaxFileSize(64))
		_, err := svc.ImportWorkbook(context.Background(), editor(), "x.xlsx", twoPacksFiveTags(t))
		assert.ErrorIs(t, err, core.ErrFileTooLarge)
	})

	t.Run("not a workbook", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		_, err := svc.ImportWorkbook(context.Background(), editor(), "x.csv", bytes.NewBufferString("a,b\n1,2\n"))
		var perr *core.ParseError
		assert.ErrorAs(t, err, &perr)
		assert.Zero(t, store.Calls("InsertImport"), "parse failures leave no history")
	})

	t.Run("header only", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.ImportWorkbook(context.Background(), editor(), "x.xlsx", workbook(t, linkedHeader))
		var perr *core.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "FILE005", core.MapError(err).Code)
	})

	t.Run("limiter full", func(t *testing.T) {
		limiter := core.NewImportLimiter(1, 10*time.Millisecond)
		require.NoError(t, limiter.Acquire(context.Background()))
		defer limiter.Release()
		svc, _, _ := newTestService(t, core.WithImportLimiter(limiter))
		_, err := svc.ImportWorkbook(context.Background(), editor(), "x.xlsx", twoPacksFiveTags(t))
		assert.ErrorIs(t, err, core.ErrTooManyImports)
	})
}

func TestImportWorkbook_EventsAndActivity(t *testing.T) {
	var events []core.ImportEvent
	svc, store, _ := newTestService(t, core.WithImportObserver(func(ev core.ImportEvent) {
		events = append(events, ev)
	}))

	res, err := svc.ImportWorkbook(context.Background(), editor(), "site.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, core.PhaseTestPacks, events[0].Phase)
	assert.Equal(t, 2, events[0].Rows)
	assert.Equal(t, core.PhaseTags, events[1].Phase)
	assert.Equal(t, 5, events[1].Rows)

	activity := store.Activity()
	require.Len(t, activity, 2, "one entry per batch")
	for _, e := range activity {
		assert.Equal(t, core.ActionInsert, e.Action)
		assert.Equal(t, res.ImportID, e.RecordID)
		assert.Equal(t, "user-editor", e.UserID)
	}
}

func TestImportWorkbook_ActivityFailureIsSwallowed(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.FailOn("InsertActivity", errors.New("activity table offline"))

	res, err := svc.ImportWorkbook(context.Background(), editor(), "site.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)
	assert.Equal(t, 5, res.TagsCreated)
}

func TestImportWorkbook_CancelledContextStillRecordsHistory(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	link := core.LinkRows(core.ValidateRows([]core.RawRow{
		{Line: 2, Kind: core.KindTestPack, Cells: map[string]string{core.ColTestPack: "TP-1"}},
	}))
	res, err := svc.WriteGroups(ctx, editor(), "cancelled.xlsx", link)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.ImportFailed, res.Status)

	rec, err := store.GetImport(context.Background(), res.ImportID)
	require.NoError(t, err)
	assert.Equal(t, core.ImportFailed, rec.Status)
}

func TestPreviewImport(t *testing.T) {
	svc, store, _ := newTestService(t)

	p, err := svc.PreviewImport(context.Background(), viewer(), twoPacksFiveTags(t))
	require.NoError(t, err)
	assert.Equal(t, 2, p.TestPacks)
	assert.Equal(t, 5, p.Tags)
	require.Len(t, p.Groups, 2)
	assert.Equal(t, 3, p.Groups[0].Tags)
	assert.Equal(t, 1, p.Groups[0].Released)
	assert.Equal(t, 40, p.Groups[0].Progress)
	assert.Zero(t, store.Calls("InsertTestPacks"))
}
