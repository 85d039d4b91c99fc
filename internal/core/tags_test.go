package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/completions/internal/core"
)

func seedPack(t *testing.T, svc *core.Service) core.TestPack {
	t.Helper()
	tp, err := svc.CreateTestPack(context.Background(), editor(), core.TestPackInput{Name: "TP-1", Progress: 120})
	require.NoError(t, err)
	return tp
}

func TestCreateTestPack_Normalizes(t *testing.T) {
	svc, _, _ := newTestService(t)
	tp := seedPack(t, svc)

	assert.Equal(t, 100, tp.Progress)
	assert.Equal(t, core.EstadoPendiente, tp.Estado)
	assert.Empty(t, tp.ImportID)
}

func TestCreateTag_ReleaseDateRule(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tp := seedPack(t, svc)

	t.Run("pendiente drops date", func(t *testing.T) {
		tag, err := svc.CreateTag(ctx, editor(), core.TagInput{
			TagName: "T-1", TestPackID: tp.ID, FechaLiberacion: core.DatePtr(testStart),
		})
		require.NoError(t, err)
		assert.Equal(t, core.EstadoPendiente, tag.Estado)
		assert.Nil(t, tag.FechaLiberacion)
	})

	t.Run("liberado needs date", func(t *testing.T) {
		_, err := svc.CreateTag(ctx, editor(), core.TagInput{
			TagName: "T-2", TestPackID: tp.ID, Estado: core.EstadoLiberado,
		})
		assert.ErrorIs(t, err, core.ErrReleaseDateRequired)
		assert.True(t, core.IsTransitionError(err))
	})

	t.Run("liberado with date", func(t *testing.T) {
		tag, err := svc.CreateTag(ctx, editor(), core.TagInput{
			TagName: "T-3", TestPackID: tp.ID, Estado: core.EstadoLiberado, FechaLiberacion: core.DatePtr(testStart),
		})
		require.NoError(t, err)
		assert.True(t, tag.Released())
	})

	t.Run("unknown test pack", func(t *testing.T) {
		_, err := svc.CreateTag(ctx, editor(), core.TagInput{TagName: "T-4", TestPackID: "missing"})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("bad estado", func(t *testing.T) {
		_, err := svc.CreateTag(ctx, editor(), core.TagInput{TagName: "T-5", TestPackID: tp.ID, Estado: "done"})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "estado", verr.Field)
	})
}

func TestReleaseTag(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	tp := seedPack(t, svc)
	tag, err := svc.CreateTag(ctx, editor(), core.TagInput{TagName: "T-1", TestPackID: tp.ID})
	require.NoError(t, err)

	_, err = svc.ReleaseTag(ctx, editor(), tag.ID, nil)
	require.ErrorIs(t, err, core.ErrReleaseDateRequired)
	_, err = svc.ReleaseTag(ctx, editor(), tag.ID, &core.Date{})
	require.ErrorIs(t, err, core.ErrReleaseDateRequired)

	stored, err := store.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EstadoPendiente, stored.Estado, "rejected release leaves the tag alone")

	when := core.DatePtr(time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC))
	released, err := svc.ReleaseTag(ctx, editor(), tag.ID, when)
	require.NoError(t, err)
	assert.Equal(t, core.EstadoLiberado, released.Estado)
	assert.Equal(t, "2024-05-20", released.FechaLiberacion.String())

	_, err = svc.ReleaseTag(ctx, editor(), tag.ID, when)
	assert.ErrorIs(t, err, core.ErrTagReleased)

	_, err = svc.ReleaseTag(ctx, viewer(), tag.ID, when)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestUpdateTag_ReleasedIsTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tp := seedPack(t, svc)
	tag, err := svc.CreateTag(ctx, editor(), core.TagInput{
		TagName: "T-1", TestPackID: tp.ID, Estado: core.EstadoLiberado, FechaLiberacion: core.DatePtr(testStart),
	})
	require.NoError(t, err)

	_, err = svc.UpdateTag(ctx, editor(), tag.ID, core.TagInput{TagName: "T-1", TestPackID: tp.ID, Estado: core.EstadoPendiente})
	assert.ErrorIs(t, err, core.ErrTagReleased)

	renamed, err := svc.UpdateTag(ctx, editor(), tag.ID, core.TagInput{TagName: "T-1b", TestPackID: tp.ID, Estado: core.EstadoLiberado})
	require.NoError(t, err)
	assert.Equal(t, "T-1b", renamed.TagName)
	require.NotNil(t, renamed.FechaLiberacion, "stored release date is kept")
	assert.Equal(t, core.NewDate(testStart), *renamed.FechaLiberacion)
}

func TestDeleteTestPack_CascadesTags(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	tp := seedPack(t, svc)
	_, err := svc.CreateTag(ctx, editor(), core.TagInput{TagName: "T-1", TestPackID: tp.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTestPack(ctx, editor(), tp.ID))
	assert.Empty(t, store.AllTags())

	err = svc.DeleteTestPack(ctx, editor(), tp.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListTags_Filter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tp := seedPack(t, svc)
	for _, name := range []string{"PUMP-1", "PUMP-2", "VALVE-1"} {
		_, err := svc.CreateTag(ctx, editor(), core.TagInput{TagName: name, TestPackID: tp.ID})
		require.NoError(t, err)
	}

	tags, err := svc.ListTags(ctx, viewer(), core.TagFilter{Search: "pump"})
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	tags, err = svc.ListTags(ctx, viewer(), core.TagFilter{TestPackIDs: []string{"other"}})
	require.NoError(t, err)
	assert.Empty(t, tags)
}
