package core_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/completions/internal/core"
)

func TestSessionChecks(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListProjects(ctx, nil)
	assert.ErrorIs(t, err, core.ErrNoSession)

	expiring := core.NewSession("u1", "", core.RoleEditor, testStart.Add(time.Hour))
	_, err = svc.ListProjects(ctx, expiring)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = svc.ListProjects(ctx, expiring)
	assert.ErrorIs(t, err, core.ErrSessionEnded)

	sess := editor()
	sess.End()
	_, err = svc.ListProjects(ctx, sess)
	assert.ErrorIs(t, err, core.ErrSessionEnded)

	_, err = svc.CreateProject(ctx, viewer(), core.ProjectInput{Name: "P"})
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.ListUsers(ctx, editor())
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestNewSession_UnknownRoleIsViewer(t *testing.T) {
	sess := core.NewSession("u", "", core.Role("owner"), time.Time{})
	assert.Equal(t, core.RoleViewer, sess.Role)
	assert.False(t, sess.CanWrite())
}

func TestProjectHierarchy(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, editor(), core.ProjectInput{Name: "  Plant A ", Progress: -5})
	require.NoError(t, err)
	assert.Equal(t, "Plant A", p.Name)
	assert.Equal(t, 0, p.Progress)
	assert.Equal(t, core.ProjectInProgress, p.Status)

	sys, err := svc.CreateSystem(ctx, editor(), core.SystemInput{Name: "Cooling", ProjectID: p.ID, CompletionRate: 150})
	require.NoError(t, err)
	assert.Equal(t, 100, sys.CompletionRate)

	sub, err := svc.CreateSubsystem(ctx, editor(), core.SubsystemInput{Name: "Pumps", SystemID: sys.ID})
	require.NoError(t, err)

	itr, err := svc.CreateITR(ctx, editor(), core.ITRInput{Name: "ITR-1", SubsystemID: sub.ID, Quantity: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, itr.Quantity)
	assert.Equal(t, core.ITRPending, itr.Status)

	_, err = svc.CreateSystem(ctx, editor(), core.SystemInput{Name: "Orphan", ProjectID: "nope"})
	require.Error(t, err)
	assert.Equal(t, "DB003", core.MapError(err).Code)

	require.NoError(t, svc.DeleteProject(ctx, editor(), p.ID))
	systems, err := svc.ListSystems(ctx, viewer(), "")
	require.NoError(t, err)
	assert.Empty(t, systems)
	itrs, err := store.ListITRs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, itrs, "ITRs cascade with their project")
}

func TestProject_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, editor(), core.ProjectInput{Name: " "})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	assert.Equal(t, "VAL003", core.MapError(err).Code)

	_, err = svc.CreateProject(ctx, editor(), core.ProjectInput{Name: "P", Status: "paused"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	_, err = svc.CreateProject(ctx, editor(), core.ProjectInput{
		Name:      "P",
		StartDate: core.DatePtr(testStart),
		EndDate:   core.DatePtr(testStart.AddDate(0, 0, -1)),
	})
	assert.Equal(t, "VAL009", core.MapError(err).Code)
}

func TestActivity_OnePerMutation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := core.ContextWithIPAddress(context.Background(), "10.0.0.7")

	p, err := svc.CreateProject(ctx, editor(), core.ProjectInput{Name: "P"})
	require.NoError(t, err)
	_, err = svc.UpdateProject(ctx, editor(), p.ID, core.ProjectInput{Name: "P2"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteProject(ctx, editor(), p.ID))

	// failed mutations log nothing
	_, err = svc.UpdateProject(ctx, editor(), p.ID, core.ProjectInput{Name: "P3"})
	require.Error(t, err)

	entries := store.Activity()
	require.Len(t, entries, 3)
	assert.Equal(t, []core.ActivityAction{core.ActionInsert, core.ActionUpdate, core.ActionDelete},
		[]core.ActivityAction{entries[0].Action, entries[1].Action, entries[2].Action})
	for _, e := range entries {
		assert.Equal(t, core.TableProjects, e.TableName)
		assert.Equal(t, p.ID, e.RecordID)
		assert.Equal(t, "10.0.0.7", e.Details["ip"])
	}

	listed, err := svc.ListActivity(ctx, viewer(), core.ActivityFilter{Action: core.ActionDelete})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, core.ActionDelete, listed[0].Action)
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []core.ActivityLogEntry
}

func (p *recordingPublisher) Publish(e core.ActivityLogEntry) {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
}

func TestActivity_Published(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestService(t, core.WithPublisher(pub))

	_, err := svc.CreateProject(context.Background(), editor(), core.ProjectInput{Name: "P"})
	require.NoError(t, err)
	require.Len(t, pub.entries, 1)
	assert.Equal(t, core.TableProjects, pub.entries[0].TableName)
}

func TestUsers(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	store.PutUser(core.User{ID: "user-admin", Email: "admin@example.com", Role: core.RoleAdmin})

	u, err := svc.CreateUser(ctx, admin(), core.UserInput{Email: " New@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, core.RoleViewer, u.Role)

	_, err = svc.CreateUser(ctx, admin(), core.UserInput{Email: "not-an-email"})
	assert.Equal(t, "VAL010", core.MapError(err).Code)

	_, err = svc.UpdateUser(ctx, admin(), "user-admin", core.UserInput{Email: "admin@example.com", Role: core.RoleEditor})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)

	err = svc.DeleteUser(ctx, admin(), "user-admin")
	assert.ErrorAs(t, err, &verr)

	me, err := svc.CurrentUser(ctx, admin())
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, me.Role)

	require.NoError(t, svc.DeleteUser(ctx, admin(), u.ID))
	users, err := svc.ListUsers(ctx, admin())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSignIn(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	store.PutUser(core.User{ID: "u-1", Email: "ed@example.com", Role: core.RoleEditor})

	sess, err := svc.SignIn(ctx, " ED@example.com", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Equal(t, core.RoleEditor, sess.Role)

	_, err = svc.SignIn(ctx, "stranger@example.com", time.Time{})
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.SignIn(ctx, "ed@example.com", clock.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, core.ErrSessionEnded)
}

func TestDashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, editor(), core.ProjectInput{Name: "A", Status: core.ProjectDelayed, Progress: 30})
	require.NoError(t, err)
	_, err = svc.ImportWorkbook(ctx, editor(), "site.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, viewer())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Projects)
	assert.Equal(t, 2, d.TestPacks)
	assert.Equal(t, 5, d.Tags)
	assert.Equal(t, 40, d.TagsReleasedPct)
	assert.Contains(t, d.ProjectStatus, core.StatusCount{Status: "delayed", Count: 1})
	assert.Contains(t, d.TagEstado, core.StatusCount{Status: "liberado", Count: 2})
	assert.NotEmpty(t, d.RecentActivity)
}

func TestImportHistory(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.ImportWorkbook(ctx, editor(), "one.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := svc.ImportWorkbook(ctx, editor(), "two.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)

	history, err := svc.ListImports(ctx, viewer(), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ImportID, history[0].ID, "newest first")
	assert.Equal(t, first.ImportID, history[1].ID)

	_, err = svc.RollbackImport(ctx, viewer(), first.ImportID)
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = svc.RollbackImport(ctx, editor(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRollbackImport_HistoryUpdateFailureIsWarning(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ImportWorkbook(ctx, editor(), "one.xlsx", twoPacksFiveTags(t))
	require.NoError(t, err)
	store.FailOn("MarkImportRolledBack", errors.New("connection reset"))

	rb, err := svc.RollbackImport(ctx, editor(), res.ImportID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rb.TestPacksDeleted)
	assert.NotEmpty(t, rb.Warning)
}

func TestReports(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	rs, err := svc.GetReportSettings(ctx, viewer())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultReportSettings, rs)

	_, err = svc.SaveReportSettings(ctx, editor(), rs)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.SaveReportSettings(ctx, admin(), core.ReportSettings{Enabled: true, Frequency: "monthly"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "frequency", verr.Field)

	saved, err := svc.SaveReportSettings(ctx, admin(), core.ReportSettings{Enabled: true, Frequency: core.ReportDaily, Hour: 7})
	require.NoError(t, err)
	assert.True(t, saved.Enabled)

	_, err = svc.AddRecipient(ctx, admin(), core.RecipientInput{Email: "pm@example.com", Active: true})
	require.NoError(t, err)
	_, err = svc.AddRecipient(ctx, admin(), core.RecipientInput{Email: "old@example.com", Active: false})
	require.NoError(t, err)

	audience, err := svc.ReportAudience(ctx, core.SystemSession("test"))
	require.NoError(t, err)
	require.Len(t, audience, 1)
	assert.Equal(t, "pm@example.com", audience[0].Email)

	data, err := svc.BuildReport(ctx, core.SystemSession("test"))
	require.NoError(t, err)
	assert.Equal(t, testStart, data.GeneratedAt)

	require.NoError(t, svc.MarkReportSent(ctx, core.SystemSession("test"), 1))
	rs, err = store.GetReportSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, rs.LastSentAt)
	assert.Equal(t, testStart, *rs.LastSentAt)
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func (m *memObjects) Put(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if m.failPut != nil {
		return m.failPut
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func (m *memObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://objects.test/" + key + "?ttl=" + ttl.String(), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without storage", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.UploadAttachment(ctx, editor(), core.TableTags, "t1", "a.pdf", "", 3, strings.NewReader("abc"))
		assert.ErrorIs(t, err, core.ErrAttachmentsDisabled)
	})

	t.Run("upload, link and delete", func(t *testing.T) {
		objects := &memObjects{}
		svc, _, _ := newTestService(t, core.WithObjectStorage(objects))

		a, err := svc.UploadAttachment(ctx, editor(), core.TableTags, "t1", `C:\scans\cert.pdf`, "application/pdf", 4, bytes.NewReader([]byte("%PDF")))
		require.NoError(t, err)
		assert.Equal(t, "cert.pdf", a.FileName)
		assert.True(t, strings.HasPrefix(a.ObjectKey, "tags/t1/"))
		assert.Contains(t, objects.objects, a.ObjectKey)

		list, err := svc.ListAttachments(ctx, viewer(), core.TableTags, "t1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		url, err := svc.AttachmentURL(ctx, viewer(), a.ID)
		require.NoError(t, err)
		assert.Contains(t, url, a.ObjectKey)

		require.NoError(t, svc.DeleteAttachment(ctx, editor(), a.ID))
		assert.Empty(t, objects.objects)
	})

	t.Run("rejects unknown table", func(t *testing.T) {
		svc, _, _ := newTestService(t, core.WithObjectStorage(&memObjects{}))
		_, err := svc.UploadAttachment(ctx, editor(), "users", "u1", "a.txt", "", 1, strings.NewReader("x"))
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("db failure removes object", func(t *testing.T) {
		objects := &memObjects{}
		svc, store, _ := newTestService(t, core.WithObjectStorage(objects))
		store.FailOn("InsertAttachment", errors.New("connection refused"))

		_, err := svc.UploadAttachment(ctx, editor(), core.TableTags, "t1", "a.txt", "", 1, strings.NewReader("x"))
		require.Error(t, err)
		assert.Empty(t, objects.objects)
	})
}
