package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/completions/internal/config"
	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/core/coretest"
	"github.com/JonMunkholm/completions/internal/mail"
	"github.com/JonMunkholm/completions/internal/realtime"
	"github.com/JonMunkholm/completions/internal/reports"
	mw "github.com/JonMunkholm/completions/internal/web/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testStart = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	svc    *core.Service
	store  *coretest.MemStore
	clock  *clockwork.FakeClock
	hub    *realtime.Hub
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeSender struct {
	calls int
	res   reports.Result
	err   error
}

func (f *fakeSender) Send(ctx context.Context, sess *core.Session) (reports.Result, error) {
	f.calls++
	return f.res, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{EnableCSP: true},
		Auth:     config.AuthConfig{JWTSecret: testSecret, Leeway: 30 * time.Second},
		Activity: config.ActivityConfig{Heartbeat: 25 * time.Second},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, deps Deps) *testEnv {
	t.Helper()
	store := coretest.NewMemStore()
	clock := clockwork.NewFakeClockAt(testStart)
	store.SetNow(clock.Now)
	for _, role := range []core.Role{core.RoleAdmin, core.RoleEditor, core.RoleViewer} {
		store.PutUser(core.User{
			ID:    "user-" + string(role),
			Email: string(role) + "@example.com",
			Role:  role,
		})
	}
	hub := realtime.NewHub()
	svc := core.NewService(store, core.WithClock(clock), core.WithPublisher(hub))

	deps.Service = svc
	deps.Clock = clock
	if deps.Feed == nil {
		deps.Feed = hub
	}
	return &testEnv{
		server: NewServer(cfg, deps),
		svc:    svc,
		store:  store,
		clock:  clock,
		hub:    hub,
	}
}

// token signs a session token for role's seeded account. Expiry is
// checked by the JWT parser against the wall clock.
func token(t *testing.T, role core.Role) string {
	t.Helper()
	claims := mw.Claims{
		Email: string(role) + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-" + string(role),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, role core.Role, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, role core.Role, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, role, method, path, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// upload builds a multipart body with the workbook as its "file" part.
func upload(t *testing.T, name string, rows ...[]any) (*bytes.Buffer, string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	part, err := mpw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = f.WriteTo(part)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())
	return &body, mpw.FormDataContentType()
}

func siteWorkbook(t *testing.T) (*bytes.Buffer, string) {
	return upload(t, "site.xlsx",
		[]any{"tipo", "test_pack_index", "test_pack", "itr", "progress", "tag_name", "estado", "fecha_liberacion"},
		[]any{"test_pack", "", "TP-1", "ITR-A", 40},
		[]any{"test_pack", "", "TP-2", "ITR-B", 80},
		[]any{"tag", 0, "", "", "", "T-1", "pendiente"},
		[]any{"tag", 0, "", "", "", "T-2", "liberado", "2024-05-01"},
		[]any{"tag", 1, "", "", "", "T-3", "pendiente"},
	)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), Deps{DB: pingFunc(func(context.Context) error { return nil })})
		rec := env.do(t, "", http.MethodGet, "/api/health", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[healthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Database)
		assert.Equal(t, testStart, resp.Time)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), Deps{DB: pingFunc(func(context.Context) error {
			return errors.New("dial tcp: connection refused")
		})})
		rec := env.do(t, "", http.MethodGet, "/api/health", nil, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[healthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "unreachable", resp.Database)
	})
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	rec := env.do(t, "", http.MethodGet, "/api/projects", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH001", decode[ErrorResponse](t, rec).Code)
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	rec := env.do(t, core.RoleViewer, http.MethodGet, "/api/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[core.User](t, rec)
	assert.Equal(t, "user-viewer", u.ID)
	assert.Equal(t, core.RoleViewer, u.Role)
}

func TestProjects_CRUD(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	rec := env.doJSON(t, core.RoleEditor, http.MethodPost, "/api/projects", core.ProjectInput{Name: "Refinery", Location: "Tula"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[core.Project](t, rec)
	require.NotEmpty(t, created.ID)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/projects", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]core.Project](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Refinery", list[0].Name)

	rec = env.doJSON(t, core.RoleEditor, http.MethodPut, "/api/projects/"+created.ID, core.ProjectInput{Name: "Refinery II"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Refinery II", decode[core.Project](t, rec).Name)

	rec = env.do(t, core.RoleEditor, http.MethodDelete, "/api/projects/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/projects/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjects_ViewerCannotWrite(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	rec := env.doJSON(t, core.RoleViewer, http.MethodPost, "/api/projects", core.ProjectInput{Name: "Refinery"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH003", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/projects", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.Project](t, rec))
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	t.Run("validation", func(t *testing.T) {
		rec := env.doJSON(t, core.RoleEditor, http.MethodPost, "/api/projects", core.ProjectInput{})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Message, "name")
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/projects",
			strings.NewReader(`{"name":"Refinery","owner":"someone"}`), "application/json")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/projects",
			strings.NewReader(`name=Refinery`), "application/x-www-form-urlencoded")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("htmx gets an alert fragment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"name":"Refinery"}`))
		req.Header.Set("Authorization", "Bearer "+token(t, core.RoleViewer))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), `role="alert"`)
		assert.Contains(t, rec.Body.String(), "AUTH003")
	})
}

func TestImport(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body, ct := siteWorkbook(t)
	rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/import", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[core.ImportResult](t, rec)
	assert.Equal(t, core.ImportComplete, res.Status)
	assert.Equal(t, "site.xlsx", res.FileName)
	assert.Equal(t, 2, res.TestPacksCreated)
	assert.Equal(t, 3, res.TagsCreated)
	assert.Len(t, env.store.AllTags(), 3)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/imports/"+res.ImportID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/test-packs?import_id="+res.ImportID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.TestPack](t, rec), 2)
}

func TestImport_HTMXSummary(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body, ct := siteWorkbook(t)
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Authorization", "Bearer "+token(t, core.RoleEditor))
	req.Header.Set("Content-Type", ct)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "site.xlsx")
}

func TestImport_Errors(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	t.Run("no file", func(t *testing.T) {
		var body bytes.Buffer
		mpw := multipart.NewWriter(&body)
		require.NoError(t, mpw.WriteField("note", "nothing attached"))
		require.NoError(t, mpw.Close())

		rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/import", &body, mpw.FormDataContentType())
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "FILE004", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("viewer", func(t *testing.T) {
		body, ct := siteWorkbook(t)
		rec := env.do(t, core.RoleViewer, http.MethodPost, "/api/import", body, ct)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, env.store.AllTestPacks())
	})

	t.Run("no header row", func(t *testing.T) {
		body, ct := upload(t, "blank.xlsx")
		rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/import", body, ct)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPreview_WritesNothing(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body, ct := siteWorkbook(t)
	rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/import/preview", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decode[core.ImportPreview](t, rec)
	assert.Equal(t, 2, p.TestPacks)
	assert.Equal(t, 3, p.Tags)
	assert.Empty(t, env.store.AllTestPacks())
	assert.Empty(t, env.store.AllTags())
}

func TestExportAndTemplate(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body, ct := siteWorkbook(t)
	require.Equal(t, http.StatusCreated, env.do(t, core.RoleEditor, http.MethodPost, "/api/import", body, ct).Code)

	for _, path := range []string{"/api/export", "/api/template"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, core.RoleViewer, http.MethodGet, path, nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

			f, err := excelize.OpenReader(rec.Body)
			require.NoError(t, err)
			defer f.Close()
			rows, err := f.GetRows(f.GetSheetName(0))
			require.NoError(t, err)
			require.NotEmpty(t, rows)
		})
	}

	rec := env.do(t, "", http.MethodGet, "/api/export", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReleaseTag(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	rec := env.doJSON(t, core.RoleEditor, http.MethodPost, "/api/test-packs", core.TestPackInput{Name: "TP-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pack := decode[core.TestPack](t, rec)

	rec = env.doJSON(t, core.RoleEditor, http.MethodPost, "/api/tags", core.TagInput{TagName: "T-1", TestPackID: pack.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tag := decode[core.Tag](t, rec)
	assert.Equal(t, core.EstadoPendiente, tag.Estado)

	path := "/api/tags/" + tag.ID + "/release"

	rec = env.do(t, core.RoleEditor, http.MethodPost, path, strings.NewReader(`{}`), "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VAL007", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, core.RoleEditor, http.MethodPost, path, strings.NewReader(`{"fecha_liberacion":"2024-06-01"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	released := decode[core.Tag](t, rec)
	assert.Equal(t, core.EstadoLiberado, released.Estado)
	require.NotNil(t, released.FechaLiberacion)
	assert.Equal(t, "2024-06-01", released.FechaLiberacion.String())

	rec = env.do(t, core.RoleEditor, http.MethodPost, path, strings.NewReader(`{"fecha_liberacion":"2024-06-02"}`), "application/json")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VAL008", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/test-packs/"+pack.ID+"/tags", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Tag](t, rec), 1)
}

func TestRollbackImport(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body, ct := siteWorkbook(t)
	rec := env.do(t, core.RoleEditor, http.MethodPost, "/api/import", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[core.ImportResult](t, rec)

	path := "/api/imports/" + res.ImportID + "/rollback"

	rec = env.do(t, core.RoleViewer, http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, core.RoleEditor, http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rb := decode[core.RollbackResult](t, rec)
	assert.Equal(t, int64(2), rb.TestPacksDeleted)
	assert.Empty(t, env.store.AllTestPacks())
	assert.Empty(t, env.store.AllTags())

	rec = env.do(t, core.RoleEditor, http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IMP001", decode[ErrorResponse](t, rec).Code)
}

func TestActivity_ListAndFilter(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	require.Equal(t, http.StatusCreated,
		env.doJSON(t, core.RoleEditor, http.MethodPost, "/api/projects", core.ProjectInput{Name: "Refinery"}).Code)

	rec := env.do(t, core.RoleViewer, http.MethodGet, "/api/activity?table=projects", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]core.ActivityLogEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, core.ActionInsert, entries[0].Action)

	rec = env.do(t, core.RoleViewer, http.MethodGet, "/api/activity?since=yesterday", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestActivityStream(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/activity/stream?table=projects", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: token(t, core.RoleViewer)})

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Filtered out, then delivered
	_, err = env.svc.CreateTestPack(ctx, core.SystemSession("seed"), core.TestPackInput{Name: "TP-1"})
	require.NoError(t, err)
	project, err := env.svc.CreateProject(ctx, core.SystemSession("seed"), core.ProjectInput{Name: "Refinery"})
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}
	require.Equal(t, "activity", event)

	var entry core.ActivityLogEntry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	assert.Equal(t, core.TableProjects, entry.TableName)
	assert.Equal(t, project.ID, entry.RecordID)
}

func TestActivityStream_NoFeed(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	env.server.feed = nil

	rec := env.do(t, core.RoleViewer, http.MethodGet, "/api/activity/stream", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendReport(t *testing.T) {
	t.Run("mail disabled", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), Deps{})
		rec := env.do(t, core.RoleAdmin, http.MethodPost, "/api/reports/send", nil, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "CFG002", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("sent", func(t *testing.T) {
		sender := &fakeSender{res: reports.Result{Sent: 2}}
		env := newTestEnv(t, testConfig(), Deps{Reports: sender})
		rec := env.do(t, core.RoleAdmin, http.MethodPost, "/api/reports/send", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[reports.Result](t, rec).Sent)
		assert.Equal(t, 1, sender.calls)
	})

	t.Run("no recipients", func(t *testing.T) {
		sender := &fakeSender{err: reports.ErrNoRecipients}
		env := newTestEnv(t, testConfig(), Deps{Reports: sender})
		rec := env.do(t, core.RoleAdmin, http.MethodPost, "/api/reports/send", nil, "")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "RPT001", decode[ErrorResponse](t, rec).Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	env := newTestEnv(t, cfg, Deps{})

	for i := range 2 {
		rec := env.do(t, "", http.MethodGet, "/api/health", nil, "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := env.do(t, "", http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)

	env.clock.Advance(time.Minute + time.Second)
	rec = env.do(t, "", http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rl := newRateLimiter(1, time.Minute, clock)

	assert.True(t, rl.allow("192.0.2.1"))
	assert.False(t, rl.allow("192.0.2.1"))
	assert.True(t, rl.allow("192.0.2.2"))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, rl.retryAfter("192.0.2.1"))

	// idle visitors are swept after two windows
	clock.Advance(3 * time.Minute)
	assert.True(t, rl.allow("192.0.2.3"))
	assert.Len(t, rl.visitors, 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNoSession, http.StatusUnauthorized},
		{core.ErrSessionEnded, http.StatusUnauthorized},
		{fmt.Errorf("delete: %w", core.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("tag x: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyImports, http.StatusTooManyRequests},
		{errRateLimited, http.StatusTooManyRequests},
		{core.ErrAttachmentsDisabled, http.StatusServiceUnavailable},
		{mail.ErrMailDisabled, http.StatusServiceUnavailable},
		{core.ErrTagReleased, http.StatusConflict},
		{core.ErrImportRolledBack, http.StatusConflict},
		{&core.ValidationError{Field: "name", Message: "required field"}, http.StatusUnprocessableEntity},
		{&core.ParseError{Reason: "invalid xlsx"}, http.StatusUnprocessableEntity},
		{core.ErrReleaseDateRequired, http.StatusUnprocessableEntity},
		{fmt.Errorf("release tag t-1: %w", core.ErrTagReleased), http.StatusConflict},
		{fmt.Errorf("release tag t-1: %w", core.ErrReleaseDateRequired), http.StatusUnprocessableEntity},
		{errNoFile, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: EOF", errBadJSON), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New(`duplicate key value violates unique constraint "tags_pkey"`), http.StatusConflict},
		{errors.New("insert or update violates foreign key constraint"), http.StatusUnprocessableEntity},
		{errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable},
		{errors.New("something odd"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type target struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"trailing data", `{"name":"x"}{"name":"y"}`, true},
		{"empty", ``, true},
		{"not json", `name=x`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v target
			err := decodeJSON(httptest.NewRecorder(), req, &v)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errBadJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", v.Name)
		})
	}
}
