// Package coretest provides an in-memory core.Store for tests.
package coretest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/google/uuid"
)

// table keeps rows in insertion order.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) get(id string) (T, error) {
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, core.ErrNotFound
	}
	return v, nil
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
	return true
}

func (t *table[T]) list(keep func(T) bool) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		if v := t.rows[id]; keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func page[T any](rows []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// MemStore is a goroutine-safe in-memory core.Store. Foreign keys and
// cascades follow the PostgreSQL schema.
type MemStore struct {
	mu    sync.Mutex
	now   func() time.Time
	fails map[string]error
	calls map[string]int

	projects    *table[core.Project]
	systems     *table[core.System]
	subsystems  *table[core.Subsystem]
	itrs        *table[core.ITR]
	packs       *table[core.TestPack]
	tags        *table[core.Tag]
	activity    []core.ActivityLogEntry
	imports     *table[core.ImportRecord]
	users       *table[core.User]
	recipients  *table[core.ReportRecipient]
	attachments *table[core.Attachment]
	report      *core.ReportSettings
}

var _ core.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		now:         time.Now,
		fails:       make(map[string]error),
		calls:       make(map[string]int),
		projects:    newTable[core.Project](),
		systems:     newTable[core.System](),
		subsystems:  newTable[core.Subsystem](),
		itrs:        newTable[core.ITR](),
		packs:       newTable[core.TestPack](),
		tags:        newTable[core.Tag](),
		imports:     newTable[core.ImportRecord](),
		users:       newTable[core.User](),
		recipients:  newTable[core.ReportRecipient](),
		attachments: newTable[core.Attachment](),
	}
}

// SetNow replaces the timestamp source for created_at values.
func (m *MemStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// FailOn makes every later call of method return err. A nil err clears it.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, method)
		return
	}
	m.fails[method] = err
}

// Calls returns how many times method was called.
func (m *MemStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter locks the store and records the call. Callers must unlock.
func (m *MemStore) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.fails[method]
}

// AllTestPacks and AllTags return every stored row, for assertions.
func (m *MemStore) AllTestPacks() []core.TestPack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packs.list(nil)
}

func (m *MemStore) AllTags() []core.Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags.list(nil)
}

// Activity returns the activity log in append order.
func (m *MemStore) Activity() []core.ActivityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.activity)
}

// Projects

func (m *MemStore) ListProjects(ctx context.Context) ([]core.Project, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListProjects"); err != nil {
		return nil, err
	}
	out := m.projects.list(nil)
	slices.Reverse(out)
	return out, nil
}

func (m *MemStore) GetProject(ctx context.Context, id string) (core.Project, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetProject"); err != nil {
		return core.Project{}, err
	}
	return m.projects.get(id)
}

func (m *MemStore) InsertProject(ctx context.Context, in core.ProjectInput) (core.Project, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertProject"); err != nil {
		return core.Project{}, err
	}
	p := projectFrom(uuid.NewString(), in, m.now())
	m.projects.put(p.ID, p)
	return p, nil
}

func (m *MemStore) UpdateProject(ctx context.Context, id string, in core.ProjectInput) (core.Project, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateProject"); err != nil {
		return core.Project{}, err
	}
	cur, err := m.projects.get(id)
	if err != nil {
		return core.Project{}, err
	}
	p := projectFrom(id, in, cur.CreatedAt)
	m.projects.put(id, p)
	return p, nil
}

func (m *MemStore) DeleteProject(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteProject"); err != nil {
		return err
	}
	if !m.projects.remove(id) {
		return core.ErrNotFound
	}
	for _, sys := range m.systems.list(func(s core.System) bool { return s.ProjectID == id }) {
		m.cascadeSystem(sys.ID)
	}
	return nil
}

func projectFrom(id string, in core.ProjectInput, created time.Time) core.Project {
	return core.Project{
		ID: id, Name: in.Name, Location: in.Location, Status: in.Status,
		Progress: in.Progress, StartDate: in.StartDate, EndDate: in.EndDate, CreatedAt: created,
	}
}

// Hierarchy

func (m *MemStore) cascadeSystem(id string) {
	m.systems.remove(id)
	for _, sub := range m.subsystems.list(func(s core.Subsystem) bool { return s.SystemID == id }) {
		m.cascadeSubsystem(sub.ID)
	}
}

func (m *MemStore) cascadeSubsystem(id string) {
	m.subsystems.remove(id)
	for _, itr := range m.itrs.list(func(i core.ITR) bool { return i.SubsystemID == id }) {
		m.itrs.remove(itr.ID)
	}
	for _, p := range m.packs.list(func(p core.TestPack) bool { return p.SubsystemID == id }) {
		p.SubsystemID = ""
		m.packs.put(p.ID, p)
	}
}

func (m *MemStore) ListSystems(ctx context.Context, projectID string) ([]core.System, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListSystems"); err != nil {
		return nil, err
	}
	return m.systems.list(func(s core.System) bool { return projectID == "" || s.ProjectID == projectID }), nil
}

func (m *MemStore) GetSystem(ctx context.Context, id string) (core.System, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetSystem"); err != nil {
		return core.System{}, err
	}
	return m.systems.get(id)
}

func (m *MemStore) InsertSystem(ctx context.Context, in core.SystemInput) (core.System, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertSystem"); err != nil {
		return core.System{}, err
	}
	if _, err := m.projects.get(in.ProjectID); err != nil {
		return core.System{}, fkError("systems", "project_id")
	}
	s := core.System{
		ID: uuid.NewString(), Name: in.Name, ProjectID: in.ProjectID, CompletionRate: in.CompletionRate,
		StartDate: in.StartDate, EndDate: in.EndDate, CreatedAt: m.now(),
	}
	m.systems.put(s.ID, s)
	return s, nil
}

func (m *MemStore) UpdateSystem(ctx context.Context, id string, in core.SystemInput) (core.System, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateSystem"); err != nil {
		return core.System{}, err
	}
	cur, err := m.systems.get(id)
	if err != nil {
		return core.System{}, err
	}
	cur.Name, cur.ProjectID, cur.CompletionRate = in.Name, in.ProjectID, in.CompletionRate
	cur.StartDate, cur.EndDate = in.StartDate, in.EndDate
	m.systems.put(id, cur)
	return cur, nil
}

func (m *MemStore) DeleteSystem(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteSystem"); err != nil {
		return err
	}
	if _, err := m.systems.get(id); err != nil {
		return err
	}
	m.cascadeSystem(id)
	return nil
}

func (m *MemStore) ListSubsystems(ctx context.Context, systemID string) ([]core.Subsystem, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListSubsystems"); err != nil {
		return nil, err
	}
	return m.subsystems.list(func(s core.Subsystem) bool { return systemID == "" || s.SystemID == systemID }), nil
}

func (m *MemStore) GetSubsystem(ctx context.Context, id string) (core.Subsystem, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetSubsystem"); err != nil {
		return core.Subsystem{}, err
	}
	return m.subsystems.get(id)
}

func (m *MemStore) InsertSubsystem(ctx context.Context, in core.SubsystemInput) (core.Subsystem, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertSubsystem"); err != nil {
		return core.Subsystem{}, err
	}
	if _, err := m.systems.get(in.SystemID); err != nil {
		return core.Subsystem{}, fkError("subsystems", "system_id")
	}
	s := core.Subsystem{
		ID: uuid.NewString(), Name: in.Name, SystemID: in.SystemID, CompletionRate: in.CompletionRate,
		StartDate: in.StartDate, EndDate: in.EndDate, CreatedAt: m.now(),
	}
	m.subsystems.put(s.ID, s)
	return s, nil
}

func (m *MemStore) UpdateSubsystem(ctx context.Context, id string, in core.SubsystemInput) (core.Subsystem, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateSubsystem"); err != nil {
		return core.Subsystem{}, err
	}
	cur, err := m.subsystems.get(id)
	if err != nil {
		return core.Subsystem{}, err
	}
	cur.Name, cur.SystemID, cur.CompletionRate = in.Name, in.SystemID, in.CompletionRate
	cur.StartDate, cur.EndDate = in.StartDate, in.EndDate
	m.subsystems.put(id, cur)
	return cur, nil
}

func (m *MemStore) DeleteSubsystem(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteSubsystem"); err != nil {
		return err
	}
	if _, err := m.subsystems.get(id); err != nil {
		return err
	}
	m.cascadeSubsystem(id)
	return nil
}

func (m *MemStore) ListITRs(ctx context.Context, subsystemID string) ([]core.ITR, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListITRs"); err != nil {
		return nil, err
	}
	return m.itrs.list(func(i core.ITR) bool { return subsystemID == "" || i.SubsystemID == subsystemID }), nil
}

func (m *MemStore) GetITR(ctx context.Context, id string) (core.ITR, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetITR"); err != nil {
		return core.ITR{}, err
	}
	return m.itrs.get(id)
}

func (m *MemStore) InsertITR(ctx context.Context, in core.ITRInput) (core.ITR, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertITR"); err != nil {
		return core.ITR{}, err
	}
	if _, err := m.subsystems.get(in.SubsystemID); err != nil {
		return core.ITR{}, fkError("itrs", "subsystem_id")
	}
	itr := itrFrom(uuid.NewString(), in, m.now())
	m.itrs.put(itr.ID, itr)
	return itr, nil
}

func (m *MemStore) UpdateITR(ctx context.Context, id string, in core.ITRInput) (core.ITR, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateITR"); err != nil {
		return core.ITR{}, err
	}
	cur, err := m.itrs.get(id)
	if err != nil {
		return core.ITR{}, err
	}
	itr := itrFrom(id, in, cur.CreatedAt)
	m.itrs.put(id, itr)
	return itr, nil
}

func (m *MemStore) DeleteITR(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteITR"); err != nil {
		return err
	}
	if !m.itrs.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

func itrFrom(id string, in core.ITRInput, created time.Time) core.ITR {
	return core.ITR{
		ID: id, Name: in.Name, SubsystemID: in.SubsystemID, Status: in.Status, Progress: in.Progress,
		Quantity: in.Quantity, AssignedTo: in.AssignedTo, StartDate: in.StartDate, EndDate: in.EndDate,
		CreatedAt: created,
	}
}

// Test packs and tags

func matchTestPack(f core.TestPackFilter) func(core.TestPack) bool {
	search := strings.ToLower(f.Search)
	return func(p core.TestPack) bool {
		if f.Estado != "" && p.Estado != f.Estado {
			return false
		}
		if f.SubsystemID != "" && p.SubsystemID != f.SubsystemID {
			return false
		}
		if f.ImportID != "" && p.ImportID != f.ImportID {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.ITRName), search) {
			return false
		}
		return true
	}
}

func (m *MemStore) ListTestPacks(ctx context.Context, f core.TestPackFilter) ([]core.TestPack, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListTestPacks"); err != nil {
		return nil, err
	}
	return page(m.packs.list(matchTestPack(f)), f.Limit, f.Offset), nil
}

func (m *MemStore) GetTestPack(ctx context.Context, id string) (core.TestPack, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetTestPack"); err != nil {
		return core.TestPack{}, err
	}
	return m.packs.get(id)
}

// InsertTestPacks is all-or-nothing, like a single multi-row INSERT.
func (m *MemStore) InsertTestPacks(ctx context.Context, in []core.TestPackInput) ([]core.TestPack, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertTestPacks"); err != nil {
		return nil, err
	}
	out := make([]core.TestPack, len(in))
	now := m.now()
	for i, p := range in {
		if p.Progress < 0 || p.Progress > 100 {
			return nil, checkError("test_packs", "progress")
		}
		out[i] = core.TestPack{
			ID: uuid.NewString(), Name: p.Name, ITRName: p.ITRName, SubsystemID: p.SubsystemID,
			Progress: p.Progress, Estado: p.Estado, ImportID: p.ImportID, CreatedAt: now,
		}
	}
	for _, p := range out {
		m.packs.put(p.ID, p)
	}
	return out, nil
}

func (m *MemStore) UpdateTestPack(ctx context.Context, id string, in core.TestPackInput) (core.TestPack, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateTestPack"); err != nil {
		return core.TestPack{}, err
	}
	cur, err := m.packs.get(id)
	if err != nil {
		return core.TestPack{}, err
	}
	cur.Name, cur.ITRName, cur.SubsystemID = in.Name, in.ITRName, in.SubsystemID
	cur.Progress, cur.Estado = in.Progress, in.Estado
	m.packs.put(id, cur)
	return cur, nil
}

func (m *MemStore) DeleteTestPack(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteTestPack"); err != nil {
		return err
	}
	if !m.packs.remove(id) {
		return core.ErrNotFound
	}
	m.cascadeTags(id)
	return nil
}

func (m *MemStore) cascadeTags(packID string) {
	for _, t := range m.tags.list(func(t core.Tag) bool { return t.TestPackID == packID }) {
		m.tags.remove(t.ID)
	}
}

func (m *MemStore) DeleteTestPacksByImport(ctx context.Context, importID string) (int64, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteTestPacksByImport"); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range m.packs.list(func(p core.TestPack) bool { return p.ImportID == importID }) {
		m.packs.remove(p.ID)
		m.cascadeTags(p.ID)
		n++
	}
	return n, nil
}

func (m *MemStore) ListTags(ctx context.Context, f core.TagFilter) ([]core.Tag, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListTags"); err != nil {
		return nil, err
	}
	search := strings.ToLower(f.Search)
	rows := m.tags.list(func(t core.Tag) bool {
		if len(f.TestPackIDs) > 0 && !slices.Contains(f.TestPackIDs, t.TestPackID) {
			return false
		}
		if f.Estado != "" && t.Estado != f.Estado {
			return false
		}
		return search == "" || strings.Contains(strings.ToLower(t.TagName), search)
	})
	return page(rows, f.Limit, f.Offset), nil
}

func (m *MemStore) GetTag(ctx context.Context, id string) (core.Tag, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetTag"); err != nil {
		return core.Tag{}, err
	}
	return m.tags.get(id)
}

func (m *MemStore) tagFrom(id string, in core.TagInput, created time.Time) (core.Tag, error) {
	if _, err := m.packs.get(in.TestPackID); err != nil {
		return core.Tag{}, fkError("tags", "test_pack_id")
	}
	if (in.Estado == core.EstadoLiberado) != (in.FechaLiberacion != nil) {
		return core.Tag{}, checkError("tags", "fecha_liberacion")
	}
	return core.Tag{
		ID: id, TagName: in.TagName, TestPackID: in.TestPackID, Estado: in.Estado,
		FechaLiberacion: in.FechaLiberacion, ImportID: in.ImportID, CreatedAt: created,
	}, nil
}

// InsertTags is all-or-nothing, like a single multi-row INSERT.
func (m *MemStore) InsertTags(ctx context.Context, in []core.TagInput) ([]core.Tag, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertTags"); err != nil {
		return nil, err
	}
	out := make([]core.Tag, len(in))
	now := m.now()
	for i, t := range in {
		tag, err := m.tagFrom(uuid.NewString(), t, now)
		if err != nil {
			return nil, err
		}
		out[i] = tag
	}
	for _, t := range out {
		m.tags.put(t.ID, t)
	}
	return out, nil
}

func (m *MemStore) UpdateTag(ctx context.Context, id string, in core.TagInput) (core.Tag, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateTag"); err != nil {
		return core.Tag{}, err
	}
	cur, err := m.tags.get(id)
	if err != nil {
		return core.Tag{}, err
	}
	tag, err := m.tagFrom(id, in, cur.CreatedAt)
	if err != nil {
		return core.Tag{}, err
	}
	m.tags.put(id, tag)
	return tag, nil
}

func (m *MemStore) DeleteTag(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteTag"); err != nil {
		return err
	}
	if !m.tags.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

// Activity

func (m *MemStore) InsertActivity(ctx context.Context, in core.ActivityInput) (core.ActivityLogEntry, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertActivity"); err != nil {
		return core.ActivityLogEntry{}, err
	}
	e := core.ActivityLogEntry{
		ID: uuid.NewString(), TableName: in.TableName, Action: in.Action, UserID: in.UserID,
		RecordID: in.RecordID, Details: in.Details, CreatedAt: m.now(),
	}
	m.activity = append(m.activity, e)
	return e, nil
}

func (m *MemStore) ListActivity(ctx context.Context, f core.ActivityFilter) ([]core.ActivityLogEntry, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListActivity"); err != nil {
		return nil, err
	}
	var out []core.ActivityLogEntry
	for i := len(m.activity) - 1; i >= 0; i-- {
		e := m.activity[i]
		if (f.TableName != "" && e.TableName != f.TableName) ||
			(f.RecordID != "" && e.RecordID != f.RecordID) ||
			(f.Action != "" && e.Action != f.Action) ||
			(!f.Since.IsZero() && e.CreatedAt.Before(f.Since)) {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Limit, f.Offset), nil
}

// Imports

func (m *MemStore) InsertImport(ctx context.Context, rec core.ImportRecord) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertImport"); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.imports.put(rec.ID, rec)
	return nil
}

func (m *MemStore) GetImport(ctx context.Context, id string) (core.ImportRecord, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetImport"); err != nil {
		return core.ImportRecord{}, err
	}
	return m.imports.get(id)
}

func (m *MemStore) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListImports"); err != nil {
		return nil, err
	}
	out := m.imports.list(nil)
	slices.Reverse(out)
	return page(out, limit, 0), nil
}

func (m *MemStore) MarkImportRolledBack(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "MarkImportRolledBack"); err != nil {
		return err
	}
	rec, err := m.imports.get(id)
	if err != nil {
		return err
	}
	rec.Status = core.ImportRolledBack
	m.imports.put(id, rec)
	return nil
}

// Users

func (m *MemStore) ListUsers(ctx context.Context) ([]core.User, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListUsers"); err != nil {
		return nil, err
	}
	return m.users.list(nil), nil
}

func (m *MemStore) GetUser(ctx context.Context, id string) (core.User, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetUser"); err != nil {
		return core.User{}, err
	}
	return m.users.get(id)
}

func (m *MemStore) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetUserByEmail"); err != nil {
		return core.User{}, err
	}
	for _, u := range m.users.rows {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

// PutUser stores u as is, for seeding tests.
func (m *MemStore) PutUser(u core.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users.put(u.ID, u)
}

func (m *MemStore) InsertUser(ctx context.Context, in core.UserInput) (core.User, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertUser"); err != nil {
		return core.User{}, err
	}
	for _, u := range m.users.rows {
		if u.Email == in.Email {
			return core.User{}, fmt.Errorf(`duplicate key value violates unique constraint "users_email_key"`)
		}
	}
	u := core.User{ID: uuid.NewString(), Email: in.Email, FullName: in.FullName, Role: in.Role, CreatedAt: m.now()}
	m.users.put(u.ID, u)
	return u, nil
}

func (m *MemStore) UpdateUser(ctx context.Context, id string, in core.UserInput) (core.User, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateUser"); err != nil {
		return core.User{}, err
	}
	cur, err := m.users.get(id)
	if err != nil {
		return core.User{}, err
	}
	cur.Email, cur.FullName, cur.Role = in.Email, in.FullName, in.Role
	m.users.put(id, cur)
	return cur, nil
}

func (m *MemStore) DeleteUser(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteUser"); err != nil {
		return err
	}
	if !m.users.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

// Reports

func (m *MemStore) GetReportSettings(ctx context.Context) (core.ReportSettings, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetReportSettings"); err != nil {
		return core.ReportSettings{}, err
	}
	if m.report == nil {
		return core.DefaultReportSettings, nil
	}
	return *m.report, nil
}

func (m *MemStore) SaveReportSettings(ctx context.Context, s core.ReportSettings) (core.ReportSettings, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "SaveReportSettings"); err != nil {
		return core.ReportSettings{}, err
	}
	if m.report != nil {
		s.LastSentAt = m.report.LastSentAt
	}
	m.report = &s
	return s, nil
}

func (m *MemStore) MarkReportSent(ctx context.Context, at time.Time) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "MarkReportSent"); err != nil {
		return err
	}
	if m.report == nil {
		s := core.DefaultReportSettings
		m.report = &s
	}
	m.report.LastSentAt = &at
	return nil
}

func (m *MemStore) ListRecipients(ctx context.Context, activeOnly bool) ([]core.ReportRecipient, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListRecipients"); err != nil {
		return nil, err
	}
	return m.recipients.list(func(r core.ReportRecipient) bool { return !activeOnly || r.Active }), nil
}

func (m *MemStore) InsertRecipient(ctx context.Context, in core.RecipientInput) (core.ReportRecipient, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertRecipient"); err != nil {
		return core.ReportRecipient{}, err
	}
	r := core.ReportRecipient{ID: uuid.NewString(), Email: in.Email, Name: in.Name, Active: in.Active, CreatedAt: m.now()}
	m.recipients.put(r.ID, r)
	return r, nil
}

func (m *MemStore) DeleteRecipient(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteRecipient"); err != nil {
		return err
	}
	if !m.recipients.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

// Attachments

func (m *MemStore) InsertAttachment(ctx context.Context, a core.Attachment) (core.Attachment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "InsertAttachment"); err != nil {
		return core.Attachment{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = m.now()
	m.attachments.put(a.ID, a)
	return a, nil
}

func (m *MemStore) ListAttachments(ctx context.Context, tableName, recordID string) ([]core.Attachment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListAttachments"); err != nil {
		return nil, err
	}
	return m.attachments.list(func(a core.Attachment) bool {
		return a.TableName == tableName && a.RecordID == recordID
	}), nil
}

func (m *MemStore) GetAttachment(ctx context.Context, id string) (core.Attachment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetAttachment"); err != nil {
		return core.Attachment{}, err
	}
	return m.attachments.get(id)
}

func (m *MemStore) DeleteAttachment(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "DeleteAttachment"); err != nil {
		return err
	}
	if !m.attachments.remove(id) {
		return core.ErrNotFound
	}
	return nil
}

func fkError(table, column string) error {
	return fmt.Errorf(`insert or update on table %q violates foreign key constraint "%s_%s_fkey"`, table, table, column)
}

func checkError(table, column string) error {
	return fmt.Errorf(`new row for relation %q violates check constraint "%s_%s_check"`, table, table, column)
}
