package core

import (
	"context"
	"time"
)

// Store is the persistence boundary. Every call is one remote
// select/insert/update/delete and is atomic on its own; the store offers
// no cross-call transactions. Implementations return ErrNotFound for
// missing rows.
type Store interface {
	ProjectStore
	HierarchyStore
	TestPackStore
	ActivityStore
	ImportStore
	UserStore
	ReportStore
	AttachmentStore
}

type ProjectStore interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	InsertProject(ctx context.Context, in ProjectInput) (Project, error)
	UpdateProject(ctx context.Context, id string, in ProjectInput) (Project, error)
	// DeleteProject removes the project; systems, subsystems and ITRs
	// cascade in the database.
	DeleteProject(ctx context.Context, id string) error
}

type HierarchyStore interface {
	ListSystems(ctx context.Context, projectID string) ([]System, error)
	GetSystem(ctx context.Context, id string) (System, error)
	InsertSystem(ctx context.Context, in SystemInput) (System, error)
	UpdateSystem(ctx context.Context, id string, in SystemInput) (System, error)
	DeleteSystem(ctx context.Context, id string) error

	ListSubsystems(ctx context.Context, systemID string) ([]Subsystem, error)
	GetSubsystem(ctx context.Context, id string) (Subsystem, error)
	InsertSubsystem(ctx context.Context, in SubsystemInput) (Subsystem, error)
	UpdateSubsystem(ctx context.Context, id string, in SubsystemInput) (Subsystem, error)
	DeleteSubsystem(ctx context.Context, id string) error

	ListITRs(ctx context.Context, subsystemID string) ([]ITR, error)
	GetITR(ctx context.Context, id string) (ITR, error)
	InsertITR(ctx context.Context, in ITRInput) (ITR, error)
	UpdateITR(ctx context.Context, id string, in ITRInput) (ITR, error)
	DeleteITR(ctx context.Context, id string) error
}

// TestPackFilter narrows test pack list views. Zero values match all.
type TestPackFilter struct {
	Search      string
	Estado      Estado
	SubsystemID string
	ImportID    string
	Limit       int
	Offset      int
}

// TagFilter narrows tag list views. Zero values match all.
type TagFilter struct {
	TestPackIDs []string
	Estado      Estado
	Search      string
	Limit       int
	Offset      int
}

type TestPackStore interface {
	ListTestPacks(ctx context.Context, f TestPackFilter) ([]TestPack, error)
	GetTestPack(ctx context.Context, id string) (TestPack, error)
	// InsertTestPacks creates all rows in one batch and returns them in
	// input order with their assigned IDs.
	InsertTestPacks(ctx context.Context, in []TestPackInput) ([]TestPack, error)
	UpdateTestPack(ctx context.Context, id string, in TestPackInput) (TestPack, error)
	DeleteTestPack(ctx context.Context, id string) error
	// DeleteTestPacksByImport removes the test packs created by one import.
	// Their tags cascade.
	DeleteTestPacksByImport(ctx context.Context, importID string) (int64, error)

	ListTags(ctx context.Context, f TagFilter) ([]Tag, error)
	GetTag(ctx context.Context, id string) (Tag, error)
	// InsertTags creates all rows in one batch, in input order.
	InsertTags(ctx context.Context, in []TagInput) ([]Tag, error)
	UpdateTag(ctx context.Context, id string, in TagInput) (Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

// ActivityFilter narrows the activity timeline.
type ActivityFilter struct {
	TableName string
	RecordID  string
	Action    ActivityAction
	Since     time.Time
	Limit     int
	Offset    int
}

type ActivityStore interface {
	InsertActivity(ctx context.Context, in ActivityInput) (ActivityLogEntry, error)
	ListActivity(ctx context.Context, f ActivityFilter) ([]ActivityLogEntry, error)
}

type ImportStore interface {
	InsertImport(ctx context.Context, rec ImportRecord) error
	GetImport(ctx context.Context, id string) (ImportRecord, error)
	ListImports(ctx context.Context, limit int) ([]ImportRecord, error)
	MarkImportRolledBack(ctx context.Context, id string) error
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	InsertUser(ctx context.Context, in UserInput) (User, error)
	UpdateUser(ctx context.Context, id string, in UserInput) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

type ReportStore interface {
	GetReportSettings(ctx context.Context) (ReportSettings, error)
	SaveReportSettings(ctx context.Context, s ReportSettings) (ReportSettings, error)
	MarkReportSent(ctx context.Context, at time.Time) error
	ListRecipients(ctx context.Context, activeOnly bool) ([]ReportRecipient, error)
	InsertRecipient(ctx context.Context, in RecipientInput) (ReportRecipient, error)
	DeleteRecipient(ctx context.Context, id string) error
}

type AttachmentStore interface {
	InsertAttachment(ctx context.Context, a Attachment) (Attachment, error)
	ListAttachments(ctx context.Context, tableName, recordID string) ([]Attachment, error)
	GetAttachment(ctx context.Context, id string) (Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}
