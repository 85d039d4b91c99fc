package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// ProjectStatus is the lifecycle state shown on project cards.
type ProjectStatus string

const (
	ProjectComplete   ProjectStatus = "complete"
	ProjectInProgress ProjectStatus = "inprogress"
	ProjectDelayed    ProjectStatus = "delayed"
)

// ITRStatus is the state of an inspection/test record.
type ITRStatus string

const (
	ITRPending    ITRStatus = "pending"
	ITRInProgress ITRStatus = "inprogress"
	ITRComplete   ITRStatus = "complete"
)

// Estado is the release state shared by test packs and tags.
type Estado string

const (
	EstadoPendiente Estado = "pendiente"
	EstadoLiberado  Estado = "liberado"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DatePtr is a convenience for optional date fields.
func DatePtr(t time.Time) *Date {
	d := NewDate(t)
	return &d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts plain dates and full ISO 8601 timestamps.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := iso8601.ParseString(s)
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}

// Project is the top of the tracking hierarchy.
type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Location  string        `json:"location,omitempty"`
	Status    ProjectStatus `json:"status"`
	Progress  int           `json:"progress"`
	StartDate *Date         `json:"start_date,omitempty"`
	EndDate   *Date         `json:"end_date,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// System belongs to one project.
type System struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ProjectID      string    `json:"project_id"`
	CompletionRate int       `json:"completion_rate"`
	StartDate      *Date     `json:"start_date,omitempty"`
	EndDate        *Date     `json:"end_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subsystem belongs to one system and owns ITRs.
type Subsystem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SystemID       string    `json:"system_id"`
	CompletionRate int       `json:"completion_rate"`
	StartDate      *Date     `json:"start_date,omitempty"`
	EndDate        *Date     `json:"end_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ITR is an inspection/test record tracked under a subsystem.
type ITR struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SubsystemID string    `json:"subsystem_id"`
	Status      ITRStatus `json:"status"`
	Progress    int       `json:"progress"`
	Quantity    int       `json:"quantity"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	StartDate   *Date     `json:"start_date,omitempty"`
	EndDate     *Date     `json:"end_date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TestPack is a named bundle of tags released as one inspection unit.
type TestPack struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ITRName     string    `json:"itr_name,omitempty"`
	SubsystemID string    `json:"subsystem_id,omitempty"`
	Progress    int       `json:"progress"`
	Estado      Estado    `json:"estado"`
	ImportID    string    `json:"import_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag is a single item inside a test pack.
// FechaLiberacion is set if and only if Estado is liberado.
type Tag struct {
	ID              string    `json:"id"`
	TagName         string    `json:"tag_name"`
	TestPackID      string    `json:"test_pack_id"`
	Estado          Estado    `json:"estado"`
	FechaLiberacion *Date     `json:"fecha_liberacion,omitempty"`
	ImportID        string    `json:"import_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Released reports whether the tag is in its terminal state.
func (t Tag) Released() bool {
	return t.Estado == EstadoLiberado
}

// FieldSpec describes one recognised workbook column.
type FieldSpec struct {
	Name    string   // Canonical column name
	Aliases []string // Other accepted header spellings (case-insensitive)
}

// ClampPercent forces a progress or completion value into 0-100.
func ClampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// ClampQuantity forces an ITR quantity to at least one.
func ClampQuantity(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
