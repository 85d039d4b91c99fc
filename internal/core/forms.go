package core

// forms.go holds the inputs of create/update calls. Struct tags are checked
// with go-playground/validator; percentages and quantities are clamped
// rather than rejected so form and import paths agree.

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ProjectInput struct {
	Name      string        `json:"name" validate:"required,max=200"`
	Location  string        `json:"location" validate:"max=200"`
	Status    ProjectStatus `json:"status" validate:"omitempty,oneof=complete inprogress delayed"`
	Progress  int           `json:"progress"`
	StartDate *Date         `json:"start_date"`
	EndDate   *Date         `json:"end_date"`
}

type SystemInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	ProjectID      string `json:"project_id" validate:"required"`
	CompletionRate int    `json:"completion_rate"`
	StartDate      *Date  `json:"start_date"`
	EndDate        *Date  `json:"end_date"`
}

type SubsystemInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	SystemID       string `json:"system_id" validate:"required"`
	CompletionRate int    `json:"completion_rate"`
	StartDate      *Date  `json:"start_date"`
	EndDate        *Date  `json:"end_date"`
}

type ITRInput struct {
	Name        string    `json:"name" validate:"required,max=200"`
	SubsystemID string    `json:"subsystem_id" validate:"required"`
	Status      ITRStatus `json:"status" validate:"omitempty,oneof=pending inprogress complete"`
	Progress    int       `json:"progress"`
	Quantity    int       `json:"quantity"`
	AssignedTo  string    `json:"assigned_to" validate:"max=200"`
	StartDate   *Date     `json:"start_date"`
	EndDate     *Date     `json:"end_date"`
}

type TestPackInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	ITRName     string `json:"itr_name" validate:"max=200"`
	SubsystemID string `json:"subsystem_id"`
	Progress    int    `json:"progress"`
	Estado      Estado `json:"estado" validate:"omitempty,oneof=pendiente liberado"`
	ImportID    string `json:"-"`
}

type TagInput struct {
	TagName         string `json:"tag_name" validate:"required,max=200"`
	TestPackID      string `json:"test_pack_id" validate:"required"`
	Estado          Estado `json:"estado" validate:"omitempty,oneof=pendiente liberado"`
	FechaLiberacion *Date  `json:"fecha_liberacion"`
	ImportID        string `json:"-"`
}

type UserInput struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"max=200"`
	Role     Role   `json:"role" validate:"omitempty,oneof=admin editor viewer"`
}

type RecipientInput struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"max=200"`
	Active bool   `json:"active"`
}

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// checkForm runs struct validation and returns the first failure as a
// *ValidationError.
func (s *Service) checkForm(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &ValidationError{
		Field:   fe.Field(),
		Value:   fmt.Sprint(fe.Value()),
		Message: formMessage(fe),
	}
}

func formMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is empty"
	case "email":
		return "invalid email address"
	case "oneof":
		return "invalid enum value, expected one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "value longer than " + fe.Param() + " characters"
	default:
		return "invalid value"
	}
}

// checkDateRange rejects an end date before the start date.
func checkDateRange(start, end *Date) error {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return nil
	}
	if end.Before(start.Time) {
		return &ValidationError{
			Field:   "end_date",
			Value:   end.String(),
			Message: "invalid date range: end date is before start date",
		}
	}
	return nil
}

func (in *ProjectInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	if in.Status == "" {
		in.Status = ProjectInProgress
	}
	in.Progress = ClampPercent(in.Progress)
}

func (in *SystemInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.CompletionRate = ClampPercent(in.CompletionRate)
}

func (in *SubsystemInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.CompletionRate = ClampPercent(in.CompletionRate)
}

func (in *ITRInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	if in.Status == "" {
		in.Status = ITRPending
	}
	in.Progress = ClampPercent(in.Progress)
	in.Quantity = ClampQuantity(in.Quantity)
}

func (in *TestPackInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.ITRName = strings.TrimSpace(in.ITRName)
	if in.Estado == "" {
		in.Estado = EstadoPendiente
	}
	in.Progress = ClampPercent(in.Progress)
}

func (in *TagInput) normalize() {
	in.TagName = strings.TrimSpace(in.TagName)
	if in.Estado == "" {
		in.Estado = EstadoPendiente
	}
	if in.Estado == EstadoPendiente {
		in.FechaLiberacion = nil
	}
}

func (in *UserInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Role == "" {
		in.Role = RoleViewer
	}
}

func (in *RecipientInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
}
