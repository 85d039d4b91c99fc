package core

// service_projects.go implements form-driven CRUD for the
// project -> system -> subsystem -> ITR hierarchy. Every mutation checks the
// session, normalizes and validates its input, makes one store call and
// appends one activity entry.

import (
	"context"
	"fmt"
)

// ListProjects returns all projects, newest first.
func (s *Service) ListProjects(ctx context.Context, sess *Session) ([]Project, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	return s.store.ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, sess *Session, id string) (Project, error) {
	if err := s.checkRead(sess); err != nil {
		return Project{}, err
	}
	return s.store.GetProject(ctx, id)
}

func (s *Service) CreateProject(ctx context.Context, sess *Session, in ProjectInput) (Project, error) {
	if err := s.checkWrite(sess); err != nil {
		return Project{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return Project{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return Project{}, err
	}
	p, err := s.store.InsertProject(ctx, in)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableProjects, Action: ActionInsert, RecordID: p.ID,
		Details: map[string]any{"name": p.Name},
	})
	return p, nil
}

func (s *Service) UpdateProject(ctx context.Context, sess *Session, id string, in ProjectInput) (Project, error) {
	if err := s.checkWrite(sess); err != nil {
		return Project{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return Project{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return Project{}, err
	}
	p, err := s.store.UpdateProject(ctx, id, in)
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableProjects, Action: ActionUpdate, RecordID: p.ID,
		Details: map[string]any{"name": p.Name, "status": p.Status, "progress": p.Progress},
	})
	return p, nil
}

// DeleteProject removes a project. Its systems, subsystems and ITRs are
// removed by the database.
func (s *Service) DeleteProject(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableProjects, Action: ActionDelete, RecordID: id})
	return nil
}

func (s *Service) ListSystems(ctx context.Context, sess *Session, projectID string) ([]System, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	return s.store.ListSystems(ctx, projectID)
}

func (s *Service) CreateSystem(ctx context.Context, sess *Session, in SystemInput) (System, error) {
	if err := s.checkWrite(sess); err != nil {
		return System{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return System{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return System{}, err
	}
	sys, err := s.store.InsertSystem(ctx, in)
	if err != nil {
		return System{}, fmt.Errorf("create system: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableSystems, Action: ActionInsert, RecordID: sys.ID,
		Details: map[string]any{"name": sys.Name, "project_id": sys.ProjectID},
	})
	return sys, nil
}

func (s *Service) UpdateSystem(ctx context.Context, sess *Session, id string, in SystemInput) (System, error) {
	if err := s.checkWrite(sess); err != nil {
		return System{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return System{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return System{}, err
	}
	sys, err := s.store.UpdateSystem(ctx, id, in)
	if err != nil {
		return System{}, fmt.Errorf("update system: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableSystems, Action: ActionUpdate, RecordID: sys.ID,
		Details: map[string]any{"name": sys.Name, "completion_rate": sys.CompletionRate},
	})
	return sys, nil
}

func (s *Service) DeleteSystem(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteSystem(ctx, id); err != nil {
		return fmt.Errorf("delete system: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableSystems, Action: ActionDelete, RecordID: id})
	return nil
}

func (s *Service) ListSubsystems(ctx context.Context, sess *Session, systemID string) ([]Subsystem, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	return s.store.ListSubsystems(ctx, systemID)
}

func (s *Service) CreateSubsystem(ctx context.Context, sess *Session, in SubsystemInput) (Subsystem, error) {
	if err := s.checkWrite(sess); err != nil {
		return Subsystem{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return Subsystem{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return Subsystem{}, err
	}
	sub, err := s.store.InsertSubsystem(ctx, in)
	if err != nil {
		return Subsystem{}, fmt.Errorf("create subsystem: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableSubsystems, Action: ActionInsert, RecordID: sub.ID,
		Details: map[string]any{"name": sub.Name, "system_id": sub.SystemID},
	})
	return sub, nil
}

func (s *Service) UpdateSubsystem(ctx context.Context, sess *Session, id string, in SubsystemInput) (Subsystem, error) {
	if err := s.checkWrite(sess); err != nil {
		return Subsystem{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return Subsystem{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return Subsystem{}, err
	}
	sub, err := s.store.UpdateSubsystem(ctx, id, in)
	if err != nil {
		return Subsystem{}, fmt.Errorf("update subsystem: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableSubsystems, Action: ActionUpdate, RecordID: sub.ID,
		Details: map[string]any{"name": sub.Name, "completion_rate": sub.CompletionRate},
	})
	return sub, nil
}

func (s *Service) DeleteSubsystem(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteSubsystem(ctx, id); err != nil {
		return fmt.Errorf("delete subsystem: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableSubsystems, Action: ActionDelete, RecordID: id})
	return nil
}

func (s *Service) ListITRs(ctx context.Context, sess *Session, subsystemID string) ([]ITR, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	return s.store.ListITRs(ctx, subsystemID)
}

func (s *Service) CreateITR(ctx context.Context, sess *Session, in ITRInput) (ITR, error) {
	if err := s.checkWrite(sess); err != nil {
		return ITR{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return ITR{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return ITR{}, err
	}
	itr, err := s.store.InsertITR(ctx, in)
	if err != nil {
		return ITR{}, fmt.Errorf("create itr: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableITRs, Action: ActionInsert, RecordID: itr.ID,
		Details: map[string]any{"name": itr.Name, "subsystem_id": itr.SubsystemID},
	})
	return itr, nil
}

func (s *Service) UpdateITR(ctx context.Context, sess *Session, id string, in ITRInput) (ITR, error) {
	if err := s.checkWrite(sess); err != nil {
		return ITR{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return ITR{}, err
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return ITR{}, err
	}
	itr, err := s.store.UpdateITR(ctx, id, in)
	if err != nil {
		return ITR{}, fmt.Errorf("update itr: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableITRs, Action: ActionUpdate, RecordID: itr.ID,
		Details: map[string]any{"name": itr.Name, "status": itr.Status, "progress": itr.Progress},
	})
	return itr, nil
}

func (s *Service) DeleteITR(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteITR(ctx, id); err != nil {
		return fmt.Errorf("delete itr: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableITRs, Action: ActionDelete, RecordID: id})
	return nil
}
