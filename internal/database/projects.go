package database

import (
	"context"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const projectColumns = `id, name, location, status, progress, start_date, end_date, created_at`

func scanProject(row pgx.Row) (core.Project, error) {
	var (
		p          core.Project
		id         pgtype.UUID
		location   pgtype.Text
		status     string
		start, end pgtype.Date
	)
	if err := row.Scan(&id, &p.Name, &location, &status, &p.Progress, &start, &end, &p.CreatedAt); err != nil {
		return core.Project{}, err
	}
	p.ID = uuidToString(id)
	p.Location = fromPgText(location)
	p.Status = core.ProjectStatus(status)
	p.StartDate = fromPgDate(start)
	p.EndDate = fromPgDate(end)
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	return collect(rows, err, scanProject)
}

func (s *Store) GetProject(ctx context.Context, id string) (core.Project, error) {
	return one(scanProject(s.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, toPgUUID(id))))
}

func (s *Store) InsertProject(ctx context.Context, in core.ProjectInput) (core.Project, error) {
	return scanProject(s.db.QueryRow(ctx, `
		INSERT INTO projects (id, name, location, status, progress, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+projectColumns,
		toPgUUID(newID("")), in.Name, toPgText(in.Location), string(in.Status), in.Progress,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	))
}

func (s *Store) UpdateProject(ctx context.Context, id string, in core.ProjectInput) (core.Project, error) {
	return one(scanProject(s.db.QueryRow(ctx, `
		UPDATE projects
		SET name = $2, location = $3, status = $4, progress = $5, start_date = $6, end_date = $7
		WHERE id = $1
		RETURNING `+projectColumns,
		toPgUUID(id), in.Name, toPgText(in.Location), string(in.Status), in.Progress,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	)))
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, toPgUUID(id)))
}

// Systems

const systemColumns = `id, name, project_id, completion_rate, start_date, end_date, created_at`

func scanSystem(row pgx.Row) (core.System, error) {
	var (
		sys           core.System
		id, projectID pgtype.UUID
		start, end    pgtype.Date
	)
	if err := row.Scan(&id, &sys.Name, &projectID, &sys.CompletionRate, &start, &end, &sys.CreatedAt); err != nil {
		return core.System{}, err
	}
	sys.ID = uuidToString(id)
	sys.ProjectID = uuidToString(projectID)
	sys.StartDate = fromPgDate(start)
	sys.EndDate = fromPgDate(end)
	return sys, nil
}

func (s *Store) ListSystems(ctx context.Context, projectID string) ([]core.System, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+systemColumns+` FROM systems WHERE project_id = $1 ORDER BY created_at, id`,
		toPgUUID(projectID))
	return collect(rows, err, scanSystem)
}

func (s *Store) GetSystem(ctx context.Context, id string) (core.System, error) {
	return one(scanSystem(s.db.QueryRow(ctx,
		`SELECT `+systemColumns+` FROM systems WHERE id = $1`, toPgUUID(id))))
}

func (s *Store) InsertSystem(ctx context.Context, in core.SystemInput) (core.System, error) {
	return scanSystem(s.db.QueryRow(ctx, `
		INSERT INTO systems (id, name, project_id, completion_rate, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+systemColumns,
		toPgUUID(newID("")), in.Name, toPgUUID(in.ProjectID), in.CompletionRate,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	))
}

func (s *Store) UpdateSystem(ctx context.Context, id string, in core.SystemInput) (core.System, error) {
	return one(scanSystem(s.db.QueryRow(ctx, `
		UPDATE systems
		SET name = $2, project_id = $3, completion_rate = $4, start_date = $5, end_date = $6
		WHERE id = $1
		RETURNING `+systemColumns,
		toPgUUID(id), in.Name, toPgUUID(in.ProjectID), in.CompletionRate,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	)))
}

func (s *Store) DeleteSystem(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM systems WHERE id = $1`, toPgUUID(id)))
}

// Subsystems

const subsystemColumns = `id, name, system_id, completion_rate, start_date, end_date, created_at`

func scanSubsystem(row pgx.Row) (core.Subsystem, error) {
	var (
		sub          core.Subsystem
		id, systemID pgtype.UUID
		start, end   pgtype.Date
	)
	if err := row.Scan(&id, &sub.Name, &systemID, &sub.CompletionRate, &start, &end, &sub.CreatedAt); err != nil {
		return core.Subsystem{}, err
	}
	sub.ID = uuidToString(id)
	sub.SystemID = uuidToString(systemID)
	sub.StartDate = fromPgDate(start)
	sub.EndDate = fromPgDate(end)
	return sub, nil
}

func (s *Store) ListSubsystems(ctx context.Context, systemID string) ([]core.Subsystem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subsystemColumns+` FROM subsystems WHERE system_id = $1 ORDER BY created_at, id`,
		toPgUUID(systemID))
	return collect(rows, err, scanSubsystem)
}

func (s *Store) GetSubsystem(ctx context.Context, id string) (core.Subsystem, error) {
	return one(scanSubsystem(s.db.QueryRow(ctx,
		`SELECT `+subsystemColumns+` FROM subsystems WHERE id = $1`, toPgUUID(id))))
}

func (s *Store) InsertSubsystem(ctx context.Context, in core.SubsystemInput) (core.Subsystem, error) {
	return scanSubsystem(s.db.QueryRow(ctx, `
		INSERT INTO subsystems (id, name, system_id, completion_rate, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subsystemColumns,
		toPgUUID(newID("")), in.Name, toPgUUID(in.SystemID), in.CompletionRate,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	))
}

func (s *Store) UpdateSubsystem(ctx context.Context, id string, in core.SubsystemInput) (core.Subsystem, error) {
	return one(scanSubsystem(s.db.QueryRow(ctx, `
		UPDATE subsystems
		SET name = $2, system_id = $3, completion_rate = $4, start_date = $5, end_date = $6
		WHERE id = $1
		RETURNING `+subsystemColumns,
		toPgUUID(id), in.Name, toPgUUID(in.SystemID), in.CompletionRate,
		toPgDate(in.StartDate), toPgDate(in.EndDate),
	)))
}

func (s *Store) DeleteSubsystem(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM subsystems WHERE id = $1`, toPgUUID(id)))
}

// ITRs

const itrColumns = `id, name, subsystem_id, status, progress, quantity, assigned_to, start_date, end_date, created_at`

func scanITR(row pgx.Row) (core.ITR, error) {
	var (
		itr             core.ITR
		id, subsystemID pgtype.UUID
		status          string
		assignedTo      pgtype.Text
		start, end      pgtype.Date
	)
	if err := row.Scan(&id, &itr.Name, &subsystemID, &status, &itr.Progress, &itr.Quantity,
		&assignedTo, &start, &end, &itr.CreatedAt); err != nil {
		return core.ITR{}, err
	}
	itr.ID = uuidToString(id)
	itr.SubsystemID = uuidToString(subsystemID)
	itr.Status = core.ITRStatus(status)
	itr.AssignedTo = fromPgText(assignedTo)
	itr.StartDate = fromPgDate(start)
	itr.EndDate = fromPgDate(end)
	return itr, nil
}

func (s *Store) ListITRs(ctx context.Context, subsystemID string) ([]core.ITR, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+itrColumns+` FROM itrs WHERE subsystem_id = $1 ORDER BY created_at, id`,
		toPgUUID(subsystemID))
	return collect(rows, err, scanITR)
}

func (s *Store) GetITR(ctx context.Context, id string) (core.ITR, error) {
	return one(scanITR(s.db.QueryRow(ctx,
		`SELECT `+itrColumns+` FROM itrs WHERE id = $1`, toPgUUID(id))))
}

func (s *Store) InsertITR(ctx context.Context, in core.ITRInput) (core.ITR, error) {
	return scanITR(s.db.QueryRow(ctx, `
		INSERT INTO itrs (id, name, subsystem_id, status, progress, quantity, assigned_to, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+itrColumns,
		toPgUUID(newID("")), in.Name, toPgUUID(in.SubsystemID), string(in.Status), in.Progress,
		in.Quantity, toPgText(in.AssignedTo), toPgDate(in.StartDate), toPgDate(in.EndDate),
	))
}

func (s *Store) UpdateITR(ctx context.Context, id string, in core.ITRInput) (core.ITR, error) {
	return one(scanITR(s.db.QueryRow(ctx, `
		UPDATE itrs
		SET name = $2, subsystem_id = $3, status = $4, progress = $5, quantity = $6,
		    assigned_to = $7, start_date = $8, end_date = $9
		WHERE id = $1
		RETURNING `+itrColumns,
		toPgUUID(id), in.Name, toPgUUID(in.SubsystemID), string(in.Status), in.Progress,
		in.Quantity, toPgText(in.AssignedTo), toPgDate(in.StartDate), toPgDate(in.EndDate),
	)))
}

func (s *Store) DeleteITR(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM itrs WHERE id = $1`, toPgUUID(id)))
}
