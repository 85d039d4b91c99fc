package database

import (
	"context"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const testPackColumns = `id, name, itr_name, subsystem_id, progress, estado, import_id, created_at`

func scanTestPack(row pgx.Row) (core.TestPack, error) {
	var (
		p                         core.TestPack
		id, subsystemID, importID pgtype.UUID
		itrName                   pgtype.Text
		estado                    string
	)
	if err := row.Scan(&id, &p.Name, &itrName, &subsystemID, &p.Progress, &estado, &importID, &p.CreatedAt); err != nil {
		return core.TestPack{}, err
	}
	p.ID = uuidToString(id)
	p.ITRName = fromPgText(itrName)
	p.SubsystemID = uuidToString(subsystemID)
	p.Estado = core.Estado(estado)
	p.ImportID = uuidToString(importID)
	return p, nil
}

func (s *Store) ListTestPacks(ctx context.Context, f core.TestPackFilter) ([]core.TestPack, error) {
	subsystemID, ok1 := filterUUID(f.SubsystemID)
	importID, ok2 := filterUUID(f.ImportID)
	if !ok1 || !ok2 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+testPackColumns+` FROM test_packs
		WHERE ($1::text = '' OR estado = $1)
		  AND ($2::uuid IS NULL OR subsystem_id = $2)
		  AND ($3::uuid IS NULL OR import_id = $3)
		  AND ($4::text = '' OR name ILIKE '%' || $4 || '%' OR itr_name ILIKE '%' || $4 || '%')
		ORDER BY seq
		LIMIT $5 OFFSET $6`,
		string(f.Estado), subsystemID, importID, f.Search, toPgLimit(f.Limit), max(f.Offset, 0),
	)
	return collect(rows, err, scanTestPack)
}

func (s *Store) GetTestPack(ctx context.Context, id string) (core.TestPack, error) {
	return one(scanTestPack(s.db.QueryRow(ctx,
		`SELECT `+testPackColumns+` FROM test_packs WHERE id = $1`, toPgUUID(id))))
}

// InsertTestPacks writes the batch with one COPY, so either every row is
// stored or none is.
func (s *Store) InsertTestPacks(ctx context.Context, in []core.TestPackInput) ([]core.TestPack, error) {
	if len(in) == 0 {
		return nil, nil
	}
	created := s.now().UTC()
	out := make([]core.TestPack, len(in))
	rows := make([][]any, len(in))
	for i, p := range in {
		out[i] = core.TestPack{
			ID:          newID(""),
			Name:        p.Name,
			ITRName:     p.ITRName,
			SubsystemID: p.SubsystemID,
			Progress:    p.Progress,
			Estado:      p.Estado,
			ImportID:    p.ImportID,
			CreatedAt:   created,
		}
		rows[i] = []any{
			toPgUUID(out[i].ID), p.Name, toPgText(p.ITRName), toPgUUID(p.SubsystemID),
			p.Progress, string(p.Estado), toPgUUID(p.ImportID), created,
		}
	}

	_, err := s.db.CopyFrom(ctx, pgx.Identifier{"test_packs"},
		[]string{"id", "name", "itr_name", "subsystem_id", "progress", "estado", "import_id", "created_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateTestPack(ctx context.Context, id string, in core.TestPackInput) (core.TestPack, error) {
	return one(scanTestPack(s.db.QueryRow(ctx, `
		UPDATE test_packs
		SET name = $2, itr_name = $3, subsystem_id = $4, progress = $5, estado = $6
		WHERE id = $1
		RETURNING `+testPackColumns,
		toPgUUID(id), in.Name, toPgText(in.ITRName), toPgUUID(in.SubsystemID), in.Progress, string(in.Estado),
	)))
}

func (s *Store) DeleteTestPack(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM test_packs WHERE id = $1`, toPgUUID(id)))
}

func (s *Store) DeleteTestPacksByImport(ctx context.Context, importID string) (int64, error) {
	id, ok := filterUUID(importID)
	if !ok || !id.Valid {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM test_packs WHERE import_id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Tags

const tagColumns = `id, tag_name, test_pack_id, estado, fecha_liberacion, import_id, created_at`

func scanTag(row pgx.Row) (core.Tag, error) {
	var (
		t                        core.Tag
		id, testPackID, importID pgtype.UUID
		estado                   string
		fecha                    pgtype.Date
	)
	if err := row.Scan(&id, &t.TagName, &testPackID, &estado, &fecha, &importID, &t.CreatedAt); err != nil {
		return core.Tag{}, err
	}
	t.ID = uuidToString(id)
	t.TestPackID = uuidToString(testPackID)
	t.Estado = core.Estado(estado)
	t.FechaLiberacion = fromPgDate(fecha)
	t.ImportID = uuidToString(importID)
	return t, nil
}

func (s *Store) ListTags(ctx context.Context, f core.TagFilter) ([]core.Tag, error) {
	packIDs := make([]pgtype.UUID, 0, len(f.TestPackIDs))
	for _, id := range f.TestPackIDs {
		if u := toPgUUID(id); u.Valid {
			packIDs = append(packIDs, u)
		}
	}
	if len(f.TestPackIDs) > 0 && len(packIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+tagColumns+` FROM tags
		WHERE (cardinality($1::uuid[]) = 0 OR test_pack_id = ANY($1))
		  AND ($2::text = '' OR estado = $2)
		  AND ($3::text = '' OR tag_name ILIKE '%' || $3 || '%')
		ORDER BY seq
		LIMIT $4 OFFSET $5`,
		packIDs, string(f.Estado), f.Search, toPgLimit(f.Limit), max(f.Offset, 0),
	)
	return collect(rows, err, scanTag)
}

func (s *Store) GetTag(ctx context.Context, id string) (core.Tag, error) {
	return one(scanTag(s.db.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = $1`, toPgUUID(id))))
}

// InsertTags writes the batch with one COPY in input order.
func (s *Store) InsertTags(ctx context.Context, in []core.TagInput) ([]core.Tag, error) {
	if len(in) == 0 {
		return nil, nil
	}
	created := s.now().UTC()
	out := make([]core.Tag, len(in))
	rows := make([][]any, len(in))
	for i, t := range in {
		out[i] = core.Tag{
			ID:              newID(""),
			TagName:         t.TagName,
			TestPackID:      t.TestPackID,
			Estado:          t.Estado,
			FechaLiberacion: t.FechaLiberacion,
			ImportID:        t.ImportID,
			CreatedAt:       created,
		}
		rows[i] = []any{
			toPgUUID(out[i].ID), t.TagName, toPgUUID(t.TestPackID), string(t.Estado),
			toPgDate(t.FechaLiberacion), toPgUUID(t.ImportID), created,
		}
	}

	_, err := s.db.CopyFrom(ctx, pgx.Identifier{"tags"},
		[]string{"id", "tag_name", "test_pack_id", "estado", "fecha_liberacion", "import_id", "created_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateTag(ctx context.Context, id string, in core.TagInput) (core.Tag, error) {
	return one(scanTag(s.db.QueryRow(ctx, `
		UPDATE tags
		SET tag_name = $2, test_pack_id = $3, estado = $4, fecha_liberacion = $5
		WHERE id = $1
		RETURNING `+tagColumns,
		toPgUUID(id), in.TagName, toPgUUID(in.TestPackID), string(in.Estado), toPgDate(in.FechaLiberacion),
	)))
}

func (s *Store) DeleteTag(ctx context.Context, id string) error {
	return affected(s.db.Exec(ctx, `DELETE FROM tags WHERE id = $1`, toPgUUID(id)))
}
