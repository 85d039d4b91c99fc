package core

// tags.go holds test pack and tag CRUD and the tag release state machine:
//
//	pendiente --ReleaseTag(date)--> liberado
//
// liberado is terminal. A tag carries a release date exactly when it is
// liberado.

import (
	"context"
	"errors"
	"fmt"
)

// DefaultListLimit bounds list views without an explicit limit.
const DefaultListLimit = 500

func (s *Service) ListTestPacks(ctx context.Context, sess *Session, f TestPackFilter) ([]TestPack, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	return s.store.ListTestPacks(ctx, f)
}

func (s *Service) GetTestPack(ctx context.Context, sess *Session, id string) (TestPack, error) {
	if err := s.checkRead(sess); err != nil {
		return TestPack{}, err
	}
	return s.store.GetTestPack(ctx, id)
}

func (s *Service) CreateTestPack(ctx context.Context, sess *Session, in TestPackInput) (TestPack, error) {
	if err := s.checkWrite(sess); err != nil {
		return TestPack{}, err
	}
	in.normalize()
	in.ImportID = ""
	if err := s.checkForm(in); err != nil {
		return TestPack{}, err
	}
	created, err := s.store.InsertTestPacks(ctx, []TestPackInput{in})
	if err != nil {
		return TestPack{}, fmt.Errorf("create test pack: %w", err)
	}
	if len(created) != 1 {
		return TestPack{}, fmt.Errorf("create test pack: store returned %d rows", len(created))
	}
	tp := created[0]
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTestPacks, Action: ActionInsert, RecordID: tp.ID,
		Details: map[string]any{"name": tp.Name},
	})
	return tp, nil
}

func (s *Service) UpdateTestPack(ctx context.Context, sess *Session, id string, in TestPackInput) (TestPack, error) {
	if err := s.checkWrite(sess); err != nil {
		return TestPack{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return TestPack{}, err
	}
	tp, err := s.store.UpdateTestPack(ctx, id, in)
	if err != nil {
		return TestPack{}, fmt.Errorf("update test pack: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTestPacks, Action: ActionUpdate, RecordID: tp.ID,
		Details: map[string]any{"name": tp.Name, "estado": tp.Estado, "progress": tp.Progress},
	})
	return tp, nil
}

// DeleteTestPack removes a test pack; its tags cascade.
func (s *Service) DeleteTestPack(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteTestPack(ctx, id); err != nil {
		return fmt.Errorf("delete test pack: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableTestPacks, Action: ActionDelete, RecordID: id})
	return nil
}

func (s *Service) ListTags(ctx context.Context, sess *Session, f TagFilter) ([]Tag, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	return s.store.ListTags(ctx, f)
}

// CreateTag adds a tag to a test pack. A liberado tag needs a release
// date; a pendiente tag never keeps one.
func (s *Service) CreateTag(ctx context.Context, sess *Session, in TagInput) (Tag, error) {
	if err := s.checkWrite(sess); err != nil {
		return Tag{}, err
	}
	in.normalize()
	in.ImportID = ""
	if err := s.checkForm(in); err != nil {
		return Tag{}, err
	}
	if in.Estado == EstadoLiberado && (in.FechaLiberacion == nil || in.FechaLiberacion.IsZero()) {
		return Tag{}, ErrReleaseDateRequired
	}
	if _, err := s.store.GetTestPack(ctx, in.TestPackID); err != nil {
		return Tag{}, fmt.Errorf("test pack %s: %w", in.TestPackID, err)
	}
	created, err := s.store.InsertTags(ctx, []TagInput{in})
	if err != nil {
		return Tag{}, fmt.Errorf("create tag: %w", err)
	}
	if len(created) != 1 {
		return Tag{}, fmt.Errorf("create tag: store returned %d rows", len(created))
	}
	tag := created[0]
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTags, Action: ActionInsert, RecordID: tag.ID,
		Details: map[string]any{"tag_name": tag.TagName, "test_pack_id": tag.TestPackID},
	})
	return tag, nil
}

// UpdateTag edits a tag. A released tag cannot go back to pendiente; if
// the edit omits its release date the stored one is kept.
func (s *Service) UpdateTag(ctx context.Context, sess *Session, id string, in TagInput) (Tag, error) {
	if err := s.checkWrite(sess); err != nil {
		return Tag{}, err
	}
	current, err := s.store.GetTag(ctx, id)
	if err != nil {
		return Tag{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return Tag{}, err
	}
	if current.Released() {
		if in.Estado != EstadoLiberado {
			return Tag{}, ErrTagReleased
		}
		if in.FechaLiberacion == nil {
			in.FechaLiberacion = current.FechaLiberacion
		}
	}
	if in.Estado == EstadoLiberado && (in.FechaLiberacion == nil || in.FechaLiberacion.IsZero()) {
		return Tag{}, ErrReleaseDateRequired
	}
	in.ImportID = current.ImportID

	tag, err := s.store.UpdateTag(ctx, id, in)
	if err != nil {
		return Tag{}, fmt.Errorf("update tag: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTags, Action: ActionUpdate, RecordID: tag.ID,
		Details: map[string]any{"tag_name": tag.TagName, "estado": tag.Estado},
	})
	return tag, nil
}

// ReleaseTag moves a pendiente tag to liberado on the given date.
func (s *Service) ReleaseTag(ctx context.Context, sess *Session, id string, date *Date) (Tag, error) {
	if err := s.checkWrite(sess); err != nil {
		return Tag{}, err
	}
	if date == nil || date.IsZero() {
		return Tag{}, ErrReleaseDateRequired
	}
	current, err := s.store.GetTag(ctx, id)
	if err != nil {
		return Tag{}, err
	}
	next, err := releaseTransition(current, *date)
	if err != nil {
		return Tag{}, err
	}

	tag, err := s.store.UpdateTag(ctx, id, next)
	if err != nil {
		return Tag{}, fmt.Errorf("release tag: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableTags, Action: ActionUpdate, RecordID: tag.ID,
		Details: map[string]any{"tag_name": tag.TagName, "estado": tag.Estado, "fecha_liberacion": date.String()},
	})
	return tag, nil
}

// releaseTransition applies pendiente -> liberado to t.
func releaseTransition(t Tag, date Date) (TagInput, error) {
	if t.Released() {
		return TagInput{}, ErrTagReleased
	}
	if date.IsZero() {
		return TagInput{}, ErrReleaseDateRequired
	}
	d := NewDate(date.Time)
	return TagInput{
		TagName:         t.TagName,
		TestPackID:      t.TestPackID,
		Estado:          EstadoLiberado,
		FechaLiberacion: &d,
		ImportID:        t.ImportID,
	}, nil
}

func (s *Service) DeleteTag(ctx context.Context, sess *Session, id string) error {
	if err := s.checkWrite(sess); err != nil {
		return err
	}
	if err := s.store.DeleteTag(ctx, id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableTags, Action: ActionDelete, RecordID: id})
	return nil
}

// IsTransitionError reports whether err is a rejected tag state change.
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrTagReleased) || errors.Is(err, ErrReleaseDateRequired)
}
