package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is an account known to the tracker. Credentials live with the
// identity provider; this record only carries profile and role.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// SignIn starts a session for the account registered under email. The
// role comes from the user record, not from the caller. Unknown emails
// fail with ErrForbidden.
func (s *Service) SignIn(ctx context.Context, email string, expiresAt time.Time) (*Session, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no account for %s", ErrForbidden, email)
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	sess := NewSession(u.ID, u.Email, u.Role, expiresAt)
	if err := sess.Check(s.clock.Now()); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListUsers(ctx context.Context, sess *Session) ([]User, error) {
	if err := s.checkAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// CurrentUser returns the record of the signed-in user.
func (s *Service) CurrentUser(ctx context.Context, sess *Session) (User, error) {
	if err := s.checkRead(sess); err != nil {
		return User{}, err
	}
	return s.store.GetUser(ctx, sess.UserID)
}

func (s *Service) CreateUser(ctx context.Context, sess *Session, in UserInput) (User, error) {
	if err := s.checkAdmin(sess); err != nil {
		return User{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return User{}, err
	}
	u, err := s.store.InsertUser(ctx, in)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableUsers, Action: ActionInsert, RecordID: u.ID,
		Details: map[string]any{"email": u.Email, "role": u.Role},
	})
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, sess *Session, id string, in UserInput) (User, error) {
	if err := s.checkAdmin(sess); err != nil {
		return User{}, err
	}
	in.normalize()
	if err := s.checkForm(in); err != nil {
		return User{}, err
	}
	if id == sess.UserID && in.Role != RoleAdmin {
		return User{}, &ValidationError{Field: "role", Value: string(in.Role), Message: "cannot remove your own admin role"}
	}
	u, err := s.store.UpdateUser(ctx, id, in)
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{
		TableName: TableUsers, Action: ActionUpdate, RecordID: u.ID,
		Details: map[string]any{"email": u.Email, "role": u.Role},
	})
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, sess *Session, id string) error {
	if err := s.checkAdmin(sess); err != nil {
		return err
	}
	if id == sess.UserID {
		return &ValidationError{Field: "id", Value: id, Message: "cannot delete your own account"}
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logActivity(ctx, sess, ActivityInput{TableName: TableUsers, Action: ActionDelete, RecordID: id})
	return nil
}
