package core

import (
	"context"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
)

// DefaultOperationTimeout is how long a service call may run before it is
// reported as timed out.
const DefaultOperationTimeout = 20 * time.Second

// DefaultMaxFileSize caps uploaded workbooks and attachments.
const DefaultMaxFileSize int64 = 20 << 20

// ObjectStorage stores attachment bodies outside the database.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service provides the business logic of the tracker over a Store.
// It is safe for concurrent use.
type Service struct {
	store     Store
	clock     clockwork.Clock
	limiter   *ImportLimiter
	guard     *TimeoutGuard
	publisher ActivityPublisher
	objects   ObjectStorage
	validate  *validator.Validate

	maxFileSize      int64
	operationTimeout time.Duration
	importObserver   ImportObserver
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPublisher sets where appended activity entries are published.
func WithPublisher(p ActivityPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithObjectStorage enables attachments.
func WithObjectStorage(o ObjectStorage) Option {
	return func(s *Service) { s.objects = o }
}

// WithImportLimiter replaces the default import concurrency limiter.
func WithImportLimiter(l *ImportLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithOperationTimeout sets the slow-operation threshold.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Service) { s.operationTimeout = d }
}

// WithMaxFileSize caps uploaded file size in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.maxFileSize = n }
}

// WithImportObserver receives one event per import batch.
func WithImportObserver(fn ImportObserver) Option {
	return func(s *Service) { s.importObserver = fn }
}

// NewService creates a new Service instance.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		clock:            clockwork.NewRealClock(),
		validate:         newFormValidator(),
		maxFileSize:      DefaultMaxFileSize,
		operationTimeout: DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	s.guard = NewTimeoutGuard(s.clock, s.operationTimeout)
	return s
}

// Limiter exposes the import limiter for monitoring and shutdown.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// MaxFileSize returns the configured upload cap in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) checkRead(sess *Session) error {
	return sess.Check(s.clock.Now())
}

func (s *Service) checkWrite(sess *Session) error {
	if err := sess.Check(s.clock.Now()); err != nil {
		return err
	}
	if !sess.CanWrite() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) checkAdmin(sess *Session) error {
	if err := sess.Check(s.clock.Now()); err != nil {
		return err
	}
	if !sess.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
