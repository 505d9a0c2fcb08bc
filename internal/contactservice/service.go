// Package contactservice owns the contact lifecycle: normalization,
// validation, persistence, and the notifications that follow a commit.
package contactservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/store"
)

// ChangeKind names a committed contact mutation.
type ChangeKind string

const (
	ContactCreated ChangeKind = "contact.created"
	ContactUpdated ChangeKind = "contact.updated"
	ContactDeleted ChangeKind = "contact.deleted"
)

// Change is delivered to change hooks after a write commits.
type Change struct {
	Kind ChangeKind
	ID   int64
}

// Service coordinates validation and storage for contacts.
type Service struct {
	db        *store.DB
	logger    *slog.Logger
	opTimeout time.Duration
	topN      int
	wake      func()
	hooks     []func(Change)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithOpTimeout bounds every storage operation. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Service) { s.opTimeout = d }
}

// WithTopN sets the size of the report's top lists.
func WithTopN(n int) Option {
	return func(s *Service) { s.topN = n }
}

// WithIndexWakeup registers a function called after every committed write so
// the vector worker can pick the new task up without waiting for its poll.
func WithIndexWakeup(fn func()) Option {
	return func(s *Service) { s.wake = fn }
}

// WithChangeHook registers a listener for committed changes.
func WithChangeHook(fn func(Change)) Option {
	return func(s *Service) { s.hooks = append(s.hooks, fn) }
}

// NewService creates a contact service.
func NewService(db *store.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		logger:    slog.Default(),
		opTimeout: 5 * time.Second,
		topN:      store.DefaultTopN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Service) committed(kind ChangeKind, id int64) {
	s.logger.Debug("contact committed", slog.String("kind", string(kind)), slog.Int64("id", id))
	if kind != ContactDeleted && s.wake != nil {
		s.wake()
	}
	for _, h := range s.hooks {
		h(Change{Kind: kind, ID: id})
	}
}

// Create validates in and stores a new contact.
func (s *Service) Create(ctx context.Context, in models.ContactInput) (*models.Contact, error) {
	c := &models.Contact{}
	in.ApplyTo(c)
	normalize(c)
	if err := validate(c); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	s.committed(ContactCreated, c.ID)
	return c, nil
}

// Update replaces every writable field of the contact.
func (s *Service) Update(ctx context.Context, id int64, in models.ContactInput) (*models.Contact, error) {
	return s.update(ctx, id, in.ApplyTo)
}

// Patch changes only the fields set in p.
func (s *Service) Patch(ctx context.Context, id int64, p models.ContactPatch) (*models.Contact, error) {
	return s.update(ctx, id, p.Apply)
}

func (s *Service) update(ctx context.Context, id int64, apply func(*models.Contact)) (*models.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	c, err := s.db.UpdateContact(ctx, id, func(c *models.Contact) error {
		apply(c)
		normalize(c)
		return validate(c)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ContactUpdated, c.ID)
	return c, nil
}

// Delete removes the contact and every link that touches it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.DeleteContact(ctx, id); err != nil {
		return err
	}
	s.committed(ContactDeleted, id)
	return nil
}

// Get returns one contact.
func (s *Service) Get(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.GetContact(ctx, id)
}

// FindByFileNumber looks a contact up by file number.
func (s *Service) FindByFileNumber(ctx context.Context, fileNumber string) (*models.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.ContactByFileNumber(ctx, normalizeFileNumber(fileNumber))
}

// Search runs a ranked, filtered, paged query.
func (s *Service) Search(ctx context.Context, q models.ContactQuery) (*models.SearchPage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.Search(ctx, q)
}

// Outgoing returns the contact's linked clients.
func (s *Service) Outgoing(ctx context.Context, id int64) ([]models.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.Outgoing(ctx, id)
}

// Incoming returns the contacts that list id as a linked client.
func (s *Service) Incoming(ctx context.Context, id int64) ([]models.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.Incoming(ctx, id)
}

// Report aggregates the link graph.
func (s *Service) Report(ctx context.Context) (*models.RelationshipReport, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.Report(ctx, s.topN)
}

// Summaries returns compact views of the given contacts in name order.
// Unknown ids are skipped.
func (s *Service) Summaries(ctx context.Context, ids []int64) ([]models.ContactSummary, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	contacts, err := s.db.ContactsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.ContactSummary, len(contacts))
	for i := range contacts {
		out[i] = contacts[i].Summary()
	}
	return out, nil
}
