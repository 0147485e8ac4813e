// Package settings holds the runtime-editable bot settings and the stores
// they persist in.
package settings

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/m3rciful/vpnbot/core/logger"
)

// Values are the settings an administrator can change without a restart.
type Values struct {
	DefaultErrorMessage string `json:"default_error_message" yaml:"default_error_message" db:"default_error_message" validate:"required,max=4096"`
	AdminContacts       string `json:"admin_contacts" yaml:"admin_contacts" db:"admin_contacts" validate:"max=4096"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	DefaultErrorMessage *string `json:"default_error_message"`
	AdminContacts       *string `json:"admin_contacts"`
}

func (p Patch) apply(v Values) Values {
	if p.DefaultErrorMessage != nil {
		v.DefaultErrorMessage = strings.TrimSpace(*p.DefaultErrorMessage)
	}
	if p.AdminContacts != nil {
		v.AdminContacts = strings.TrimSpace(*p.AdminContacts)
	}
	return v
}

// ErrInvalid marks validation failures of an update.
var ErrInvalid = errors.New("settings: invalid values")

// Store persists Values. Load reports found=false when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (v Values, found bool, err error)
	Save(ctx context.Context, v Values) error
}

// Service serves the current values from memory and writes updates through
// to its store.
type Service struct {
	store    Store
	validate *validator.Validate

	mu      sync.Mutex
	current atomic.Pointer[Values]
}

// NewService returns a service that answers with defaults until Load runs.
func NewService(store Store, defaults Values) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.current.Store(&defaults)
	return s
}

// Load replaces the in-memory values with the stored ones; when nothing is
// stored yet the defaults are saved.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, found, err := s.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "settings: load")
	}
	if !found {
		if err := s.store.Save(ctx, *s.current.Load()); err != nil {
			return errors.Wrap(err, "settings: save defaults")
		}
		logger.Info(ctx, logger.CompSettings, "settings.seeded", slog.String("status", "ok"))
		return nil
	}
	if v.DefaultErrorMessage == "" {
		v.DefaultErrorMessage = s.current.Load().DefaultErrorMessage
	}
	s.current.Store(&v)
	logger.Info(ctx, logger.CompSettings, "settings.loaded", slog.String("status", "ok"))
	return nil
}

// Current returns a copy of the active values.
func (s *Service) Current() Values {
	return *s.current.Load()
}

// Update validates and persists a patch, then makes it active.
func (s *Service) Update(ctx context.Context, p Patch) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.apply(*s.current.Load())
	if err := s.validate.Struct(next); err != nil {
		return Values{}, errors.Mark(errors.Wrap(err, "settings: validate"), ErrInvalid)
	}
	if err := s.store.Save(ctx, next); err != nil {
		return Values{}, errors.Wrap(err, "settings: save")
	}
	s.current.Store(&next)
	logger.Info(ctx, logger.CompSettings, "settings.updated", slog.String("status", "ok"))
	return next, nil
}
