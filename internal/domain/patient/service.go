package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConfirmed means a record was written but could not be read back.
var ErrNotConfirmed = errors.New("patient record saved but not confirmed")

// Redirect tells the caller where to send the user and after how long.
type Redirect struct {
	Path  string
	Delay time.Duration
}

// NotFoundError is returned by Detail and Get for an unknown id.
type NotFoundError struct {
	ID       int64
	Redirect Redirect
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("patient %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnconfirmedError is returned by Intake when the new record does not read
// back. The record may still exist; Redirect points at its detail page.
type UnconfirmedError struct {
	ID       int64
	Redirect Redirect
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("patient %d saved but could not be retrieved", e.ID)
}

func (e *UnconfirmedError) Is(target error) bool { return target == ErrNotConfirmed }

// IntakeResult is the outcome of a confirmed intake.
type IntakeResult struct {
	ID     int64          `json:"id"`
	Record *PatientRecord `json:"record"`
	Detail *DetailView    `json:"detail"`
}

type Service struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
	loc      *time.Location

	notFoundDelay    time.Duration
	unconfirmedDelay time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used for calendar arithmetic.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRedirectDelays overrides the grace periods before the not-found and
// unconfirmed redirects.
func WithRedirectDelays(notFound, unconfirmed time.Duration) Option {
	return func(s *Service) {
		s.notFoundDelay = notFound
		s.unconfirmedDelay = unconfirmed
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		notifier:         nopNotifier{},
		logger:           zerolog.Nop(),
		now:              time.Now,
		loc:              time.Local,
		notFoundDelay:    1500 * time.Millisecond,
		unconfirmedDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// NewDraft returns a draft seeded from the service clock.
func (s *Service) NewDraft() Draft {
	return NewDraft(s.clock())
}

// Intake validates d, persists it and reads it back. On success the result
// carries the stored record and its detail view.
//
// A record that is written but not found on re-read yields an
// UnconfirmedError together with a result holding only the id.
func (s *Service) Intake(ctx context.Context, d Draft) (*IntakeResult, error) {
	if err := Validate(d); err != nil {
		s.notifier.Error(ctx, MsgInvalidSubmission)
		return nil, err
	}

	now := s.clock()
	id, err := s.store.Create(ctx, d.Finalize(now))
	if err != nil {
		if errors.Is(err, ErrDuplicateClinicalRecord) {
			s.notifier.Error(ctx, MsgDuplicateRecord)
			return nil, err
		}
		s.logger.Error().Err(err).Msg("create patient record")
		s.notifier.Error(ctx, MsgSaveFailed)
		return nil, err
	}

	rec, found, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("confirm patient record")
		s.notifier.Error(ctx, MsgSaveFailed)
		return &IntakeResult{ID: id}, err
	}
	if !found {
		s.notifier.Error(ctx, MsgConfirmFailed)
		return &IntakeResult{ID: id}, &UnconfirmedError{
			ID:       id,
			Redirect: Redirect{Path: detailPath(id), Delay: s.unconfirmedDelay},
		}
	}

	s.notifier.Success(ctx, MsgRegistered)
	return &IntakeResult{ID: id, Record: rec, Detail: BuildDetailView(rec, now)}, nil
}

// Get returns the stored record for id.
func (s *Service) Get(ctx context.Context, id int64) (*PatientRecord, error) {
	rec, found, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("load patient record")
		s.notifier.Error(ctx, MsgLoadFailed)
		return nil, err
	}
	if !found {
		s.notifier.Error(ctx, MsgNotFound)
		return nil, s.notFound(id)
	}
	return rec, nil
}

// Detail returns the display view of record id as of now.
func (s *Service) Detail(ctx context.Context, id int64) (*DetailView, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildDetailView(rec, s.clock()), nil
}

func (s *Service) List(ctx context.Context) ([]*PatientRecord, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list patient records")
		return nil, err
	}
	return recs, nil
}

// ListView returns index rows for every record, or for the records with the
// given clinical record number when number is non-empty.
func (s *Service) ListView(ctx context.Context, number string) ([]ListItem, error) {
	var (
		recs []*PatientRecord
		err  error
	)
	if number = strings.TrimSpace(number); number != "" {
		recs, err = s.FindByClinicalRecordNumber(ctx, number)
	} else {
		recs, err = s.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	now := s.clock()
	items := make([]ListItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, BuildListItem(rec, now))
	}
	return items, nil
}

func (s *Service) FindByClinicalRecordNumber(ctx context.Context, number string) ([]*PatientRecord, error) {
	recs, err := s.store.FindByClinicalRecordNumber(ctx, number)
	if err != nil {
		s.logger.Error().Err(err).Str("clinical_record_number", number).Msg("find patient records")
		return nil, err
	}
	return recs, nil
}

// Update replaces record id with d and returns the stored result. The
// days-of-life snapshot is refreezed against the current clock.
func (s *Service) Update(ctx context.Context, id int64, d Draft) (*PatientRecord, error) {
	if err := Validate(d); err != nil {
		s.notifier.Error(ctx, MsgInvalidSubmission)
		return nil, err
	}

	err := s.store.Update(ctx, id, d.Finalize(s.clock()))
	switch {
	case errors.Is(err, ErrNotFound):
		s.notifier.Error(ctx, MsgNotFound)
		return nil, s.notFound(id)
	case errors.Is(err, ErrDuplicateClinicalRecord):
		s.notifier.Error(ctx, MsgDuplicateRecord)
		return nil, err
	case err != nil:
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("update patient record")
		s.notifier.Error(ctx, MsgSaveFailed)
		return nil, err
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifier.Success(ctx, MsgUpdated)
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		s.notifier.Error(ctx, MsgNotFound)
		return s.notFound(id)
	case err != nil:
		s.logger.Error().Err(err).Int64("patient_id", id).Msg("delete patient record")
		s.notifier.Error(ctx, MsgSaveFailed)
		return err
	}
	s.notifier.Success(ctx, MsgDeleted)
	return nil
}

func (s *Service) notFound(id int64) *NotFoundError {
	return &NotFoundError{ID: id, Redirect: Redirect{Path: "/", Delay: s.notFoundDelay}}
}

func detailPath(id int64) string {
	return fmt.Sprintf("/patients/%d", id)
}
