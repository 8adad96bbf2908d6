package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/neonatal/internal/platform/phi"
)

var (
	// ErrStorageUnavailable is matched by every infrastructure failure.
	ErrStorageUnavailable = errors.New("patient storage unavailable")
	// ErrNotFound is returned by Update and Delete for an unknown id.
	ErrNotFound = errors.New("patient record not found")
	// ErrDuplicateClinicalRecord is returned when uniqueness is enforced and
	// the clinical record number is already registered.
	ErrDuplicateClinicalRecord = errors.New("clinical record number already registered")
)

// StorageError wraps an infrastructure failure with the store operation that
// hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("patient store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store persists patient records. Ids are assigned by the store, increase
// monotonically and are never reissued, even after a delete. A record is
// durable when Create returns. Create and Update refuse text they could not
// store byte for byte with a *ValidationError.
type Store interface {
	Create(ctx context.Context, d Draft) (int64, error)
	// GetByID reports absence through found; it errors only on
	// infrastructure failure. Non-positive ids are simply absent.
	GetByID(ctx context.Context, id int64) (rec *PatientRecord, found bool, err error)
	// List returns every record in ascending id order.
	List(ctx context.Context) ([]*PatientRecord, error)
	Update(ctx context.Context, id int64, d Draft) error
	Delete(ctx context.Context, id int64) error
	FindByClinicalRecordNumber(ctx context.Context, number string) ([]*PatientRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

type storeOptions struct {
	unique    bool
	encryptor phi.FieldEncryptor
	now       func() time.Time
}

type StoreOption func(*storeOptions)

// WithUniqueClinicalRecord makes Create and Update reject a clinical record
// number that another record already uses.
func WithUniqueClinicalRecord(enforce bool) StoreOption {
	return func(o *storeOptions) { o.unique = enforce }
}

// WithEncryptor encrypts identifying fields at rest. A nil encryptor stores
// them in the clear.
func WithEncryptor(enc phi.FieldEncryptor) StoreOption {
	return func(o *storeOptions) { o.encryptor = enc }
}

// WithStoreClock overrides the clock used for created/updated timestamps.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o storeOptions) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}
