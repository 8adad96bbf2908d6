package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/neonatal/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps patient records in the patient_record table. The draft is
// stored as JSONB next to a few searchable columns.
type PGStore struct {
	pool *pgxpool.Pool
	opts storeOptions
}

func NewPGStore(pool *pgxpool.Pool, opts ...StoreOption) *PGStore {
	return &PGStore{pool: pool, opts: buildStoreOptions(opts)}
}

func (s *PGStore) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const recordCols = `id, record, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, d Draft) (int64, error) {
	if err := checkText(d); err != nil {
		return 0, err
	}
	payload, err := s.payload(d)
	if err != nil {
		return 0, storageErr("create", err)
	}
	createdAt := s.opts.timestamp()

	var id int64
	insert := func(ctx context.Context) error {
		if s.opts.unique && d.ClinicalRecordNumber != "" {
			if err := s.lockClinicalRecord(ctx, d.ClinicalRecordNumber, 0); err != nil {
				return err
			}
		}
		return s.conn(ctx).QueryRow(ctx, `
			INSERT INTO patient_record (clinical_record_number, first_name, last_name, birth_date, discharged, record, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			d.ClinicalRecordNumber, d.FirstName, d.LastName, d.Birth.Date, d.Discharged(), payload, createdAt,
		).Scan(&id)
	}

	if s.opts.unique {
		err = db.RunInTx(ctx, s.pool, insert)
	} else {
		err = insert(ctx)
	}
	if errors.Is(err, ErrDuplicateClinicalRecord) {
		return 0, err
	}
	if err != nil {
		return 0, storageErr("create", err)
	}
	return id, nil
}

// lockClinicalRecord serializes writers of one clinical record number for the
// rest of the transaction and fails if another record already uses it.
func (s *PGStore) lockClinicalRecord(ctx context.Context, number string, self int64) error {
	q := s.conn(ctx)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, number); err != nil {
		return fmt.Errorf("lock clinical record number: %w", err)
	}
	var taken bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_record WHERE clinical_record_number = $1 AND id <> $2)`,
		number, self,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check clinical record number: %w", err)
	}
	if taken {
		return ErrDuplicateClinicalRecord
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, id int64) (*PatientRecord, bool, error) {
	if id <= 0 {
		return nil, false, nil
	}
	rec, err := s.scan(s.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM patient_record WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	return rec, true, nil
}

func (s *PGStore) List(ctx context.Context) ([]*PatientRecord, error) {
	out, err := s.query(ctx, `SELECT `+recordCols+` FROM patient_record ORDER BY id`)
	return out, storageErr("list", err)
}

func (s *PGStore) FindByClinicalRecordNumber(ctx context.Context, number string) ([]*PatientRecord, error) {
	out, err := s.query(ctx, `SELECT `+recordCols+` FROM patient_record WHERE clinical_record_number = $1 ORDER BY id`, number)
	return out, storageErr("find", err)
}

func (s *PGStore) Update(ctx context.Context, id int64, d Draft) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := checkText(d); err != nil {
		return err
	}
	payload, err := s.payload(d)
	if err != nil {
		return storageErr("update", err)
	}
	updatedAt := s.opts.timestamp()

	update := func(ctx context.Context) error {
		if s.opts.unique && d.ClinicalRecordNumber != "" {
			if err := s.lockClinicalRecord(ctx, d.ClinicalRecordNumber, id); err != nil {
				return err
			}
		}
		tag, err := s.conn(ctx).Exec(ctx, `
			UPDATE patient_record SET
				clinical_record_number = $2, first_name = $3, last_name = $4, birth_date = $5,
				discharged = $6, record = $7, updated_at = $8
			WHERE id = $1`,
			id, d.ClinicalRecordNumber, d.FirstName, d.LastName, d.Birth.Date, d.Discharged(), payload, updatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}

	if s.opts.unique {
		err = db.RunInTx(ctx, s.pool, update)
	} else {
		err = update(ctx)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateClinicalRecord) {
		return err
	}
	return storageErr("update", err)
}

func (s *PGStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM patient_record WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.pool.Ping(ctx))
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) payload(d Draft) ([]byte, error) {
	sealed, err := sealDraft(s.opts.encryptor, d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed)
}

func (s *PGStore) query(ctx context.Context, sql string, args ...any) ([]*PatientRecord, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*PatientRecord{}
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) scan(row pgx.Row) (*PatientRecord, error) {
	var (
		rec       PatientRecord
		payload   []byte
		updatedAt *time.Time
	)
	if err := row.Scan(&rec.ID, &payload, &rec.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Draft); err != nil {
		return nil, fmt.Errorf("decode record %d: %w", rec.ID, err)
	}
	if err := openDraft(s.opts.encryptor, &rec.Draft); err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if updatedAt != nil {
		u := updatedAt.UTC()
		rec.UpdatedAt = &u
	}
	return &rec, nil
}
