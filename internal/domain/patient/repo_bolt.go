package patient

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	// byClinicalRecord keys are a 4-byte big-endian length, the number, then
	// the 8-byte big-endian id. The length keeps one number's prefix range
	// from covering another number.
	byClinicalRecord = []byte("by_clinical_record")
)

// BoltStore keeps patient records in a single bbolt file. bbolt allows one
// writer at a time, which serializes id assignment, and fsyncs each commit.
type BoltStore struct {
	db   *bolt.DB
	opts storeOptions
}

// storedRecord is the on-disk value. The id is the bucket key.
type storedRecord struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Draft     Draft      `json:"draft"`
}

// OpenBoltStore opens or creates the store file at path.
func OpenBoltStore(path string, opts ...StoreOption) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, storageErr("open", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("%s: %w", path, err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, byClinicalRecord} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, storageErr("open", err)
	}

	return &BoltStore{db: db, opts: buildStoreOptions(opts)}, nil
}

func (s *BoltStore) Create(ctx context.Context, d Draft) (int64, error) {
	if err := checkText(d); err != nil {
		return 0, err
	}
	sealed, err := sealDraft(s.opts.encryptor, d)
	if err != nil {
		return 0, storageErr("create", err)
	}
	rec := storedRecord{CreatedAt: s.opts.timestamp(), Draft: sealed}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, storageErr("create", err)
	}

	var id uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(byClinicalRecord)

		if s.opts.unique && d.ClinicalRecordNumber != "" && clinicalRecordTaken(index, d.ClinicalRecordNumber, 0) {
			return ErrDuplicateClinicalRecord
		}

		seq, err := records.NextSequence()
		if err != nil {
			return err
		}
		if err := records.Put(itob(seq), data); err != nil {
			return err
		}
		if err := index.Put(indexKey(d.ClinicalRecordNumber, seq), itob(seq)); err != nil {
			return err
		}
		id = seq
		return nil
	})
	if errors.Is(err, ErrDuplicateClinicalRecord) {
		return 0, err
	}
	if err != nil {
		return 0, storageErr("create", err)
	}
	return int64(id), nil
}

func (s *BoltStore) GetByID(ctx context.Context, id int64) (*PatientRecord, bool, error) {
	if id <= 0 {
		return nil, false, nil
	}

	var rec *PatientRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get(itob(uint64(id)))
		if v == nil {
			return nil
		}
		r, err := s.decode(uint64(id), v)
		rec = r
		return err
	})
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	return rec, rec != nil, nil
}

func (s *BoltStore) List(ctx context.Context) ([]*PatientRecord, error) {
	out := []*PatientRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		// Big-endian keys iterate in id order.
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			rec, err := s.decode(binary.BigEndian.Uint64(k), v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

func (s *BoltStore) Update(ctx context.Context, id int64, d Draft) error {
	if id <= 0 {
		return ErrNotFound
	}
	if err := checkText(d); err != nil {
		return err
	}
	sealed, err := sealDraft(s.opts.encryptor, d)
	if err != nil {
		return storageErr("update", err)
	}
	now := s.opts.timestamp()

	err = s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(byClinicalRecord)
		key := itob(uint64(id))

		v := records.Get(key)
		if v == nil {
			return ErrNotFound
		}
		var prev storedRecord
		if err := json.Unmarshal(v, &prev); err != nil {
			return fmt.Errorf("decode record %d: %w", id, err)
		}

		number := d.ClinicalRecordNumber
		if s.opts.unique && number != "" && clinicalRecordTaken(index, number, uint64(id)) {
			return ErrDuplicateClinicalRecord
		}

		data, err := json.Marshal(storedRecord{CreatedAt: prev.CreatedAt, UpdatedAt: &now, Draft: sealed})
		if err != nil {
			return err
		}
		if err := records.Put(key, data); err != nil {
			return err
		}
		if prev.Draft.ClinicalRecordNumber != number {
			if err := index.Delete(indexKey(prev.Draft.ClinicalRecordNumber, uint64(id))); err != nil {
				return err
			}
			if err := index.Put(indexKey(number, uint64(id)), key); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateClinicalRecord) {
		return err
	}
	return storageErr("update", err)
}

func (s *BoltStore) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		key := itob(uint64(id))

		v := records.Get(key)
		if v == nil {
			return ErrNotFound
		}
		var prev storedRecord
		if err := json.Unmarshal(v, &prev); err != nil {
			return fmt.Errorf("decode record %d: %w", id, err)
		}
		if err := records.Delete(key); err != nil {
			return err
		}
		return tx.Bucket(byClinicalRecord).Delete(indexKey(prev.Draft.ClinicalRecordNumber, uint64(id)))
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return storageErr("delete", err)
}

func (s *BoltStore) FindByClinicalRecordNumber(ctx context.Context, number string) ([]*PatientRecord, error) {
	out := []*PatientRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		prefix := indexPrefix(number)
		c := tx.Bucket(byClinicalRecord).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			raw := records.Get(v)
			if raw == nil {
				continue
			}
			rec, err := s.decode(binary.BigEndian.Uint64(v), raw)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("find", err)
	}
	return out, nil
}

// Ping fails once the store is closed.
func (s *BoltStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.db.View(func(tx *bolt.Tx) error { return nil }))
}

func (s *BoltStore) Close() error {
	return storageErr("close", s.db.Close())
}

// Snapshot writes a consistent copy of the database file to w.
func (s *BoltStore) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, storageErr("snapshot", err)
}

func (s *BoltStore) decode(id uint64, v []byte) (*PatientRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(v, &stored); err != nil {
		return nil, fmt.Errorf("decode record %d: %w", id, err)
	}
	if err := openDraft(s.opts.encryptor, &stored.Draft); err != nil {
		return nil, fmt.Errorf("record %d: %w", id, err)
	}
	return &PatientRecord{
		ID:        int64(id),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
		Draft:     stored.Draft,
	}, nil
}

// clinicalRecordTaken reports whether a record other than self uses number.
func clinicalRecordTaken(index *bolt.Bucket, number string, self uint64) bool {
	prefix := indexPrefix(number)
	c := index.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if binary.BigEndian.Uint64(v) != self {
			return true
		}
	}
	return false
}

func indexPrefix(number string) []byte {
	b := make([]byte, 4, 4+len(number)+8)
	binary.BigEndian.PutUint32(b, uint32(len(number)))
	return append(b, number...)
}

func indexKey(number string, id uint64) []byte {
	return append(indexPrefix(number), itob(id)...)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
