package storage

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// errRecordNotFound is returned by the low-level getters; the Manager maps it
// onto the host sentinel errors.
var errRecordNotFound = errors.New("record not found")

// Options controls how a tree database is opened
type Options struct {
	ReadOnly bool
	Timeout  time.Duration
}

// BoltDB wraps the bbolt database holding one content tree
type BoltDB struct {
	db       *bbolt.DB
	path     string
	readOnly bool
	logger   *zap.SugaredLogger
}

// NewBoltDB opens (creating if needed) the tree database at dbPath
func NewBoltDB(dbPath string, opts *Options, logger *zap.SugaredLogger) (*BoltDB, error) {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bbolt.Open(dbPath, 0644, &bbolt.Options{
		Timeout:  timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", dbPath, err)
	}

	b := &BoltDB{db: db, path: dbPath, readOnly: opts.ReadOnly, logger: logger}
	if !opts.ReadOnly {
		if err := b.initBuckets(); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Debugw("Opened tree database", "path", dbPath, "read_only", opts.ReadOnly)
	return b, nil
}

func (b *BoltDB) initBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{AssetsBucket, ClassesBucket, StructsBucket, EnumsBucket, TagsBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(MetaBucket))
		if meta.Get([]byte(SchemaVersionKey)) == nil {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, CurrentSchemaVersion)
			if err := meta.Put([]byte(SchemaVersionKey), buf); err != nil {
				return fmt.Errorf("failed to write schema version: %w", err)
			}
		}
		return nil
	})
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Path returns the database file path
func (b *BoltDB) Path() string {
	return b.path
}

func (b *BoltDB) put(bucket, key string, rec encoding.BinaryMarshaler) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", bucket, key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return bkt.Put([]byte(key), data)
	})
}

func (b *BoltDB) get(bucket, key string, rec encoding.BinaryUnmarshaler) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return errRecordNotFound
		}
		data := bkt.Get([]byte(key))
		if data == nil {
			return errRecordNotFound
		}
		return rec.UnmarshalBinary(data)
	})
}

func (b *BoltDB) keys(bucket string, prefix []byte) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

// SaveAsset writes an asset record
func (b *BoltDB) SaveAsset(rec *AssetRecord) error {
	return b.put(AssetsBucket, rec.Path, rec)
}

// GetAsset reads an asset record by path
func (b *BoltDB) GetAsset(path string) (*AssetRecord, error) {
	var rec AssetRecord
	if err := b.get(AssetsBucket, path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAssetPaths returns asset paths with the given prefix, sorted
func (b *BoltDB) ListAssetPaths(prefix string) ([]string, error) {
	return b.keys(AssetsBucket, []byte(prefix))
}

// SaveClass writes a class record
func (b *BoltDB) SaveClass(rec *ClassRecord) error {
	return b.put(ClassesBucket, rec.Path, rec)
}

// GetClass reads a class record
func (b *BoltDB) GetClass(path string) (*ClassRecord, error) {
	var rec ClassRecord
	if err := b.get(ClassesBucket, path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListClassPaths returns every class path
func (b *BoltDB) ListClassPaths() ([]string, error) {
	return b.keys(ClassesBucket, nil)
}

// SaveStruct writes a struct type record
func (b *BoltDB) SaveStruct(rec *StructRecord) error {
	return b.put(StructsBucket, rec.Type, rec)
}

// GetStruct reads a struct type record
func (b *BoltDB) GetStruct(typ string) (*StructRecord, error) {
	var rec StructRecord
	if err := b.get(StructsBucket, typ, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListStructTypes returns every struct type name
func (b *BoltDB) ListStructTypes() ([]string, error) {
	return b.keys(StructsBucket, nil)
}

// SaveEnum writes an enum record
func (b *BoltDB) SaveEnum(rec *EnumRecord) error {
	return b.put(EnumsBucket, rec.Type, rec)
}

// GetEnum reads an enum record
func (b *BoltDB) GetEnum(typ string) (*EnumRecord, error) {
	var rec EnumRecord
	if err := b.get(EnumsBucket, typ, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEnumTypes returns every enum type name
func (b *BoltDB) ListEnumTypes() ([]string, error) {
	return b.keys(EnumsBucket, nil)
}

// SaveTag registers a gameplay tag
func (b *BoltDB) SaveTag(name string) error {
	return b.put(TagsBucket, name, &TagRecord{Name: name, Created: time.Now()})
}

// HasTag reports whether a tag is registered
func (b *BoltDB) HasTag(name string) (bool, error) {
	var rec TagRecord
	err := b.get(TagsBucket, name, &rec)
	if errors.Is(err, errRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListTags returns every registered tag
func (b *BoltDB) ListTags() ([]string, error) {
	return b.keys(TagsBucket, nil)
}

// GetSchemaVersion returns the stored schema version
func (b *BoltDB) GetSchemaVersion() (uint64, error) {
	var version uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(MetaBucket))
		if meta == nil {
			return errRecordNotFound
		}
		data := meta.Get([]byte(SchemaVersionKey))
		if len(data) != 8 {
			return errRecordNotFound
		}
		version = binary.BigEndian.Uint64(data)
		return nil
	})
	return version, err
}

// Backup copies the database to destPath in a consistent snapshot
func (b *BoltDB) Backup(destPath string) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(destPath, 0600)
	})
}
