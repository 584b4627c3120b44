package ostore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config configures the object store
type Config struct {
	Endpoint  string // host:port of the S3 compatible service
	AccessKey string
	SecretKey string
	Secure    bool // use https

	Bucket  string
	Prefix  string        // prepended to every object name, e.g. "xkv/"
	Timeout time.Duration // bound of a single request (0 = no bound)
}

type storeImpl struct {
	client *minio.Client
	cfg    Config
}

// NewObjectStore creates a store.IStore keeping one object per key in a bucket.
// The bucket has to exist.
func NewObjectStore(client *minio.Client, cfg Config) store.IStore {
	return &storeImpl{client: client, cfg: cfg}
}

// NewObjectStoreFromConfig creates the minio client from cfg and returns a store on top of it.
func NewObjectStoreFromConfig(cfg Config) (store.IStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", cfg.Endpoint, err)
	}
	return NewObjectStore(client, cfg), nil
}

// objectName maps a key to its object name. Hex keeps the byte order of the keys,
// so listing a prefix returns the keys sorted.
func objectName(root string, key []byte) string {
	return root + hex.EncodeToString(key)
}

// keyOf is the inverse of objectName
func keyOf(root, name string) ([]byte, error) {
	if !strings.HasPrefix(name, root) {
		return nil, fmt.Errorf("object %q is outside of %q", name, root)
	}
	return hex.DecodeString(name[len(root):])
}

func (s *storeImpl) ctx() (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(context.Background(), s.cfg.Timeout)
	}
	return context.WithCancel(context.Background())
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func errorOf(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return store.NewError(store.RetCTimeout, fmt.Sprintf("%s: %v", op, err))
	case minio.ToErrorResponse(err).Code == "NoSuchBucket":
		return store.NewError(store.RetCUnavailable, fmt.Sprintf("%s: %v", op, err))
	default:
		return store.NewError(store.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key []byte, value []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName(s.cfg.Prefix, key),
		bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return errorOf("PutObject", err)
	}
	return nil
}

func (s *storeImpl) Delete(key []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()

	err := s.client.RemoveObject(ctx, s.cfg.Bucket, objectName(s.cfg.Prefix, key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return errorOf("RemoveObject", err)
	}
	return nil
}

func (s *storeImpl) get(ctx context.Context, name string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, errorOf("GetObject", err)
	}
	defer obj.Close()

	// the request is sent lazily, a missing object shows up as read error
	val, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errorOf("GetObject", err)
	}
	return val, true, nil
}

func (s *storeImpl) Get(key []byte) ([]byte, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.get(ctx, objectName(s.cfg.Prefix, key))
}

func (s *storeImpl) Has(key []byte) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.StatObject(ctx, s.cfg.Bucket, objectName(s.cfg.Prefix, key), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errorOf("StatObject", err)
	}
	return true, nil
}

// Scan lists the objects of the prefix and fetches them one by one.
// Objects deleted between listing and fetching are skipped.
func (s *storeImpl) Scan(prefix []byte) ([]store.KV, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var pairs []store.KV
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    objectName(s.cfg.Prefix, prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errorOf("ListObjects", obj.Err)
		}
		key, err := keyOf(s.cfg.Prefix, obj.Key)
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		val, ok, err := s.get(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			pairs = append(pairs, store.KV{Key: key, Value: val})
		}
	}

	// listings are in object name order, sort anyway for services that don't guarantee it
	store.SortKV(pairs)
	return pairs, nil
}

// GetDBInfo counts the objects below the prefix, which lists the whole prefix.
func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	info := db.DatabaseInfo{
		DbType: db.ImplObject,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas, db.FeatureScan, db.FeatureOrderedScan,
		},
		Metadata: &struct {
			Endpoint string `json:"endpoint"`
			Bucket   string `json:"bucket"`
			Prefix   string `json:"prefix"`
		}{s.client.EndpointURL().Host, s.cfg.Bucket, s.cfg.Prefix},
	}
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: s.cfg.Prefix, Recursive: true}) {
		if obj.Err != nil {
			return db.DatabaseInfo{}, errorOf("ListObjects", obj.Err)
		}
		info.Entries++
		info.SizeBytes += int(obj.Size)
	}
	return info, nil
}
