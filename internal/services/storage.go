package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/huangang/condovote/internal/config"
	"google.golang.org/api/option"
)

// FileStorage persists proxy documents and returns a retrievable reference
type FileStorage interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	Close() error
}

// NewFileStorage builds the backend selected by cfg.Driver
func NewFileStorage(ctx context.Context, cfg *config.StorageConfig) (FileStorage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.Dir, cfg.BaseURL)
	case "gcs":
		return NewGCSStorage(ctx, cfg.Bucket, cfg.CredentialsFile, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// objectName returns a collision-free name keeping the original extension
func objectName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return time.Now().UTC().Format("2006/01/") + uuid.New().String() + ext
}

// LocalStorage writes documents under a directory served at baseURL
type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the root directory documents are written to
func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	obj := objectName(name)
	full := filepath.Join(s.dir, filepath.FromSlash(obj))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", err
	}
	return s.baseURL + "/" + obj, nil
}

func (s *LocalStorage) Close() error {
	return nil
}

// GCSStorage writes documents to a Google Cloud Storage bucket
type GCSStorage struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	baseURL string
}

func NewGCSStorage(ctx context.Context, bucket, credentialsFile, baseURL string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, errors.New("gcs storage: bucket not set")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: failed in creating storage client: %w", err)
	}

	if baseURL == "" {
		baseURL = "gs://" + bucket
	}
	return &GCSStorage{
		client:  client,
		bucket:  client.Bucket(bucket),
		name:    bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *GCSStorage) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	obj := path.Join("proxy-documents", objectName(name))
	w := s.bucket.Object(obj).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs storage: write %s: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs storage: close %s: %w", obj, err)
	}
	return s.baseURL + "/" + obj, nil
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}
