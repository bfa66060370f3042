package services

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/huangang/condovote/internal/config"
)

func TestObjectName(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}/\d{2}/[0-9a-f-]{36}\.pdf$`)
	a := objectName("Procuração.PDF")
	if !re.MatchString(a) {
		t.Errorf("objectName() = %q, expected YYYY/MM/<uuid>.pdf", a)
	}
	if b := objectName("Procuração.PDF"); a == b {
		t.Error("objectName() returned the same name twice")
	}
	if n := objectName("noext"); strings.Contains(filepath.Base(n), ".") {
		t.Errorf("objectName(noext) = %q, expected no extension", n)
	}
}

func TestLocalStorage_Save(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "docs"), "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	defer s.Close()

	url, err := s.Save(context.Background(), "proxy.png", strings.NewReader("content"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/") || strings.HasPrefix(url, "/uploads//") {
		t.Errorf("url = %q, expected a single /uploads/ prefix", url)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), filepath.FromSlash(strings.TrimPrefix(url, "/uploads/"))))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "content" {
		t.Errorf("stored %q, expected %q", data, "content")
	}
}

func TestNewFileStorage(t *testing.T) {
	fs, err := NewFileStorage(context.Background(), &config.StorageConfig{Dir: t.TempDir(), BaseURL: "/uploads"})
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}
	if _, ok := fs.(*LocalStorage); !ok {
		t.Errorf("default driver built %T, expected *LocalStorage", fs)
	}

	if _, err := NewFileStorage(context.Background(), &config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Error("unknown driver should fail")
	}
	if _, err := NewGCSStorage(context.Background(), "", "", ""); err == nil {
		t.Error("gcs without a bucket should fail")
	}
}
