package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/tradingtool/kitetoken/internal/localconfig"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "access_token")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	if _, err := store.Read(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read() before Write: expected os.ErrNotExist, got %v", err)
	}

	if err := store.Write(ctx, " acc3ss \n"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %04o, want 0600", info.Mode().Perm())
	}

	data, _ := os.ReadFile(path)
	if string(data) != "acc3ss\n" {
		t.Errorf("file content = %q", data)
	}

	token, err := store.Read(ctx)
	if err != nil || token != "acc3ss" {
		t.Fatalf("Read() = %q, %v", token, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access_token")
	if err := os.WriteFile(path, []byte("acc3ss"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatal(err)
	}

	store, _ := NewFileStore(path)
	_, err := store.Read(context.Background())
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected insecure permissions error, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") should fail")
	}
	if _, err := NewLocalConfigStore(""); err == nil {
		t.Error("NewLocalConfigStore(\"\") should fail")
	}
	if _, err := NewKeyringStore("", "user"); err == nil {
		t.Error("NewKeyringStore with empty service should fail")
	}
	if _, err := NewKeyringStore("service", ""); err == nil {
		t.Error("NewKeyringStore with empty user should fail")
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store, err := NewKeyringStore("kitetoken", "alice")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Read(ctx); !errors.Is(err, keyring.ErrNotFound) {
		t.Fatalf("Read() before Write: expected keyring.ErrNotFound, got %v", err)
	}

	if err := store.Write(ctx, "acc3ss"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	token, err := store.Read(ctx)
	if err != nil || token != "acc3ss" {
		t.Fatalf("Read() = %q, %v", token, err)
	}
}

func TestLocalConfigStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "localconfig.yaml")
	original := "kite:\n  apiKey: \"X\"\n  apiSecret: \"Y\"\n  accessToken: \"\"\ntelegram:\n  chatId: 42\n"
	if err := os.WriteFile(path, []byte(original), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewLocalConfigStore(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Read(ctx); err == nil {
		t.Fatal("Read() of empty accessToken should fail")
	}

	if err := store.Write(ctx, "Z"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := strings.Replace(original, `accessToken: ""`, `accessToken: "Z"`, 1)
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}

	token, err := store.Read(ctx)
	if err != nil || token != "Z" {
		t.Fatalf("Read() = %q, %v", token, err)
	}
}

func TestLocalConfigStoreMissingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localconfig.yaml")
	if err := os.WriteFile(path, []byte("apiKey: X\n"), 0600); err != nil {
		t.Fatal(err)
	}

	store, _ := NewLocalConfigStore(path)
	if err := store.Write(context.Background(), "Z"); !errors.Is(err, localconfig.ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestStoresHonorCancellation(t *testing.T) {
	keyring.MockInit()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	fileStore, _ := NewFileStore(filepath.Join(dir, "token"))
	configStore, _ := NewLocalConfigStore(filepath.Join(dir, "localconfig.yaml"))
	keyringStore, _ := NewKeyringStore("kitetoken", "alice")

	for _, store := range []TokenStore{fileStore, configStore, keyringStore} {
		if err := store.Write(ctx, "Z"); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: Write() expected context.Canceled, got %v", store, err)
		}
		if _, err := store.Read(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: Read() expected context.Canceled, got %v", store, err)
		}
	}
}
