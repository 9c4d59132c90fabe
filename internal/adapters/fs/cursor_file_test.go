package fs

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestCursorFile_LoadMissing(t *testing.T) {
	repo := NewCursorFileRepository(t.TempDir())
	got, err := repo.Load(context.Background(), "testsat")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Load() = %v, want zero", got)
	}
}

func TestCursorFile_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/state"
	repo := NewCursorFileRepository(dir)

	at := time.Date(2024, 3, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	if err := repo.Save(ctx, "testsat", at); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "othersat", at.Add(time.Hour)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := NewCursorFileRepository(dir)
	got, err := reopened.Load(ctx, "testsat")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(at) || got.Location() != time.UTC {
		t.Errorf("Load() = %v, want %v in UTC", got, at)
	}
	other, _ := reopened.Load(ctx, "othersat")
	if !other.Equal(at.Add(time.Hour)) {
		t.Errorf("othersat cursor = %v", other)
	}

	if _, err := os.Stat(repo.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}
	info, err := os.Stat(repo.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestCursorFile_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	repo := NewCursorFileRepository(dir)
	if err := os.WriteFile(repo.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Load(context.Background(), "testsat"); err == nil {
		t.Error("expected error for corrupt cursor file")
	}
}
