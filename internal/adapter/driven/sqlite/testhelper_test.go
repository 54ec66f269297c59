package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if _, err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func strPtr(s string) *string { return &s }

// seedEcosystem creates an ecosystem and returns its id.
func seedEcosystem(t *testing.T, db *DB, name string) int64 {
	t.Helper()

	eco, err := NewEcosystemRepo(db).Create(context.Background(), model.Ecosystem{
		Name:         name,
		Theme:        "Culture",
		ActiveStatus: true,
	})
	if err != nil {
		t.Fatalf("seed ecosystem %q: %v", name, err)
	}
	return eco.ID
}

// seedPlatform registers a platform with ciphertext-like placeholder secrets.
func seedPlatform(t *testing.T, db *DB, ecosystemID int64, name, platformType string) *model.PlatformCredential {
	t.Helper()

	p, err := NewPlatformRepo(db).Create(context.Background(), model.NewPlatform{
		EcosystemID: ecosystemID,
		Name:        name,
		Type:        platformType,
		Username:    strPtr("enc-user"),
		Password:    strPtr("enc-pass"),
		ProfileID:   "prof-1",
	})
	if err != nil {
		t.Fatalf("seed platform %q: %v", name, err)
	}
	return p
}
