package migrations

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/data/database"
)

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Parallel()

	if err := Migrate(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error when database is nil")
	}
}

func TestMigrateCreatesEveryTable(t *testing.T) {
	t.Parallel()

	gormDB, err := database.Open(database.Options{Path: filepath.Join(t.TempDir(), "schema.db")})
	if err != nil {
		t.Fatalf("database.Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := database.Close(gormDB); closeErr != nil {
			t.Errorf("closing database failed: %v", closeErr)
		}
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	for attempt := 0; attempt < 2; attempt++ {
		if err := Migrate(context.Background(), gormDB, logger); err != nil {
			t.Fatalf("Migrate attempt %d returned error: %v", attempt+1, err)
		}
	}

	for _, table := range []string{"pages", "edits", "identities", "identity_edits"} {
		if !gormDB.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}
