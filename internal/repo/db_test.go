package repo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reactions-backend/internal/config"
	"github.com/tbourn/go-reactions-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile â€¦ cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Module{}, &domain.OptionCounter{}, &domain.UserReaction{}, &domain.VoteToken{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	ctx := context.Background()
	if err := IncrementOption(ctx, db, "reactions_d", "m1", "up", 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := SaveToken(ctx, db, domain.VoteToken{Collection: "tokens_d", UserID: "u1", TokenID: "t1", IssuedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save token: %v", err)
	}
	got, err := FindModule(ctx, db, "reactions_d", "m1")
	if err != nil || got.Options["up"] != 1 {
		t.Fatalf("readback module failed: err=%v got=%+v", err, got)
	}
}

func TestOpen_SQLiteDriverAttachesTracing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	db, err := Open(config.StoreConfig{Driver: config.DriverSQLite, DBPath: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if _, ok := db.Config.Plugins["otelgorm"]; !ok {
		t.Fatalf("expected tracing plugin to be registered, got %v", db.Config.Plugins)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.StoreConfig{Driver: config.DriverMongo}); err == nil {
		t.Fatalf("expected error for non-SQL driver")
	}
}

func TestOpenSQLite_LoggerSkipsNotFound(t *testing.T) {
	var buf bytes.Buffer
	prev := sqlLogOutput
	sqlLogOutput = &buf
	t.Cleanup(func() { sqlLogOutput = prev })

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "quiet.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	buf.Reset()

	ctx := context.Background()
	if _, err := FindToken(ctx, db, "tokens_a.com", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindToken: want ErrNotFound, got %v", err)
	}
	if _, err := FindReaction(ctx, db, "reactions_a.com", "m1", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindReaction: want ErrNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("record-not-found must not be logged, got:\n%s", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatalf("expected error for missing table")
	}
	if !strings.Contains(buf.String(), "no_such_table") {
		t.Fatalf("real SQL errors must still be logged, got %q", buf.String())
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
