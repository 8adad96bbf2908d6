package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/neonatal/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

// TestMain connects to NEONATAL_TEST_DATABASE_URL, or starts a postgres
// container when NEONATAL_TEST_DOCKER=1. With neither set the suite is
// skipped.
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("NEONATAL_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" && os.Getenv("NEONATAL_TEST_DOCKER") == "1" {
		var err error
		connStr, cleanup, err = startWithDocker(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
			os.Exit(1)
		}
	}
	if connStr == "" {
		fmt.Fprintln(os.Stderr, "skipping integration tests: NEONATAL_TEST_DATABASE_URL not set")
		os.Exit(0)
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// resetPatients empties the patient table and restarts its id sequence.
func resetPatients(t *testing.T) {
	t.Helper()
	_, err := globalDB.Pool.Exec(context.Background(), `TRUNCATE patient_record RESTART IDENTITY`)
	if err != nil {
		t.Fatalf("truncate patient_record: %v", err)
	}
}
