package database

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/util"
)

// TestDbEnvVar must be set to a libpq connection string for tests that need postgres, e.g.
// "host=localhost port=5432 user=postgres password=psw sslmode=disable".
const TestDbEnvVar = "SCALE_TEST_POSTGRES"

// TestDbAvailable returns true if tests that need a real postgres instance can run.
func TestDbAvailable() bool {
	return os.Getenv(TestDbEnvVar) != ""
}

// WithTestDb spins up a dedicated Postgres database for testing
//
//	migrations: perform the list of migrations before entering the action callback
//	action: callback for client code
func WithTestDb(migrations []Migration, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()
	connectionString := os.Getenv(TestDbEnvVar)
	if connectionString == "" {
		return errors.Errorf("%s is not set", TestDbEnvVar)
	}

	// Connect and create a dedicated database for the test
	dbName := "test_" + util.NewULID()
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	// Connect again: this time to the database we just created. This is the database we use for tests
	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		testDbPool.Close()
		// disconnect all db user before cleanup
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	err = UpdateDatabase(ctx, testDbPool, migrations)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(testDbPool)
}
