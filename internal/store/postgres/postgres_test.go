package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/ngageoint/scale/internal/common/database"
	"github.com/ngageoint/scale/internal/store"
	"github.com/ngageoint/scale/internal/store/storetest"
)

func TestStore(t *testing.T) {
	if !database.TestDbAvailable() {
		t.Skipf("%s not set", database.TestDbEnvVar)
	}
	migrations, err := Migrations()
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T, action func(s store.Store)) {
		err := database.WithTestDb(migrations, func(db *pgxpool.Pool) error {
			action(New(db, clock.NewFakeClock(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC))))
			return nil
		})
		require.NoError(t, err)
	})
}

func TestMigrations(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
}
