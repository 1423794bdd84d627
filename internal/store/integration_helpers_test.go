//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nittei/nittei/internal/database"
	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

// testDB connects to TEST_DATABASE_URL and runs migrations, skipping the
// test when the variable is not set.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := database.New(ctx, dbURL)
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx), "failed to run migrations")
	return db
}

// testTenant is one account with a user and a calendar, removed (with
// everything that cascades from it) when the test ends.
type testTenant struct {
	Account  *domain.Account
	User     *domain.User
	Calendar *domain.Calendar
}

func newTestTenant(t *testing.T, pool *pgxpool.Pool) *testTenant {
	t.Helper()
	ctx := context.Background()

	account := domain.NewAccount()
	require.NoError(t, store.NewAccountStore(pool).Insert(ctx, account))
	t.Cleanup(func() {
		cleanupTestAccount(t, pool, account.ID)
	})

	user := domain.NewUser(account.ID)
	require.NoError(t, store.NewUserStore(pool, nil).Insert(ctx, user))

	calendar := domain.NewCalendar(user.ID, account.ID)
	require.NoError(t, store.NewCalendarStore(pool).Insert(ctx, calendar))

	return &testTenant{Account: account, User: user, Calendar: calendar}
}

func cleanupTestAccount(t *testing.T, pool *pgxpool.Pool, accountID uuid.UUID) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		t.Errorf("failed to clean up test account: %v", err)
	}
}

// insertEvent persists a minimal event in the tenant's calendar and
// returns it. The caller mutates the fields it cares about first.
func (tt *testTenant) insertEvent(t *testing.T, pool *pgxpool.Pool, event *domain.CalendarEvent) *domain.CalendarEvent {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	event.ID = uuid.New()
	event.AccountID = tt.Account.ID
	event.UserID = tt.User.ID
	event.CalendarID = tt.Calendar.ID
	if event.Created.IsZero() {
		event.Created = now
	}
	if event.Updated.IsZero() {
		event.Updated = now
	}
	if event.Status == "" {
		event.Status = domain.StatusConfirmed
	}
	require.NoError(t, store.NewEventStore(pool).Insert(context.Background(), event))
	return event
}
