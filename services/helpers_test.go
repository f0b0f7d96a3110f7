package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cppla/relay/config"
	"github.com/cppla/relay/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db, models.All()...))
	return db
}

func newTestUsers(t *testing.T, db *gorm.DB) *UserService {
	t.Helper()
	return NewUserService(db, bcrypt.MinCost)
}

// steppedClock returns a clock that advances one second on every call.
func steppedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func mustRegister(t *testing.T, users *UserService, username, email string) *models.User {
	t.Helper()
	u, err := users.Create(context.Background(), RegisterInput{
		Username:  username,
		Email:     email,
		Password:  "secret1",
		FirstName: "First",
		LastName:  "Last",
	})
	require.NoError(t, err)
	return u
}
