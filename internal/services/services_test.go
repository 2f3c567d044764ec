package services

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"expense-api/internal/lib/logger"
	"expense-api/internal/storage"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fixture struct {
	db         *storage.DB
	verifier   *Verifier
	directory  *Directory
	categories *Categories
	ledger     *Ledger
	budgets    *Budgets
}

func newFixture(t *testing.T, opts ...VerifierOption) *fixture {
	t.Helper()

	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { db.Close() })

	log := logger.Discard()
	v := NewVerifier(testSecret, DefaultVerificationMaxAge, opts...)
	return &fixture{
		db:         db,
		verifier:   v,
		directory:  NewDirectory(log, db, v, "http://localhost:3000/"),
		categories: NewCategories(log, db),
		ledger:     NewLedger(log, db),
		budgets:    NewBudgets(log, db),
	}
}

func (f *fixture) register(t *testing.T, username, email string) *Registration {
	t.Helper()

	reg, err := f.directory.Register(context.Background(), RegisterInput{
		Username: username,
		Password: "secret123",
		Email:    email,
	})
	require.NoError(t, err)
	return reg
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(u.Path, "/verify-email"))
	return u.Query().Get("token")
}

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
