package services

import (
	"context"
	"strconv"
	"testing"

	"expense-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice", "")

	c, err := f.categories.Create(ctx, CategoryInput{UserID: reg.User.ID, Name: "Pets", Icon: "🐶"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, models.DefaultColor, c.Color)
	require.NotNil(t, c.Icon)
	assert.Nil(t, c.Description)
	assert.False(t, c.IsDefault)

	_, err = f.categories.Create(ctx, CategoryInput{UserID: reg.User.ID, Name: "Pets"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Category already exists", PublicMessage(err))

	// The same name is fine for somebody else.
	bob := f.register(t, "bob", "")
	_, err = f.categories.Create(ctx, CategoryInput{UserID: bob.User.ID, Name: "Pets"})
	assert.NoError(t, err)
}

func TestCreateCategoryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.categories.Create(ctx, CategoryInput{Name: "Pets"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Missing required fields: user_id", PublicMessage(err))

	_, err = f.categories.Create(ctx, CategoryInput{UserID: 1, Name: "  "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.categories.Create(ctx, CategoryInput{UserID: 1, Name: "Pets", Color: "red"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.categories.Create(ctx, CategoryInput{UserID: 777, Name: "Pets"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "User not found", PublicMessage(err))
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice", "")

	n, err := f.categories.SeedDefaults(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "registration already seeded everything")

	cats, err := f.categories.ListForUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, cats, len(DefaultCategories()))

	_, err = f.categories.SeedDefaults(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCategoryRemovesItsExpenses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice", "")
	cat, err := f.categories.Create(ctx, CategoryInput{UserID: reg.User.ID, Name: "Pets"})
	require.NoError(t, err)

	userID := strconv.FormatInt(reg.User.ID, 10)
	_, err = f.ledger.Add(ctx, AddExpenseInput{UserID: userID, Title: "Food", Amount: "5", Date: "2024-01-05", Category: "Pets"})
	require.NoError(t, err)
	_, err = f.ledger.Add(ctx, AddExpenseInput{UserID: userID, Title: "Bus", Amount: "2", Date: "2024-01-05", Category: "Transportation"})
	require.NoError(t, err)

	bob := f.register(t, "bob", "")
	err = f.categories.Delete(ctx, bob.User.ID, cat.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Category not found", PublicMessage(err))

	require.NoError(t, f.categories.Delete(ctx, reg.User.ID, cat.ID))

	list, err := f.ledger.ListForUser(ctx, reg.User.ID, "", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bus", list[0].Title)
}

func TestDefaultCategoriesFreshCopy(t *testing.T) {
	a := DefaultCategories()
	a[0].Name = "changed"
	b := DefaultCategories()
	assert.NotEqual(t, "changed", b[0].Name)
	assert.Equal(t, models.DefaultCategory, b[len(b)-1].Name)
}
