package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"expense-api/internal/models"
	"expense-api/internal/storage"
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var defaultCategories = []struct {
	name, color, icon, description string
}{
	{"Food & Dining", "#FF6B6B", "🍕", "Restaurants, grocery, food delivery"},
	{"Transportation", "#4ECDC4", "🚗", "Gas, parking, uber, public transport"},
	{"Entertainment", "#95E1D3", "🎮", "Movies, games, streaming, concerts"},
	{"Shopping", "#F38181", "🛍️", "Clothes, electronics, household"},
	{"Utilities", "#FFEAA7", "💡", "Electricity, water, internet, phone"},
	{"Healthcare", "#DDA15E", "🏥", "Medical, pharmacy, fitness"},
	{"Education", "#BC6C25", "📚", "Courses, books, training"},
	{"Travel", "#457B9D", "✈️", "Flights, hotels, tours"},
	{"Insurance", "#1D3557", "🛡️", "Health, car, home insurance"},
	{models.DefaultCategory, "#A8DADC", "📌", "Miscellaneous expenses"},
}

// DefaultCategories returns a fresh copy of the starter category set.
func DefaultCategories() []models.Category {
	cats := make([]models.Category, 0, len(defaultCategories))
	for _, d := range defaultCategories {
		description, icon := d.description, d.icon
		cats = append(cats, models.Category{
			Name:        d.name,
			Description: &description,
			Color:       d.color,
			Icon:        &icon,
			IsDefault:   true,
		})
	}
	return cats
}

// CategoryStore is the persistence the category registry needs.
type CategoryStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error)
	SeedCategories(ctx context.Context, userID int64, cats []models.Category) (int, error)
	ListCategories(ctx context.Context, userID int64) ([]models.Category, error)
	DeleteCategory(ctx context.Context, userID, id int64) error
}

// Categories manages per-user expense categories.
type Categories struct {
	log   *slog.Logger
	store CategoryStore
}

func NewCategories(log *slog.Logger, store CategoryStore) *Categories {
	return &Categories{log: log, store: store}
}

type CategoryInput struct {
	UserID      int64
	Name        string
	Description string
	Color       string
	Icon        string
}

// Create adds a category for the user. Names are unique per user.
func (c *Categories) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	const op = "services.Categories.Create"

	name := strings.TrimSpace(in.Name)
	if in.UserID <= 0 {
		return nil, &ValidationError{Missing: []string{"user_id"}}
	}
	if name == "" {
		return nil, &ValidationError{Missing: []string{"name"}}
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = models.DefaultColor
	}
	if !hexColorRe.MatchString(color) {
		return nil, invalid("Color must be a hex value like %s", models.DefaultColor)
	}

	if err := ensureUser(ctx, op, c.store, in.UserID); err != nil {
		return nil, err
	}

	cat := &models.Category{
		UserID:      in.UserID,
		Name:        name,
		Description: optional(in.Description),
		Color:       color,
		Icon:        optional(in.Icon),
	}
	cat, err := c.store.CreateCategory(ctx, cat)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, newError(ErrConflict, "Category already exists")
		}
		return nil, persistence(op, err)
	}
	return cat, nil
}

// ListForUser returns every category the user owns.
func (c *Categories) ListForUser(ctx context.Context, userID int64) ([]models.Category, error) {
	const op = "services.Categories.ListForUser"

	cats, err := c.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, persistence(op, err)
	}
	return cats, nil
}

// SeedDefaults adds any missing default categories for the user.
func (c *Categories) SeedDefaults(ctx context.Context, userID int64) (int, error) {
	const op = "services.Categories.SeedDefaults"

	if err := ensureUser(ctx, op, c.store, userID); err != nil {
		return 0, err
	}
	n, err := c.store.SeedCategories(ctx, userID, DefaultCategories())
	if err != nil {
		return 0, persistence(op, err)
	}
	if n > 0 {
		c.log.Info("seeded default categories", slog.Int64("user_id", userID), slog.Int("count", n))
	}
	return n, nil
}

// Delete removes the user's category along with its expenses.
func (c *Categories) Delete(ctx context.Context, userID, id int64) error {
	const op = "services.Categories.Delete"

	if err := c.store.DeleteCategory(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "Category not found")
		}
		return persistence(op, err)
	}
	return nil
}

type userGetter interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

func ensureUser(ctx context.Context, op string, users userGetter, id int64) error {
	if _, err := users.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "User not found")
		}
		return persistence(op, err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
