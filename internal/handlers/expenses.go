package handlers

import (
	"encoding/json"
	"net/http"

	"expense-api/internal/models"
	"expense-api/internal/services"

	"github.com/shopspring/decimal"
)

// money renders an amount as a JSON number with two fraction digits.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type addExpenseRequest struct {
	Title       scalar `json:"title"`
	Amount      scalar `json:"amount"`
	UserID      scalar `json:"user_id"`
	Date        scalar `json:"date"`
	Category    scalar `json:"category"`
	Description scalar `json:"description"`
	Currency    scalar `json:"currency"`
}

// AddExpense records an expense.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	e, err := h.ledger.Add(r.Context(), services.AddExpenseInput{
		UserID:      req.UserID.String(),
		Title:       req.Title.String(),
		Amount:      req.Amount.String(),
		Date:        req.Date.String(),
		Category:    req.Category.String(),
		Description: req.Description.String(),
		Currency:    req.Currency.String(),
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to add expense")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Expense added",
		"id":      e.ID,
	})
}

type expenseItem struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Date        models.Date `json:"date"`
	Currency    string      `json:"currency"`
	Description *string     `json:"description,omitempty"`
}

// ListExpenses returns a user's expenses, optionally between start_date and
// end_date inclusive.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	q := r.URL.Query()
	expenses, err := h.ledger.ListForUser(r.Context(), userID, q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeError(w, r, err, "Failed to list expenses")
		return
	}

	items := make([]expenseItem, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, expenseItem{
			ID:          e.ID,
			Title:       e.Title,
			Amount:      money(e.Amount),
			Category:    e.Category,
			Date:        e.Date,
			Currency:    e.Currency,
			Description: e.Description,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// DeleteExpense removes one of the signed-in user's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.ledger.DeleteByID(r.Context(), GetUserFromContext(r).ID, id); err != nil {
		h.writeError(w, r, err, "Failed to delete expense")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

type createCategoryRequest struct {
	UserID      scalar `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

// CreateCategory adds a category for a user.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := optionalID("user_id", req.UserID)
	if err != nil {
		h.writeError(w, r, err, "Failed to create category")
		return
	}
	in := services.CategoryInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
	}
	if userID != nil {
		in.UserID = *userID
	}

	c, err := h.categories.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err, "Failed to create category")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListCategories returns a user's categories.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	cats, err := h.categories.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "Failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// DeleteCategory removes one of the signed-in user's categories together with
// its expenses.
func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.categories.Delete(r.Context(), GetUserFromContext(r).ID, id); err != nil {
		h.writeError(w, r, err, "Failed to delete category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

// RestoreDefaultCategories re-adds any default category the signed-in user
// has deleted.
func (h *Handlers) RestoreDefaultCategories(w http.ResponseWriter, r *http.Request) {
	n, err := h.categories.SeedDefaults(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		h.writeError(w, r, err, "Failed to restore categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Categories restored", "added": n})
}

type createBudgetRequest struct {
	UserID     scalar `json:"user_id"`
	CategoryID scalar `json:"category_id"`
	Name       string `json:"name"`
	Limit      scalar `json:"limit_amount"`
	Currency   string `json:"currency"`
	Period     string `json:"period"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

type budgetItem struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"user_id"`
	CategoryID  *int64              `json:"category_id,omitempty"`
	Name        string              `json:"name"`
	LimitAmount json.Number         `json:"limit_amount"`
	SpentAmount json.Number         `json:"spent_amount"`
	Currency    string              `json:"currency"`
	Period      models.BudgetPeriod `json:"period"`
	StartDate   models.Date         `json:"start_date"`
	EndDate     *models.Date        `json:"end_date,omitempty"`
	IsActive    bool                `json:"is_active"`
}

func newBudgetItem(b models.Budget) budgetItem {
	return budgetItem{
		ID:          b.ID,
		UserID:      b.UserID,
		CategoryID:  b.CategoryID,
		Name:        b.Name,
		LimitAmount: money(b.LimitAmount),
		SpentAmount: money(b.SpentAmount),
		Currency:    b.Currency,
		Period:      b.Period,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
		IsActive:    b.IsActive,
	}
}

// CreateBudget adds a spending limit.
func (h *Handlers) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := optionalID("user_id", req.UserID)
	if err != nil {
		h.writeError(w, r, err, "Failed to create budget")
		return
	}
	categoryID, err := optionalID("category_id", req.CategoryID)
	if err != nil {
		h.writeError(w, r, err, "Failed to create budget")
		return
	}

	in := services.BudgetInput{
		CategoryID: categoryID,
		Name:       req.Name,
		Limit:      req.Limit.String(),
		Currency:   req.Currency,
		Period:     req.Period,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	}
	if userID != nil {
		in.UserID = *userID
	}

	b, err := h.budgets.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err, "Failed to create budget")
		return
	}
	writeJSON(w, http.StatusCreated, newBudgetItem(*b))
}

// ListBudgets returns a user's budgets.
func (h *Handlers) ListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	budgets, err := h.budgets.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "Failed to list budgets")
		return
	}

	items := make([]budgetItem, 0, len(budgets))
	for _, b := range budgets {
		items = append(items, newBudgetItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}
