package budget_category

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/klokku/budgetly/internal/rest"
	log "github.com/sirupsen/logrus"
)

type BudgetCategoryDTO struct {
	Id                 string   `json:"id"`
	SubBudgetId        string   `json:"subBudgetId"`
	CategoryName       string   `json:"categoryName"`
	PeriodStart        string   `json:"periodStart"`
	PeriodEnd          string   `json:"periodEnd"`
	BudgetedAmount     string   `json:"budgetedAmount"`
	ActualAmount       string   `json:"actualAmount"`
	RemainingAmount    string   `json:"remainingAmount"`
	IsActive           bool     `json:"isActive"`
	IsOverspent        bool     `json:"isOverspent"`
	OverspendingAmount string   `json:"overspendingAmount"`
	TransactionIds     []string `json:"transactionIds"`
	Version            int      `json:"version"`
}

type Handler struct {
	service     Service
	csvRenderer Renderer
}

func NewHandler(service Service, csvRenderer Renderer) *Handler {
	return &Handler{service, csvRenderer}
}

// ListCategories returns the ledger records of a sub-budget, optionally including deactivated ones.
// With "Accept: text/csv" the records are rendered as a category by period grid.
func (handler *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	log.Debugf("Listing budget categories of sub-budget %s", subBudgetId)

	includeInactive := false
	if raw := r.URL.Query().Get("includeInactive"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid includeInactive value", "includeInactive must be true or false")
			return
		}
		includeInactive = parsed
	}

	categories, err := handler.service.ListCategories(r.Context(), subBudgetId, includeInactive)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list budget categories", err.Error())
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		csv, err := handler.csvRenderer.Render(categories)
		if err != nil {
			rest.WriteError(w, http.StatusInternalServerError, "Failed to render budget categories", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csv)); err != nil {
			log.Errorf("could not write csv response: %v", err)
		}
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTOs(categories))
}

func ToDTOs(categories []BudgetCategory) []BudgetCategoryDTO {
	dtos := make([]BudgetCategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, ToDTO(c))
	}
	return dtos
}

func ToDTO(c BudgetCategory) BudgetCategoryDTO {
	transactionIds := make([]string, 0, len(c.Transactions))
	for _, t := range c.Transactions {
		transactionIds = append(transactionIds, t.Id)
	}
	return BudgetCategoryDTO{
		Id:                 c.Id,
		SubBudgetId:        c.SubBudgetId,
		CategoryName:       c.CategoryName,
		PeriodStart:        c.Period.Start.Format("2006-01-02"),
		PeriodEnd:          c.Period.End.Format("2006-01-02"),
		BudgetedAmount:     c.BudgetedAmount.StringFixed(2),
		ActualAmount:       c.ActualAmount.StringFixed(2),
		RemainingAmount:    c.Remaining().StringFixed(2),
		IsActive:           c.IsActive,
		IsOverspent:        c.IsOverspent,
		OverspendingAmount: c.OverspendingAmount.StringFixed(2),
		TransactionIds:     transactionIds,
		Version:            c.Version,
	}
}
