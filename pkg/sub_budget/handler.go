package sub_budget

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/budgetly/internal/rest"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type SubBudgetDTO struct {
	Id                string          `json:"id"`
	BudgetId          string          `json:"budgetId"`
	Name              string          `json:"name"`
	StartDate         string          `json:"startDate"`
	EndDate           string          `json:"endDate"`
	AllocatedAmount   decimal.Decimal `json:"allocatedAmount"`
	SpentAmount       decimal.Decimal `json:"spentAmount"`
	SavingsTarget     decimal.Decimal `json:"savingsTarget"`
	SavingsAmount     decimal.Decimal `json:"savingsAmount"`
	MonthlyAllocation decimal.Decimal `json:"monthlyAllocation"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) CreateSubBudget(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new sub-budget")
	var dto SubBudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	span, err := date_range.Parse(dto.StartDate, dto.EndDate)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid date range", err.Error())
		return
	}
	subBudget := SubBudget{
		Id:              dto.Id,
		BudgetId:        dto.BudgetId,
		Name:            dto.Name,
		Span:            span,
		AllocatedAmount: dto.AllocatedAmount,
		SpentAmount:     dto.SpentAmount,
		SavingsTarget:   dto.SavingsTarget,
		SavingsAmount:   dto.SavingsAmount,
	}
	created, err := handler.service.CreateSubBudget(r.Context(), subBudget, Goals{MonthlyAllocation: dto.MonthlyAllocation})
	if err != nil {
		if errors.Is(err, ErrInvalidSubBudget) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid sub-budget", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to create sub-budget", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(created, dto.MonthlyAllocation))
}

func (handler *Handler) GetSubBudget(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["subBudgetId"]
	subBudget, err := handler.service.GetSubBudget(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSubBudgetNotFound) {
			rest.WriteError(w, http.StatusNotFound, "Sub-budget not found", id)
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get sub-budget", err.Error())
		return
	}
	goals, err := handler.service.GetGoals(r.Context(), id)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get sub-budget goals", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(subBudget, goals.MonthlyAllocation))
}

func toDTO(s SubBudget, monthlyAllocation decimal.Decimal) SubBudgetDTO {
	return SubBudgetDTO{
		Id:                s.Id,
		BudgetId:          s.BudgetId,
		Name:              s.Name,
		StartDate:         s.Span.Start.Format("2006-01-02"),
		EndDate:           s.Span.End.Format("2006-01-02"),
		AllocatedAmount:   s.AllocatedAmount,
		SpentAmount:       s.SpentAmount,
		SavingsTarget:     s.SavingsTarget,
		SavingsAmount:     s.SavingsAmount,
		MonthlyAllocation: monthlyAllocation,
	}
}
