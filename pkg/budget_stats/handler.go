package budget_stats

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/budgetly/internal/rest"
	"github.com/klokku/budgetly/pkg/sub_budget"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type BudgetStatsDTO struct {
	BudgetId              string          `json:"budgetId"`
	SubBudgetId           string          `json:"subBudgetId"`
	StartDate             string          `json:"startDate"`
	EndDate               string          `json:"endDate"`
	TotalBudgeted         decimal.Decimal `json:"totalBudgeted"`
	LedgerBudgeted        decimal.Decimal `json:"ledgerBudgeted"`
	TotalSpent            decimal.Decimal `json:"totalSpent"`
	Remaining             decimal.Decimal `json:"remaining"`
	TotalSaved            decimal.Decimal `json:"totalSaved"`
	SavingsProgress       decimal.Decimal `json:"savingsProgress"`
	UtilizationScore      decimal.Decimal `json:"utilizationScore"`
	HealthScore           decimal.Decimal `json:"healthScore"`
	AverageSpendingPerDay decimal.Decimal `json:"averageSpendingPerDay"`
	FixedRecurringTotal   decimal.Decimal `json:"fixedRecurringTotal"`
	OverspentCategories   int             `json:"overspentCategories"`
}

type HealthScoreDTO struct {
	SubBudgetId   string          `json:"subBudgetId"`
	Score         decimal.Decimal `json:"score"`
	SpendingRatio decimal.Decimal `json:"spendingRatio"`
	Variance      decimal.Decimal `json:"variance"`
	RecordedAt    time.Time       `json:"recordedAt"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	log.Debugf("Getting stats of sub-budget %s", subBudgetId)
	stats, err := handler.service.GetStats(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, BudgetStatsDTO{
		BudgetId:              stats.BudgetId,
		SubBudgetId:           stats.SubBudgetId,
		StartDate:             stats.Period.Start.Format("2006-01-02"),
		EndDate:               stats.Period.End.Format("2006-01-02"),
		TotalBudgeted:         stats.TotalBudgeted,
		LedgerBudgeted:        stats.LedgerBudgeted,
		TotalSpent:            stats.TotalSpent,
		Remaining:             stats.Remaining,
		TotalSaved:            stats.TotalSaved,
		SavingsProgress:       stats.SavingsProgress,
		UtilizationScore:      stats.UtilizationScore,
		HealthScore:           stats.HealthScore,
		AverageSpendingPerDay: stats.AverageSpendingPerDay,
		FixedRecurringTotal:   stats.FixedRecurringTotal,
		OverspentCategories:   stats.OverspentCategories,
	})
}

func (handler *Handler) RecordHealth(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	score, err := handler.service.RecordLatestScore(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, scoreToDTO(score))
}

func (handler *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	score, err := handler.service.GetLatestScore(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, scoreToDTO(score))
}

func scoreToDTO(score HealthScore) HealthScoreDTO {
	return HealthScoreDTO{
		SubBudgetId:   score.SubBudgetId,
		Score:         score.Score,
		SpendingRatio: score.SpendingRatio,
		Variance:      score.Variance,
		RecordedAt:    score.RecordedAt,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sub_budget.ErrSubBudgetNotFound), errors.Is(err, ErrHealthScoreNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrDivisionByZero):
		rest.WriteError(w, http.StatusUnprocessableEntity, "Cannot score sub-budget", err.Error())
	default:
		rest.WriteError(w, http.StatusInternalServerError, "Failed to compute stats", err.Error())
	}
}
