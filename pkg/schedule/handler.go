package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/budgetly/internal/rest"
	"github.com/klokku/budgetly/pkg/allocation"
	"github.com/klokku/budgetly/pkg/budget_category"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/period"
	"github.com/klokku/budgetly/pkg/sub_budget"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type ScheduleDTO struct {
	Id          string      `json:"id"`
	SubBudgetId string      `json:"subBudgetId"`
	Cadence     string      `json:"cadence"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Status      string      `json:"status"`
	Version     int         `json:"version"`
	SubPeriods  []PeriodDTO `json:"subPeriods"`
}

type PeriodDTO struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type CreateScheduleRequest struct {
	Cadence string `json:"cadence"`
}

type RebuildScheduleRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type RebuildScheduleResponse struct {
	Schedule             ScheduleDTO `json:"schedule"`
	DeactivatedLedgerIds []string    `json:"deactivatedLedgerIds"`
}

type SkippedDTO struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

type BuildResultDTO struct {
	Schedule   ScheduleDTO                         `json:"schedule"`
	Categories []budget_category.BudgetCategoryDTO `json:"categories"`
	Skipped    []SkippedDTO                        `json:"skipped"`
	Unmatched  []string                            `json:"unmatched"`
}

type TimelineEntryDTO struct {
	StartDate  string                              `json:"startDate"`
	EndDate    string                              `json:"endDate"`
	Position   string                              `json:"position"`
	Categories []budget_category.BudgetCategoryDTO `json:"categories"`
}

type TimelineDTO struct {
	Schedule ScheduleDTO        `json:"schedule"`
	Entries  []TimelineEntryDTO `json:"entries"`
}

type TransactionDTO struct {
	Id             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	PostedDate     string          `json:"postedDate"`
	CategoryLabels []string        `json:"categoryLabels"`
	CategoryId     string          `json:"categoryId"`
	Merchant       string          `json:"merchant"`
	Description    string          `json:"description"`
}

type RejectionDTO struct {
	TransactionId string `json:"transactionId"`
	Reason        string `json:"reason"`
}

type IngestResultDTO struct {
	Stored    int                                 `json:"stored"`
	Updated   []budget_category.BudgetCategoryDTO `json:"updated"`
	Rejected  []RejectionDTO                      `json:"rejected"`
	Unmatched []string                            `json:"unmatched"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	log.Debugf("Creating schedule of sub-budget %s", subBudgetId)
	var request CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	cadence, err := period.ParseCadence(request.Cadence)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid cadence", err.Error())
		return
	}
	schedule, err := handler.service.CreateSchedule(r.Context(), subBudgetId, cadence)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, scheduleToDTO(schedule))
}

func (handler *Handler) RebuildSchedule(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	var request RebuildScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	span, err := date_range.Parse(request.StartDate, request.EndDate)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid date range", err.Error())
		return
	}
	schedule, deactivated, err := handler.service.RebuildSchedule(r.Context(), subBudgetId, span)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if deactivated == nil {
		deactivated = []string{}
	}
	rest.WriteJSON(w, http.StatusOK, RebuildScheduleResponse{
		Schedule:             scheduleToDTO(schedule),
		DeactivatedLedgerIds: deactivated,
	})
}

func (handler *Handler) CloseSchedule(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	schedule, err := handler.service.CloseSchedule(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, scheduleToDTO(schedule))
}

// GetTimeline returns the schedule with every sub-period labelled past, current or future.
func (handler *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	timeline, err := handler.service.Timeline(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	entries := make([]TimelineEntryDTO, 0, len(timeline.Entries))
	for _, entry := range timeline.Entries {
		entries = append(entries, TimelineEntryDTO{
			StartDate:  formatDate(entry.Period.Start),
			EndDate:    formatDate(entry.Period.End),
			Position:   string(entry.Position),
			Categories: budget_category.ToDTOs(entry.Categories),
		})
	}
	rest.WriteJSON(w, http.StatusOK, TimelineDTO{Schedule: scheduleToDTO(timeline.Schedule), Entries: entries})
}

func (handler *Handler) BuildLedger(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	log.Debugf("Building ledger of sub-budget %s", subBudgetId)
	result, err := handler.service.BuildLedger(r.Context(), subBudgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	skipped := make([]SkippedDTO, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, SkippedDTO{Category: s.Category, Reason: s.Reason})
	}
	unmatched := result.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	rest.WriteJSON(w, http.StatusOK, BuildResultDTO{
		Schedule:   scheduleToDTO(result.Schedule),
		Categories: budget_category.ToDTOs(result.Categories),
		Skipped:    skipped,
		Unmatched:  unmatched,
	})
}

func (handler *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	subBudgetId := mux.Vars(r)["subBudgetId"]
	var dtos []TransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	transactions := make([]transaction.Transaction, 0, len(dtos))
	for _, dto := range dtos {
		postedDate, err := time.Parse("2006-01-02", dto.PostedDate)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid posted date", err.Error())
			return
		}
		transactions = append(transactions, transaction.Transaction{
			Id:             dto.Id,
			Amount:         dto.Amount,
			PostedDate:     postedDate,
			CategoryLabels: dto.CategoryLabels,
			CategoryId:     dto.CategoryId,
			Merchant:       dto.Merchant,
			Description:    dto.Description,
		})
	}
	log.Debugf("Ingesting %d transactions into sub-budget %s", len(transactions), subBudgetId)

	result, err := handler.service.IngestTransactions(r.Context(), subBudgetId, transactions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rejected := make([]RejectionDTO, 0, len(result.Ledger.Rejections))
	for _, rejection := range result.Ledger.Rejections {
		rejected = append(rejected, RejectionDTO{TransactionId: rejection.TransactionId, Reason: rejection.Reason.Error()})
	}
	unmatched := result.Ledger.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	rest.WriteJSON(w, http.StatusOK, IngestResultDTO{
		Stored:    result.Stored,
		Updated:   budget_category.ToDTOs(result.Ledger.Updated),
		Rejected:  rejected,
		Unmatched: unmatched,
	})
}

func scheduleToDTO(schedule BudgetSchedule) ScheduleDTO {
	periods := make([]PeriodDTO, 0, len(schedule.SubPeriods))
	for _, p := range schedule.SubPeriods {
		periods = append(periods, PeriodDTO{StartDate: formatDate(p.Start), EndDate: formatDate(p.End)})
	}
	return ScheduleDTO{
		Id:          schedule.Id,
		SubBudgetId: schedule.SubBudgetId,
		Cadence:     string(schedule.Cadence),
		StartDate:   formatDate(schedule.Span.Start),
		EndDate:     formatDate(schedule.Span.End),
		Status:      string(schedule.Status),
		Version:     schedule.Version,
		SubPeriods:  periods,
	}
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransaction), errors.Is(err, date_range.ErrInvalidDateRange) && !errors.Is(err, ErrDateRange):
		rest.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, sub_budget.ErrSubBudgetNotFound), errors.Is(err, ErrScheduleNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrScheduleExists), errors.Is(err, ErrScheduleClosed),
		errors.Is(err, ErrScheduleNotActive), errors.Is(err, ErrVersionConflict):
		rest.WriteError(w, http.StatusConflict, "Schedule conflict", err.Error())
	case errors.Is(err, ErrDateRange), errors.Is(err, allocation.ErrInvalidBudgetAmount):
		rest.WriteError(w, http.StatusUnprocessableEntity, "Cannot schedule sub-budget", err.Error())
	default:
		rest.WriteError(w, http.StatusInternalServerError, "Schedule operation failed", err.Error())
	}
}
