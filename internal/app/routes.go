package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Sub-budget
	r.HandleFunc("/api/subbudget", deps.SubBudgetHandler.CreateSubBudget).Methods("POST")
	r.HandleFunc("/api/subbudget/{subBudgetId}", deps.SubBudgetHandler.GetSubBudget).Methods("GET")

	// Schedule
	r.HandleFunc("/api/subbudget/{subBudgetId}/schedule", deps.ScheduleHandler.CreateSchedule).Methods("POST")
	r.HandleFunc("/api/subbudget/{subBudgetId}/schedule", deps.ScheduleHandler.RebuildSchedule).Methods("PUT")
	r.HandleFunc("/api/subbudget/{subBudgetId}/schedule", deps.ScheduleHandler.CloseSchedule).Methods("DELETE")
	r.HandleFunc("/api/subbudget/{subBudgetId}/schedule", deps.ScheduleHandler.GetTimeline).Methods("GET")
	r.HandleFunc("/api/subbudget/{subBudgetId}/schedule/build", deps.ScheduleHandler.BuildLedger).Methods("POST")

	// Transactions
	r.HandleFunc("/api/subbudget/{subBudgetId}/transactions", deps.ScheduleHandler.IngestTransactions).Methods("POST")

	// Ledger
	r.HandleFunc("/api/subbudget/{subBudgetId}/categories", deps.BudgetCategoryHandler.ListCategories).Methods("GET")

	// Stats
	r.HandleFunc("/api/subbudget/{subBudgetId}/stats", deps.BudgetStatsHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/subbudget/{subBudgetId}/health", deps.BudgetStatsHandler.RecordHealth).Methods("POST")
	r.HandleFunc("/api/subbudget/{subBudgetId}/health", deps.BudgetStatsHandler.GetHealth).Methods("GET")
}
