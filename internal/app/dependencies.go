package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/internal/amqp"
	"github.com/klokku/budgetly/internal/config"
	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/klokku/budgetly/internal/utils"
	"github.com/klokku/budgetly/pkg/allocation"
	"github.com/klokku/budgetly/pkg/budget_category"
	"github.com/klokku/budgetly/pkg/budget_stats"
	"github.com/klokku/budgetly/pkg/period"
	"github.com/klokku/budgetly/pkg/schedule"
	"github.com/klokku/budgetly/pkg/spending"
	"github.com/klokku/budgetly/pkg/sub_budget"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock

	SubBudgetService *sub_budget.ServiceImpl
	SubBudgetHandler *sub_budget.Handler

	TransactionRepo transaction.Repository

	BudgetCategoryService *budget_category.ServiceImpl
	BudgetCategoryHandler *budget_category.Handler

	ScheduleService *schedule.ServiceImpl
	ScheduleHandler *schedule.Handler

	BudgetStatsService *budget_stats.ServiceImpl
	BudgetStatsHandler *budget_stats.Handler

	AlertPublisher *amqp.Publisher
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus(deps.Clock)

	calculator, err := newCalculator(cfg.Allocation.Divisors)
	if err != nil {
		return nil, err
	}
	caps, err := newCaps(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	deps.SubBudgetService = sub_budget.NewService(sub_budget.NewRepository(db))
	deps.SubBudgetHandler = sub_budget.NewHandler(deps.SubBudgetService)

	deps.TransactionRepo = transaction.NewRepository(db)

	deps.BudgetCategoryService = budget_category.NewService(budget_category.NewRepository(db), budget_category.NewBuilder(), deps.EventBus)
	deps.BudgetCategoryHandler = budget_category.NewHandler(deps.BudgetCategoryService, budget_category.NewCsvRenderer())

	deps.ScheduleService = schedule.NewService(
		schedule.NewRepository(db),
		deps.SubBudgetService,
		deps.BudgetCategoryService,
		deps.TransactionRepo,
		calculator,
		caps,
		deps.EventBus,
		deps.Clock,
	)
	deps.ScheduleHandler = schedule.NewHandler(deps.ScheduleService)

	deps.BudgetStatsService = budget_stats.NewService(
		budget_stats.NewRepository(db),
		deps.SubBudgetService,
		deps.BudgetCategoryService,
		deps.TransactionRepo,
		spending.NewStaticRecurringLookup(recurringCategories(cfg.Recurring)),
		deps.Clock,
	)
	deps.BudgetStatsService.SubscribeToLedgerUpdates(deps.EventBus)
	deps.BudgetStatsHandler = budget_stats.NewHandler(deps.BudgetStatsService)

	if cfg.AMQP.Enabled() {
		publisher, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect alert publisher: %w", err)
		}
		publisher.Forward(deps.EventBus)
		deps.AlertPublisher = publisher
		log.Infof("Forwarding overspending alerts to exchange %s", cfg.AMQP.Exchange)
	}

	return deps, nil
}

func newCalculator(cfg config.Divisors) (*allocation.Calculator, error) {
	divisors := allocation.DefaultDivisors()
	overrides := []struct {
		name   string
		value  string
		target *decimal.Decimal
	}{
		{"weekly", cfg.Weekly, &divisors.Weekly},
		{"biweekly", cfg.Biweekly, &divisors.Biweekly},
		{"daily", cfg.Daily, &divisors.Daily},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		d, err := decimal.NewFromString(o.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s allocation divisor %q: %w", o.name, o.value, err)
		}
		*o.target = d
	}
	return allocation.NewCalculator(divisors)
}

func newCaps(cfg config.Schedule) (schedule.Caps, error) {
	caps := schedule.Caps{}
	for name, limit := range cfg.MaxSubPeriods {
		cadence, err := period.ParseCadence(name)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule cap: %w", err)
		}
		caps[cadence] = limit
	}
	return caps, nil
}

func recurringCategories(cfg []config.Recurring) []spending.RecurringCategory {
	categories := make([]spending.RecurringCategory, 0, len(cfg))
	for _, r := range cfg {
		categories = append(categories, spending.RecurringCategory{
			Name:       r.Name,
			CategoryId: r.CategoryId,
			Labels:     [2]string{r.Primary, r.Detailed},
		})
	}
	return categories
}
