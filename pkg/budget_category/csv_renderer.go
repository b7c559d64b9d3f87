package budget_category

import (
	"bytes"
	"encoding/csv"
	"slices"
	"strings"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Renderer turns ledger records into a downloadable representation.
type Renderer interface {
	Render(records []BudgetCategory) (string, error)
}

type CsvRendererImpl struct {
}

func NewCsvRenderer() *CsvRendererImpl {
	return &CsvRendererImpl{}
}

// Render writes one column per category and one row per period with the actual amounts,
// framed by a budgeted row on top and total and remaining rows at the bottom.
func (r *CsvRendererImpl) Render(records []BudgetCategory) (string, error) {
	categories := categoryColumns(records)
	periods := periodRows(records)

	byCell := make(map[string]map[string]BudgetCategory, len(periods))
	for _, record := range records {
		row := record.Period.String()
		if byCell[row] == nil {
			byCell[row] = map[string]BudgetCategory{}
		}
		byCell[row][record.Key().CategoryName] = record
	}

	header := append([]string{""}, categories...)
	header = append(header, "SUM")

	budgeted := make([]decimal.Decimal, len(categories))
	actual := make([]decimal.Decimal, len(categories))
	periodLines := make([][]string, 0, len(periods))
	for _, p := range periods {
		line := make([]string, 0, len(categories)+2)
		line = append(line, p.String())
		periodTotal := decimal.Zero
		for i, category := range categories {
			record, found := byCell[p.String()][strings.ToLower(strings.TrimSpace(category))]
			if !found {
				line = append(line, "0.00")
				continue
			}
			budgeted[i] = budgeted[i].Add(record.BudgetedAmount)
			actual[i] = actual[i].Add(record.ActualAmount)
			periodTotal = periodTotal.Add(record.ActualAmount)
			line = append(line, record.ActualAmount.StringFixed(2))
		}
		line = append(line, periodTotal.StringFixed(2))
		periodLines = append(periodLines, line)
	}

	remaining := make([]decimal.Decimal, len(categories))
	for i := range categories {
		remaining[i] = budgeted[i].Sub(actual[i])
	}

	data := make([][]string, 0, len(periodLines)+4)
	data = append(data, header, amountsRow("Budgeted", budgeted))
	data = append(data, periodLines...)
	data = append(data, amountsRow("Total", actual), amountsRow("Remaining", remaining))

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}
	return b.String(), nil
}

// categoryColumns returns category names sorted case-insensitively, first spelling wins.
func categoryColumns(records []BudgetCategory) []string {
	seen := map[string]bool{}
	var categories []string
	for _, record := range records {
		key := record.Key().CategoryName
		if seen[key] {
			continue
		}
		seen[key] = true
		categories = append(categories, record.CategoryName)
	}
	slices.SortFunc(categories, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return categories
}

func periodRows(records []BudgetCategory) []date_range.DateRange {
	seen := map[string]bool{}
	var periods []date_range.DateRange
	for _, record := range records {
		if seen[record.Period.String()] {
			continue
		}
		seen[record.Period.String()] = true
		periods = append(periods, record.Period)
	}
	slices.SortFunc(periods, func(a, b date_range.DateRange) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	return periods
}

func amountsRow(label string, amounts []decimal.Decimal) []string {
	row := make([]string, 0, len(amounts)+2)
	row = append(row, label)
	total := decimal.Zero
	for _, amount := range amounts {
		row = append(row, amount.StringFixed(2))
		total = total.Add(amount)
	}
	return append(row, total.StringFixed(2))
}
