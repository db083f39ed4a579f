package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
)

// MaxRangeDays caps the report window so the day axis stays bounded.
const MaxRangeDays = 31

const dayFormat = "2006-01-02"

type CellSource interface {
	GetRevenueCells(ctx context.Context, merchantID string, from, to time.Time) ([]domain.RevenueCell, error)
	CountCompletedOrdersByDay(ctx context.Context, merchantID string, from, to time.Time) ([]domain.DayOrderCount, error)
}

// BuildRevenueReport aggregates completed orders in [from, to] (inclusive
// calendar days) into a per-day × per-service pivot. Every day in the range
// appears in the output, zero-activity days included.
func BuildRevenueReport(ctx context.Context, src CellSource, merchantID string, from, to time.Time) (*domain.RevenueReport, error) {
	fromDay := truncateDay(from)
	toDay := truncateDay(to)
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("date range is reversed: %w", store.ErrInvalidInput)
	}
	days := int(toDay.Sub(fromDay).Hours()/24) + 1
	if days > MaxRangeDays {
		return nil, fmt.Errorf("date range exceeds %d days: %w", MaxRangeDays, store.ErrInvalidInput)
	}

	end := toDay.AddDate(0, 0, 1)
	cells, err := src.GetRevenueCells(ctx, merchantID, fromDay, end)
	if err != nil {
		return nil, err
	}
	dayCounts, err := src.CountCompletedOrdersByDay(ctx, merchantID, fromDay, end)
	if err != nil {
		return nil, err
	}
	ordersByDay := make(map[string]int64, len(dayCounts))
	for _, dc := range dayCounts {
		ordersByDay[dc.Day.Format(dayFormat)] = dc.Orders
	}

	report := &domain.RevenueReport{
		MerchantID: merchantID,
		From:       fromDay.Format(dayFormat),
		To:         toDay.Format(dayFormat),
	}

	columns := map[string]*domain.ReportServiceColumn{}
	byDay := map[string][]domain.RevenueCell{}
	for _, cell := range cells {
		day := cell.Day.Format(dayFormat)
		byDay[day] = append(byDay[day], cell)

		col, ok := columns[cell.ServiceID]
		if !ok {
			col = &domain.ReportServiceColumn{ServiceID: cell.ServiceID, ServiceName: cell.ServiceName}
			columns[cell.ServiceID] = col
		}
		col.TotalQty += cell.Qty
		col.TotalAmount += cell.Revenue
	}

	for _, col := range columns {
		report.Services = append(report.Services, *col)
	}
	sort.Slice(report.Services, func(i, j int) bool {
		return report.Services[i].ServiceName < report.Services[j].ServiceName
	})

	for d := fromDay; !d.After(toDay); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayFormat)
		row := domain.ReportDayRow{
			Date:       key,
			PerService: map[string]int64{},
		}
		for _, cell := range byDay[key] {
			row.PerService[cell.ServiceID] = cell.Revenue
			row.TotalRevenue += cell.Revenue
		}
		// distinct orders per day, so multi-service orders count once
		row.Transactions = ordersByDay[key]
		report.TotalRevenue += row.TotalRevenue
		report.TotalTransactions += row.Transactions
		report.Days = append(report.Days, row)
	}

	return report, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
