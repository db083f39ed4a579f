package postgres

import (
	"context"
	"time"

	"cucibersih/backend/internal/domain"
)

// GetRevenueCells returns one row per (calendar day, service) with the count
// of completed orders, total qty and revenue. The query is fixed and fully
// parameterized; the per-service pivot happens in the report package.
func (s *Store) GetRevenueCells(ctx context.Context, merchantID string, from, to time.Time) ([]domain.RevenueCell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', t.completed_at) AS day,
			ti.service_id,
			sv.name,
			COUNT(DISTINCT t.id)::bigint,
			COALESCE(SUM(ti.qty), 0),
			COALESCE(SUM(ti.price * ti.qty), 0)::bigint
		FROM transactions t
		JOIN transaction_items ti ON ti.transaction_id = t.id
		JOIN services sv ON sv.id = ti.service_id
		WHERE t.merchant_id = $1
			AND t.status = $2
			AND t.completed_at >= $3
			AND t.completed_at < $4
		GROUP BY day, ti.service_id, sv.name
		ORDER BY day ASC, sv.name ASC
	`, merchantID, domain.OrderStatusSelesai, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cells := make([]domain.RevenueCell, 0, 64)
	for rows.Next() {
		var cell domain.RevenueCell
		if err := rows.Scan(&cell.Day, &cell.ServiceID, &cell.ServiceName, &cell.Orders, &cell.Qty, &cell.Revenue); err != nil {
			return nil, err
		}
		cell.Day = cell.Day.UTC()
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cells, nil
}

// CountCompletedOrdersByDay counts distinct completed orders per calendar
// day, so an order spanning several services still counts once.
func (s *Store) CountCompletedOrdersByDay(ctx context.Context, merchantID string, from, to time.Time) ([]domain.DayOrderCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', completed_at) AS day, COUNT(*)::bigint
		FROM transactions
		WHERE merchant_id = $1
			AND status = $2
			AND completed_at >= $3
			AND completed_at < $4
		GROUP BY day
		ORDER BY day ASC
	`, merchantID, domain.OrderStatusSelesai, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]domain.DayOrderCount, 0, 32)
	for rows.Next() {
		var dc domain.DayOrderCount
		if err := rows.Scan(&dc.Day, &dc.Orders); err != nil {
			return nil, err
		}
		dc.Day = dc.Day.UTC()
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, merchantID string, now time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{
		OrdersByStatus: make(map[string]int64, 3),
	}

	todayStart, todayEnd := dayBounds(now)
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ti.price * ti.qty), 0)::bigint
		FROM transactions t
		JOIN transaction_items ti ON ti.transaction_id = t.id
		WHERE t.merchant_id = $1 AND t.status = $2
			AND t.completed_at >= $3 AND t.completed_at < $4
	`, merchantID, domain.OrderStatusSelesai, todayStart, todayEnd).Scan(&summary.TodayRevenue)
	if err != nil {
		return summary, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ti.price * ti.qty), 0)::bigint
		FROM transactions t
		JOIN transaction_items ti ON ti.transaction_id = t.id
		WHERE t.merchant_id = $1 AND t.status = $2
			AND t.completed_at >= $3 AND t.completed_at < $4
	`, merchantID, domain.OrderStatusSelesai, monthStart, monthEnd).Scan(&summary.MonthRevenue)
	if err != nil {
		return summary, err
	}

	statusRows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)::bigint
		FROM transactions
		WHERE merchant_id = $1
		GROUP BY status
	`, merchantID)
	if err != nil {
		return summary, err
	}
	for statusRows.Next() {
		var status string
		var count int64
		if err := statusRows.Scan(&status, &count); err != nil {
			_ = statusRows.Close()
			return summary, err
		}
		summary.OrdersByStatus[status] = count
	}
	if err := statusRows.Err(); err != nil {
		_ = statusRows.Close()
		return summary, err
	}
	_ = statusRows.Close()

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM customers
		WHERE merchant_id = $1
	`, merchantID).Scan(&summary.CustomerCount)
	if err != nil {
		return summary, err
	}

	return summary, nil
}
