package service

import (
	"context"
	"fmt"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/report"
)

// RevenueReport builds the per-day × per-service pivot for the inclusive
// [from, to] range. Ranges longer than report.MaxRangeDays are rejected.
func (s *Service) RevenueReport(ctx context.Context, from, to time.Time) (*domain.RevenueReport, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return report.BuildRevenueReport(ctx, s.repo, actor.MerchantID, from, to)
}

// RevenueReportXLSX renders the report as a spreadsheet and returns the file
// bytes plus a download name.
func (s *Service) RevenueReportXLSX(ctx context.Context, from, to time.Time) ([]byte, string, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, "", err
	}

	rpt, err := report.BuildRevenueReport(ctx, s.repo, actor.MerchantID, from, to)
	if err != nil {
		return nil, "", err
	}

	merchant, err := s.repo.GetMerchantByID(ctx, actor.MerchantID)
	if err != nil {
		return nil, "", err
	}

	data, err := report.RenderXLSX(rpt, merchant.Name)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("laporan-pendapatan-%s-sd-%s.xlsx", rpt.From, rpt.To)
	return data, filename, nil
}

func (s *Service) DashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.GetDashboardSummary(ctx, actor.MerchantID, s.now())
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
