package service

import (
	"context"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

// CreateOrder opens a transaction with the status Diproses. The store
// resolves the unit price of every line from the service/duration price list
// and freezes it on the line item.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.Order, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	if req.CustomerID == "" || req.DurationID == "" || len(req.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	order := domain.Order{
		ID:            xid.New("trx"),
		MerchantID:    actor.MerchantID,
		InvoiceNumber: xid.Numbered("INV"),
		CustomerID:    req.CustomerID,
		DurationID:    req.DurationID,
		Status:        domain.OrderStatusDiproses,
		CreatedAt:     s.now().UTC(),
		Items:         make([]domain.OrderItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		if item.ServiceID == "" || item.Qty <= 0 {
			return nil, store.ErrInvalidInput
		}
		order.Items = append(order.Items, domain.OrderItem{
			ServiceID: item.ServiceID,
			Qty:       item.Qty,
		})
	}

	return s.repo.CreateOrder(ctx, order)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrderByID(ctx, actor.MerchantID, orderID)
}

func (s *Service) GetOrderByInvoice(ctx context.Context, invoiceNumber string) (*domain.Order, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrderByInvoice(ctx, actor.MerchantID, invoiceNumber)
}

func (s *Service) ListOrders(ctx context.Context, filter store.OrderFilter) (*domain.OrderListResponse, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Status != "" && domain.OrderStatusRank(filter.Status) == 0 {
		return nil, store.ErrInvalidInput
	}

	orders, total, err := s.repo.ListOrders(ctx, actor.MerchantID, filter)
	if err != nil {
		return nil, err
	}
	return &domain.OrderListResponse{
		Orders: orders,
		Meta:   domain.NewPageMeta(filter.Page, filter.Limit, total),
	}, nil
}

// UpdateOrderStatus moves an order strictly forward through
// Diproses → Siap Diambil → Selesai. Selesai stamps completed_at.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req domain.OrderStatusUpdateRequest) (*domain.Order, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	if domain.OrderStatusRank(req.Status) == 0 {
		return nil, store.ErrInvalidInput
	}
	return s.repo.UpdateOrderStatus(ctx, actor.MerchantID, orderID, req.Status, s.now().UTC())
}

func (s *Service) GetPayment(ctx context.Context, invoiceNumber string) (*domain.Payment, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetPaymentByInvoice(ctx, actor.MerchantID, invoiceNumber)
}

// SettlePayment marks the invoice Lunas exactly once. The amount received
// must cover the amount due; the surplus is returned as change.
func (s *Service) SettlePayment(ctx context.Context, req domain.PaymentSettleRequest) (*domain.Payment, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	if req.InvoiceNumber == "" || req.AmountPaid < 1 {
		return nil, store.ErrInvalidInput
	}
	return s.repo.SettlePayment(ctx, actor.MerchantID, req.InvoiceNumber, req.AmountPaid, s.now().UTC())
}
