package service

import (
	"context"
	"strings"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return nil, store.ErrInvalidInput
	}

	return s.repo.CreateCustomer(ctx, domain.Customer{
		ID:         xid.New("cus"),
		MerchantID: actor.MerchantID,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Address:    strings.TrimSpace(req.Address),
		Gender:     req.Gender,
		CreatedAt:  s.now().UTC(),
	})
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetCustomerByID(ctx, actor.MerchantID, customerID)
}

func (s *Service) ListCustomers(ctx context.Context, filter store.CustomerFilter) (*domain.CustomerListResponse, error) {
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

	customers, total, err := s.repo.ListCustomers(ctx, actor.MerchantID, filter)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerListResponse{
		Customers: customers,
		Meta:      domain.NewPageMeta(filter.Page, filter.Limit, total),
	}, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCustomerByID(ctx, actor.MerchantID, customerID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Phone = phone
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Gender != nil {
		updated.Gender = *req.Gender
	}

	return s.repo.UpdateCustomer(ctx, updated)
}

func (s *Service) DeleteCustomer(ctx context.Context, customerID string) error {
	actor, err := mustActor(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteCustomer(ctx, actor.MerchantID, customerID)
}

func (s *Service) CreateDuration(ctx context.Context, req domain.DurationCreateRequest) (*domain.Duration, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Value < 1 || (req.Type != "hari" && req.Type != "jam") {
		return nil, store.ErrInvalidInput
	}

	return s.repo.CreateDuration(ctx, domain.Duration{
		ID:         xid.New("dur"),
		MerchantID: actor.MerchantID,
		Name:       req.Name,
		Value:      req.Value,
		Type:       req.Type,
	})
}

func (s *Service) ListDurations(ctx context.Context) ([]domain.Duration, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDurations(ctx, actor.MerchantID)
}

func (s *Service) UpdateDuration(ctx context.Context, durationID string, req domain.DurationCreateRequest) (*domain.Duration, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetDurationByID(ctx, actor.MerchantID, durationID)
	if err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Value < 1 || (req.Type != "hari" && req.Type != "jam") {
		return nil, store.ErrInvalidInput
	}

	updated := *existing
	updated.Name = req.Name
	updated.Value = req.Value
	updated.Type = req.Type
	return s.repo.UpdateDuration(ctx, updated)
}

// DeleteDuration fails with a conflict while any service still prices against
// the duration; both rows stay intact.
func (s *Service) DeleteDuration(ctx context.Context, durationID string) error {
	actor, err := mustActor(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteDuration(ctx, actor.MerchantID, durationID)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (*domain.Service, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := s.buildService(ctx, actor.MerchantID, xid.New("svc"), req)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateService(ctx, *svc)
}

func (s *Service) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetServiceByID(ctx, actor.MerchantID, serviceID)
}

func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, actor.MerchantID)
}

func (s *Service) UpdateService(ctx context.Context, serviceID string, req domain.ServiceCreateRequest) (*domain.Service, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetServiceByID(ctx, actor.MerchantID, serviceID); err != nil {
		return nil, err
	}
	svc, err := s.buildService(ctx, actor.MerchantID, serviceID, req)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateService(ctx, *svc)
}

func (s *Service) DeleteService(ctx context.Context, serviceID string) error {
	actor, err := mustActor(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteService(ctx, actor.MerchantID, serviceID)
}

// buildService validates the price list against the merchant's durations.
// Prices written here only affect future orders; existing line items keep the
// price captured at order time.
func (s *Service) buildService(ctx context.Context, merchantID, serviceID string, req domain.ServiceCreateRequest) (*domain.Service, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Prices) == 0 {
		return nil, store.ErrInvalidInput
	}

	svc := domain.Service{
		ID:         serviceID,
		MerchantID: merchantID,
		Name:       req.Name,
		Unit:       req.Unit,
		Prices:     make([]domain.ServicePrice, 0, len(req.Prices)),
	}
	seen := map[string]bool{}
	for _, price := range req.Prices {
		if price.DurationID == "" || price.Price < 1 || seen[price.DurationID] {
			return nil, store.ErrInvalidInput
		}
		seen[price.DurationID] = true
		if _, err := s.repo.GetDurationByID(ctx, merchantID, price.DurationID); err != nil {
			return nil, err
		}
		svc.Prices = append(svc.Prices, domain.ServicePrice{
			DurationID: price.DurationID,
			Price:      price.Price,
		})
	}
	return &svc, nil
}

func (s *Service) GetNote(ctx context.Context) (*domain.Note, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetNote(ctx, actor.MerchantID)
}

func (s *Service) UpsertNote(ctx context.Context, req domain.NoteUpsertRequest) (*domain.Note, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.UpsertNote(ctx, domain.Note{
		MerchantID: actor.MerchantID,
		Content:    req.Content,
		UpdatedAt:  s.now().UTC(),
	})
}

func (s *Service) ListPrinters(ctx context.Context) ([]domain.PrinterDevice, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPrinters(ctx, actor.MerchantID)
}

// RegisterPrinter adds a device and makes it the single active one; siblings
// are deactivated in the same store transaction.
func (s *Service) RegisterPrinter(ctx context.Context, req domain.PrinterRegisterRequest) (*domain.PrinterDevice, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" || req.Address == "" {
		return nil, store.ErrInvalidInput
	}

	return s.repo.RegisterPrinter(ctx, domain.PrinterDevice{
		ID:         xid.New("prn"),
		MerchantID: actor.MerchantID,
		Name:       req.Name,
		Address:    req.Address,
		CreatedAt:  s.now().UTC(),
	})
}

func (s *Service) ActivatePrinter(ctx context.Context, deviceID string) (*domain.PrinterDevice, error) {
	actor, err := mustActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ActivatePrinter(ctx, actor.MerchantID, deviceID)
}
