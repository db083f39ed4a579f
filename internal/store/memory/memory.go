package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

// Store is an in-memory Repository used in dev mode (no DATABASE_URL) and by
// the test suites. It enforces the same invariants as the postgres store.
type Store struct {
	mu              sync.RWMutex
	merchantsByID   map[string]*domain.MerchantAccount
	resetsByMch     map[string][]domain.PasswordReset
	customersByID   map[string]domain.Customer
	durationsByID   map[string]domain.Duration
	servicesByID    map[string]domain.Service
	notesByMch      map[string]domain.Note
	printersByID    map[string]domain.PrinterDevice
	ordersByID      map[string]*domain.Order
	paymentsByInv   map[string]*domain.Payment
	plansByID       map[string]domain.Plan
	subsByMch       map[string]domain.Subscription
	invoicesByID    map[string]*domain.BillingInvoice
	orderSeq        int
}

func New() *Store {
	return &Store{
		merchantsByID: map[string]*domain.MerchantAccount{},
		resetsByMch:   map[string][]domain.PasswordReset{},
		customersByID: map[string]domain.Customer{},
		durationsByID: map[string]domain.Duration{},
		servicesByID:  map[string]domain.Service{},
		notesByMch:    map[string]domain.Note{},
		printersByID:  map[string]domain.PrinterDevice{},
		ordersByID:    map[string]*domain.Order{},
		paymentsByInv: map[string]*domain.Payment{},
		plansByID:     map[string]domain.Plan{},
		subsByMch:     map[string]domain.Subscription{},
		invoicesByID:  map[string]*domain.BillingInvoice{},
	}
}

// NewSeeded returns a store preloaded with the standard plan catalog.
func NewSeeded() *Store {
	s := New()
	for _, plan := range []domain.Plan{
		{ID: "plan-trial", Code: "TRIAL", Name: "Coba Gratis", Price: 0, DurationDays: 0},
		{ID: "plan-1m", Code: "BULANAN", Name: "Paket Bulanan", Price: 99000, DurationDays: 30},
		{ID: "plan-6m", Code: "SEMESTER", Name: "Paket 6 Bulan", Price: 499000, DurationDays: 180},
		{ID: "plan-12m", Code: "TAHUNAN", Name: "Paket Tahunan", Price: 899000, DurationDays: 365},
	} {
		s.plansByID[plan.ID] = plan
	}
	return s
}

func (s *Store) CreateMerchant(_ context.Context, acct domain.MerchantAccount) (*domain.Merchant, error) {
	if acct.Email == "" || acct.Name == "" || acct.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if acct.ID == "" {
		acct.ID = xid.New("mch")
	}
	if acct.ReferralCode == "" {
		acct.ReferralCode = xid.ReferralCode()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	acct.Email = strings.ToLower(acct.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.merchantsByID {
		if existing.Email == acct.Email && !existing.IsDeleted {
			return nil, store.ErrConflict
		}
	}
	saved := acct
	s.merchantsByID[acct.ID] = &saved
	created := acct.Merchant
	return &created, nil
}

func (s *Store) GetMerchantByEmail(_ context.Context, email string) (*domain.MerchantAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.merchantsByID {
		if acct.Email == email && !acct.IsDeleted {
			found := *acct
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetMerchantByID(_ context.Context, id string) (*domain.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.merchantsByID[id]
	if !ok || acct.IsDeleted {
		return nil, store.ErrNotFound
	}
	m := acct.Merchant
	return &m, nil
}

func (s *Store) UpdateMerchant(_ context.Context, merchant domain.Merchant) (*domain.Merchant, error) {
	if merchant.ID == "" || merchant.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.merchantsByID[merchant.ID]
	if !ok || acct.IsDeleted {
		return nil, store.ErrNotFound
	}
	acct.Name = merchant.Name
	acct.Phone = merchant.Phone
	acct.Address = merchant.Address
	acct.LogoURL = merchant.LogoURL
	updated := acct.Merchant
	return &updated, nil
}

func (s *Store) UpdateMerchantPassword(_ context.Context, merchantID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.merchantsByID[merchantID]
	if !ok || acct.IsDeleted {
		return store.ErrNotFound
	}
	acct.PasswordHash = passwordHash
	return nil
}

func (s *Store) AddReferralPoint(_ context.Context, referralCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.merchantsByID {
		if acct.ReferralCode == referralCode && !acct.IsDeleted {
			acct.ReferralPoints++
			return nil
		}
	}
	return nil
}

func (s *Store) CreatePasswordReset(_ context.Context, reset domain.PasswordReset) error {
	if reset.MerchantID == "" || reset.Code == "" {
		return store.ErrInvalidInput
	}
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.resetsByMch[reset.MerchantID]
	for _, old := range history {
		if reset.CreatedAt.Sub(old.CreatedAt) < 60*time.Second {
			return store.ErrCooldown
		}
	}
	kept := make([]domain.PasswordReset, 0, len(history)+1)
	for _, old := range history {
		if old.UsedAt != nil {
			kept = append(kept, old)
		}
	}
	kept = append(kept, reset)
	s.resetsByMch[reset.MerchantID] = kept
	return nil
}

func (s *Store) ConsumePasswordReset(_ context.Context, merchantID string, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.resetsByMch[merchantID]
	for i := range history {
		if history[i].Code != code || history[i].UsedAt != nil {
			continue
		}
		if at.After(history[i].ExpiresAt) {
			return store.ErrConflict
		}
		used := at
		history[i].UsedAt = &used
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.MerchantID == "" || customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.customersByID[customer.ID] = customer
	s.mu.Unlock()
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, merchantID, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customersByID[customerID]
	if !ok || c.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	found := c
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context, merchantID string, filter store.CustomerFilter) ([]domain.Customer, int, error) {
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	s.mu.RLock()
	matched := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if c.MerchantID != merchantID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) && !strings.Contains(c.Phone, needle) {
			continue
		}
		matched = append(matched, c)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	offset := (filter.Page - 1) * filter.Limit
	if offset >= total {
		return []domain.Customer{}, total, nil
	}
	end := offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customersByID[customer.ID]
	if !ok || existing.MerchantID != customer.MerchantID {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, merchantID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customersByID[customerID]
	if !ok || existing.MerchantID != merchantID {
		return store.ErrNotFound
	}
	delete(s.customersByID, customerID)
	return nil
}

func (s *Store) CreateDuration(_ context.Context, duration domain.Duration) (*domain.Duration, error) {
	if duration.MerchantID == "" || duration.Name == "" || duration.Value < 1 {
		return nil, store.ErrInvalidInput
	}
	if duration.Type != "hari" && duration.Type != "jam" {
		return nil, store.ErrInvalidInput
	}
	if duration.ID == "" {
		duration.ID = xid.New("dur")
	}
	s.mu.Lock()
	s.durationsByID[duration.ID] = duration
	s.mu.Unlock()
	created := duration
	return &created, nil
}

func (s *Store) GetDurationByID(_ context.Context, merchantID, durationID string) (*domain.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.durationsByID[durationID]
	if !ok || d.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	found := d
	return &found, nil
}

func (s *Store) ListDurations(_ context.Context, merchantID string) ([]domain.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	durations := make([]domain.Duration, 0, 8)
	for _, d := range s.durationsByID {
		if d.MerchantID == merchantID {
			durations = append(durations, d)
		}
	}
	sort.Slice(durations, func(i, j int) bool {
		if durations[i].Type == durations[j].Type {
			return durations[i].Value < durations[j].Value
		}
		return durations[i].Type < durations[j].Type
	})
	return durations, nil
}

func (s *Store) UpdateDuration(_ context.Context, duration domain.Duration) (*domain.Duration, error) {
	if duration.ID == "" || duration.Name == "" || duration.Value < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.durationsByID[duration.ID]
	if !ok || existing.MerchantID != duration.MerchantID {
		return nil, store.ErrNotFound
	}
	s.durationsByID[duration.ID] = duration
	updated := duration
	return &updated, nil
}

func (s *Store) DeleteDuration(_ context.Context, merchantID, durationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.durationsByID[durationID]
	if !ok || existing.MerchantID != merchantID {
		return store.ErrNotFound
	}
	for _, sv := range s.servicesByID {
		if sv.MerchantID != merchantID {
			continue
		}
		for _, price := range sv.Prices {
			if price.DurationID == durationID {
				return store.ErrConflict
			}
		}
	}
	delete(s.durationsByID, durationID)
	return nil
}

func (s *Store) CreateService(_ context.Context, service domain.Service) (*domain.Service, error) {
	if service.MerchantID == "" || service.Name == "" || len(service.Prices) == 0 {
		return nil, store.ErrInvalidInput
	}
	if service.ID == "" {
		service.ID = xid.New("svc")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range service.Prices {
		if service.Prices[i].DurationID == "" || service.Prices[i].Price < 1 {
			return nil, store.ErrInvalidInput
		}
		if d, ok := s.durationsByID[service.Prices[i].DurationID]; ok {
			service.Prices[i].DurationName = d.Name
		}
	}
	s.servicesByID[service.ID] = service
	created := service
	return &created, nil
}

func (s *Store) GetServiceByID(_ context.Context, merchantID, serviceID string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.servicesByID[serviceID]
	if !ok || sv.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	found := sv
	return &found, nil
}

func (s *Store) ListServices(_ context.Context, merchantID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]domain.Service, 0, 16)
	for _, sv := range s.servicesByID {
		if sv.MerchantID == merchantID {
			services = append(services, sv)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *Store) UpdateService(_ context.Context, service domain.Service) (*domain.Service, error) {
	if service.ID == "" || service.Name == "" || len(service.Prices) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.servicesByID[service.ID]
	if !ok || existing.MerchantID != service.MerchantID {
		return nil, store.ErrNotFound
	}
	for i := range service.Prices {
		if service.Prices[i].DurationID == "" || service.Prices[i].Price < 1 {
			return nil, store.ErrInvalidInput
		}
		if d, ok := s.durationsByID[service.Prices[i].DurationID]; ok {
			service.Prices[i].DurationName = d.Name
		}
	}
	s.servicesByID[service.ID] = service
	updated := service
	return &updated, nil
}

func (s *Store) DeleteService(_ context.Context, merchantID, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.servicesByID[serviceID]
	if !ok || existing.MerchantID != merchantID {
		return store.ErrNotFound
	}
	delete(s.servicesByID, serviceID)
	return nil
}

func (s *Store) GetNote(_ context.Context, merchantID string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notesByMch[merchantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := note
	return &found, nil
}

func (s *Store) UpsertNote(_ context.Context, note domain.Note) (*domain.Note, error) {
	if note.MerchantID == "" {
		return nil, store.ErrInvalidInput
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.notesByMch[note.MerchantID] = note
	s.mu.Unlock()
	saved := note
	return &saved, nil
}

func (s *Store) ListPrinters(_ context.Context, merchantID string) ([]domain.PrinterDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := make([]domain.PrinterDevice, 0, 4)
	for _, d := range s.printersByID {
		if d.MerchantID == merchantID {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].CreatedAt.Before(devices[j].CreatedAt) })
	return devices, nil
}

func (s *Store) RegisterPrinter(_ context.Context, device domain.PrinterDevice) (*domain.PrinterDevice, error) {
	if device.MerchantID == "" || device.Name == "" || device.Address == "" {
		return nil, store.ErrInvalidInput
	}
	if device.ID == "" {
		device.ID = xid.New("prn")
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	device.IsActive = true

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.printersByID {
		if d.MerchantID == device.MerchantID && d.IsActive {
			d.IsActive = false
			s.printersByID[id] = d
		}
	}
	// re-registering an existing address updates the device in place
	for id, d := range s.printersByID {
		if d.MerchantID == device.MerchantID && d.Address == device.Address {
			d.Name = device.Name
			d.IsActive = true
			s.printersByID[id] = d
			updated := d
			return &updated, nil
		}
	}
	s.printersByID[device.ID] = device
	created := device
	return &created, nil
}

func (s *Store) ActivatePrinter(_ context.Context, merchantID, deviceID string) (*domain.PrinterDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.printersByID[deviceID]
	if !ok || target.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	for id, d := range s.printersByID {
		if d.MerchantID == merchantID && d.IsActive {
			d.IsActive = false
			s.printersByID[id] = d
		}
	}
	target.IsActive = true
	s.printersByID[deviceID] = target
	activated := target
	return &activated, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.MerchantID == "" || order.CustomerID == "" || order.DurationID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("trx")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusDiproses

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[order.CustomerID]
	if !ok || customer.MerchantID != order.MerchantID {
		return nil, store.ErrNotFound
	}
	order.CustomerName = customer.Name

	duration, ok := s.durationsByID[order.DurationID]
	if !ok || duration.MerchantID != order.MerchantID {
		return nil, store.ErrNotFound
	}
	order.DurationName = duration.Name
	if duration.Type == "jam" {
		order.EstimatedDone = order.CreatedAt.Add(time.Duration(duration.Value) * time.Hour)
	} else {
		order.EstimatedDone = order.CreatedAt.Add(time.Duration(duration.Value) * 24 * time.Hour)
	}

	if order.InvoiceNumber == "" {
		s.orderSeq++
		order.InvoiceNumber = fmt.Sprintf("INV-%d-%d", time.Now().UnixMilli(), s.orderSeq)
	}

	total := int64(0)
	priced := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Qty <= 0 {
			return nil, store.ErrInvalidInput
		}
		sv, ok := s.servicesByID[item.ServiceID]
		if !ok || sv.MerchantID != order.MerchantID {
			return nil, store.ErrNotFound
		}
		var price int64
		found := false
		for _, p := range sv.Prices {
			if p.DurationID == order.DurationID {
				price = p.Price
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("service %s has no price for the requested duration: %w", item.ServiceID, store.ErrInvalidInput)
		}
		subtotal := int64(float64(price) * item.Qty)
		priced = append(priced, domain.OrderItem{
			ServiceID:   item.ServiceID,
			ServiceName: sv.Name,
			Qty:         item.Qty,
			Price:       price,
			Subtotal:    subtotal,
		})
		total += subtotal
	}
	order.Items = priced
	order.Total = total

	saved := order
	s.ordersByID[order.ID] = &saved
	s.paymentsByInv[order.InvoiceNumber] = &domain.Payment{
		ID:            xid.New("pay"),
		MerchantID:    order.MerchantID,
		InvoiceNumber: order.InvoiceNumber,
		Status:        domain.PaymentStatusBelumDibayar,
		AmountDue:     order.Total,
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, merchantID, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ordersByID[orderID]
	if !ok || o.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	found := *o
	return &found, nil
}

func (s *Store) GetOrderByInvoice(_ context.Context, merchantID, invoiceNumber string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.ordersByID {
		if o.MerchantID == merchantID && o.InvoiceNumber == invoiceNumber {
			found := *o
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOrders(_ context.Context, merchantID string, filter store.OrderFilter) ([]domain.Order, int, error) {
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	s.mu.RLock()
	matched := make([]domain.Order, 0, len(s.ordersByID))
	for _, o := range s.ordersByID {
		if o.MerchantID != merchantID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, *o)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	offset := (filter.Page - 1) * filter.Limit
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, merchantID, orderID, status string, at time.Time) (*domain.Order, error) {
	if domain.OrderStatusRank(status) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ordersByID[orderID]
	if !ok || o.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	if domain.OrderStatusRank(status) <= domain.OrderStatusRank(o.Status) {
		return nil, store.ErrConflict
	}
	o.Status = status
	if status == domain.OrderStatusSelesai {
		completed := at
		o.CompletedAt = &completed
	}
	updated := *o
	return &updated, nil
}

func (s *Store) GetPaymentByInvoice(_ context.Context, merchantID, invoiceNumber string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paymentsByInv[invoiceNumber]
	if !ok || p.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	found := *p
	return &found, nil
}

func (s *Store) SettlePayment(_ context.Context, merchantID, invoiceNumber string, amountPaid int64, at time.Time) (*domain.Payment, error) {
	if amountPaid < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paymentsByInv[invoiceNumber]
	if !ok || p.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	if p.Status == domain.PaymentStatusLunas {
		return nil, store.ErrConflict
	}
	if amountPaid < p.AmountDue {
		return nil, store.ErrInvalidInput
	}
	p.Status = domain.PaymentStatusLunas
	p.AmountPaid = amountPaid
	p.ChangeGiven = amountPaid - p.AmountDue
	paidAt := at
	p.PaidAt = &paidAt
	settled := *p
	return &settled, nil
}

func (s *Store) ListPlans(_ context.Context) ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plans := make([]domain.Plan, 0, len(s.plansByID))
	for _, p := range s.plansByID {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
	return plans, nil
}

func (s *Store) GetPlanByCode(_ context.Context, code string) (*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plansByID {
		if p.Code == code {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetPlanByID(_ context.Context, id string) (*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plansByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) GetSubscription(_ context.Context, merchantID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subsByMch[merchantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if plan, ok := s.plansByID[sub.PlanID]; ok {
		sub.PlanCode = plan.Code
	}
	found := sub
	return &found, nil
}

func (s *Store) ReplaceSubscription(_ context.Context, sub domain.Subscription) error {
	if sub.MerchantID == "" || sub.PlanID == "" {
		return store.ErrInvalidInput
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionStatusActive
	}
	s.mu.Lock()
	s.subsByMch[sub.MerchantID] = sub
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateBillingInvoice(_ context.Context, invoice domain.BillingInvoice) (*domain.BillingInvoice, error) {
	if invoice.InvoiceID == "" || invoice.MerchantID == "" || invoice.PlanID == "" {
		return nil, store.ErrInvalidInput
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusMenungguPembayaran
	}
	if !domain.ValidInvoiceStatus(invoice.Status) {
		return nil, store.ErrInvalidInput
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoicesByID[invoice.InvoiceID]; exists {
		return nil, store.ErrConflict
	}
	saved := invoice
	s.invoicesByID[invoice.InvoiceID] = &saved
	created := invoice
	return &created, nil
}

func (s *Store) GetBillingInvoice(_ context.Context, invoiceID string) (*domain.BillingInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoicesByID[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *inv
	return &found, nil
}

func (s *Store) ListBillingInvoices(_ context.Context, merchantID string) ([]domain.BillingInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoices := make([]domain.BillingInvoice, 0, 8)
	for _, inv := range s.invoicesByID {
		if inv.MerchantID == merchantID {
			invoices = append(invoices, *inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].CreatedAt.After(invoices[j].CreatedAt) })
	return invoices, nil
}

func (s *Store) MarkProofUploaded(_ context.Context, invoiceID, proofURL string) (*domain.BillingInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoicesByID[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if inv.Status != domain.InvoiceStatusMenungguPembayaran {
		return nil, store.ErrConflict
	}
	inv.Status = domain.InvoiceStatusMenungguKonfirmasi
	inv.ProofURL = proofURL
	updated := *inv
	return &updated, nil
}

func (s *Store) DecideInvoice(_ context.Context, invoiceID, status string, at time.Time) (*domain.BillingInvoice, error) {
	if status != domain.InvoiceStatusDiterima && status != domain.InvoiceStatusDitolak {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoicesByID[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if inv.Status == domain.InvoiceStatusDiterima || inv.Status == domain.InvoiceStatusDitolak {
		return nil, store.ErrConflict
	}
	inv.Status = status
	decidedAt := at
	inv.DecidedAt = &decidedAt
	decided := *inv
	return &decided, nil
}

func (s *Store) AcceptInvoice(_ context.Context, invoiceID string, sub domain.Subscription, at time.Time) (*domain.BillingInvoice, error) {
	if sub.MerchantID == "" || sub.PlanID == "" {
		return nil, store.ErrInvalidInput
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionStatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoicesByID[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if inv.Status == domain.InvoiceStatusDiterima || inv.Status == domain.InvoiceStatusDitolak {
		return nil, store.ErrConflict
	}

	inv.Status = domain.InvoiceStatusDiterima
	decidedAt := at
	inv.DecidedAt = &decidedAt
	s.subsByMch[sub.MerchantID] = sub

	decided := *inv
	return &decided, nil
}

func (s *Store) HasOpenInvoice(_ context.Context, merchantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoicesByID {
		if inv.MerchantID != merchantID {
			continue
		}
		if inv.Status == domain.InvoiceStatusMenungguPembayaran || inv.Status == domain.InvoiceStatusMenungguKonfirmasi {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListSubscriptionsEndingOn(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	return s.listSubscriptionsOnDay(day)
}

func (s *Store) ListSubscriptionsEndedOn(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	return s.listSubscriptionsOnDay(day)
}

func (s *Store) listSubscriptionsOnDay(day time.Time) ([]domain.Subscription, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]domain.Subscription, 0, 8)
	for _, sub := range s.subsByMch {
		if !sub.EndDate.Before(start) && sub.EndDate.Before(end) {
			if plan, ok := s.plansByID[sub.PlanID]; ok {
				sub.PlanCode = plan.Code
			}
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *Store) GetRevenueCells(_ context.Context, merchantID string, from, to time.Time) ([]domain.RevenueCell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		day     string
		service string
	}
	byKey := map[key]*domain.RevenueCell{}
	for _, o := range s.ordersByID {
		if o.MerchantID != merchantID || o.Status != domain.OrderStatusSelesai || o.CompletedAt == nil {
			continue
		}
		at := o.CompletedAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		for _, item := range o.Items {
			k := key{day: day.Format("2006-01-02"), service: item.ServiceID}
			cell, ok := byKey[k]
			if !ok {
				cell = &domain.RevenueCell{Day: day, ServiceID: item.ServiceID, ServiceName: item.ServiceName}
				byKey[k] = cell
			}
			cell.Qty += item.Qty
			cell.Revenue += item.Subtotal
		}
		// one order counts once per service it touches
		seen := map[string]bool{}
		for _, item := range o.Items {
			if seen[item.ServiceID] {
				continue
			}
			seen[item.ServiceID] = true
			byKey[key{day: day.Format("2006-01-02"), service: item.ServiceID}].Orders++
		}
	}

	cells := make([]domain.RevenueCell, 0, len(byKey))
	for _, cell := range byKey {
		cells = append(cells, *cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Day.Equal(cells[j].Day) {
			return cells[i].ServiceName < cells[j].ServiceName
		}
		return cells[i].Day.Before(cells[j].Day)
	})
	return cells, nil
}

func (s *Store) CountCompletedOrdersByDay(_ context.Context, merchantID string, from, to time.Time) ([]domain.DayOrderCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := map[time.Time]int64{}
	for _, o := range s.ordersByID {
		if o.MerchantID != merchantID || o.Status != domain.OrderStatusSelesai || o.CompletedAt == nil {
			continue
		}
		at := o.CompletedAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day]++
	}

	counts := make([]domain.DayOrderCount, 0, len(byDay))
	for day, orders := range byDay {
		counts = append(counts, domain.DayOrderCount{Day: day, Orders: orders})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Day.Before(counts[j].Day) })
	return counts, nil
}

func (s *Store) GetDashboardSummary(_ context.Context, merchantID string, now time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{OrdersByStatus: map[string]int64{}}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayEnd := todayStart.Add(24 * time.Hour)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.ordersByID {
		if o.MerchantID != merchantID {
			continue
		}
		summary.OrdersByStatus[o.Status]++
		if o.Status != domain.OrderStatusSelesai || o.CompletedAt == nil {
			continue
		}
		at := *o.CompletedAt
		if !at.Before(todayStart) && at.Before(todayEnd) {
			summary.TodayRevenue += o.Total
		}
		if !at.Before(monthStart) && at.Before(monthEnd) {
			summary.MonthRevenue += o.Total
		}
	}
	for _, c := range s.customersByID {
		if c.MerchantID == merchantID {
			summary.CustomerCount++
		}
	}
	return summary, nil
}
