package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cucibersih/backend/internal/billing"
	"cucibersih/backend/internal/cache"
	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/mailer"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	repo := memory.NewSeeded()
	engine := billing.NewEngine(repo, cache.NoopSubscriptionCache{}, mailer.NoopMailer{}, []byte("test-secret-test-secret-test-1234"), "http://localhost:3000", "support@example.com", time.UTC)
	svc := New(repo, engine, mailer.NoopMailer{})

	merchant, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Laundry Melati",
		Email:    "melati@example.com",
		Phone:    "+628111111111",
		Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ctx := WithActor(context.Background(), domain.Actor{
		MerchantID: merchant.ID,
		Email:      merchant.Email,
	})
	return svc, ctx
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Laundry Lain",
		Email:    "MELATI@example.com",
		Phone:    "+628222222222",
		Password: "rahasia-456",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestLoginVerifiesPassword(t *testing.T) {
	svc, _ := newTestService(t)

	merchant, _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "melati@example.com",
		Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if merchant.Name != "Laundry Melati" {
		t.Fatalf("unexpected merchant name %q", merchant.Name)
	}

	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "melati@example.com",
		Password: "salah",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	repo := memory.NewSeeded()
	engine := billing.NewEngine(repo, cache.NoopSubscriptionCache{}, mailer.NoopMailer{}, []byte("test-secret-test-secret-test-1234"), "http://localhost:3000", "support@example.com", time.UTC)
	svc := New(repo, engine, mailer.NoopMailer{})

	if _, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Laundry Mawar",
		Email:    "mawar@example.com",
		Phone:    "+628333333333",
		Password: "awal-12345",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := svc.RequestPasswordReset(context.Background(), "mawar@example.com"); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}

	// a second request within the cooldown window is rejected
	if err := svc.RequestPasswordReset(context.Background(), "mawar@example.com"); !errors.Is(err, store.ErrCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}

	// a wrong code never consumes anything
	if err := svc.ConfirmPasswordReset(context.Background(), domain.PasswordResetConfirm{
		Email:       "mawar@example.com",
		Code:        "000000",
		NewPassword: "baru-12345",
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for wrong code, got %v", err)
	}
}

func catalogFixture(t *testing.T, svc *Service, ctx context.Context) (customer *domain.Customer, duration *domain.Duration, laundry *domain.Service) {
	t.Helper()
	var err error
	customer, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:   "Jane",
		Phone:  "+6281234567890",
		Gender: "Perempuan",
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	duration, err = svc.CreateDuration(ctx, domain.DurationCreateRequest{
		Name:  "Reguler",
		Value: 3,
		Type:  "hari",
	})
	if err != nil {
		t.Fatalf("create duration failed: %v", err)
	}
	laundry, err = svc.CreateService(ctx, domain.ServiceCreateRequest{
		Name: "Cuci Kering",
		Unit: "kg",
		Prices: []domain.ServicePriceInput{
			{DurationID: duration.ID, Price: 7000},
		},
	})
	if err != nil {
		t.Fatalf("create service failed: %v", err)
	}
	return customer, duration, laundry
}

func TestCustomerRoundTrip(t *testing.T) {
	svc, ctx := newTestService(t)
	customer, _, _ := catalogFixture(t, svc, ctx)

	fetched, err := svc.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if fetched.Name != "Jane" || fetched.Gender != "Perempuan" {
		t.Fatalf("unexpected customer %+v", fetched)
	}

	newName := "Jane Doe"
	updated, err := svc.UpdateCustomer(ctx, customer.ID, domain.CustomerUpdateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("update customer failed: %v", err)
	}
	if updated.Name != "Jane Doe" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	if err := svc.DeleteCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("delete customer failed: %v", err)
	}
	if _, err := svc.GetCustomer(ctx, customer.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteDurationBlockedWhileReferenced(t *testing.T) {
	svc, ctx := newTestService(t)
	_, duration, laundry := catalogFixture(t, svc, ctx)

	if err := svc.DeleteDuration(ctx, duration.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict while referenced, got %v", err)
	}

	// both rows must be intact
	if _, err := svc.GetService(ctx, laundry.ID); err != nil {
		t.Fatalf("service disappeared: %v", err)
	}
	durations, err := svc.ListDurations(ctx)
	if err != nil || len(durations) != 1 {
		t.Fatalf("expected duration to remain, got %d (%v)", len(durations), err)
	}

	if err := svc.DeleteService(ctx, laundry.ID); err != nil {
		t.Fatalf("delete service failed: %v", err)
	}
	if err := svc.DeleteDuration(ctx, duration.ID); err != nil {
		t.Fatalf("delete duration after unreference failed: %v", err)
	}
}

func TestOrderLifecycle(t *testing.T) {
	svc, ctx := newTestService(t)
	customer, duration, laundry := catalogFixture(t, svc, ctx)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerID: customer.ID,
		DurationID: duration.ID,
		Items: []domain.OrderItemInput{
			{ServiceID: laundry.ID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(order.Items))
	}
	if order.Items[0].Price != 7000 || order.Total != 14000 {
		t.Fatalf("expected captured price 7000 and total 14000, got %d / %d", order.Items[0].Price, order.Total)
	}
	if order.Status != domain.OrderStatusDiproses {
		t.Fatalf("expected initial status Diproses, got %q", order.Status)
	}
	if order.CompletedAt != nil {
		t.Fatalf("expected nil completed_at on a fresh order")
	}

	// a later price change must not rewrite the stored line price
	if _, err := svc.UpdateService(ctx, laundry.ID, domain.ServiceCreateRequest{
		Name: "Cuci Kering",
		Unit: "kg",
		Prices: []domain.ServicePriceInput{
			{DurationID: duration.ID, Price: 9000},
		},
	}); err != nil {
		t.Fatalf("update service failed: %v", err)
	}
	frozen, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if frozen.Items[0].Price != 7000 || frozen.Total != 14000 {
		t.Fatalf("price change leaked into order history: %+v", frozen.Items[0])
	}

	if _, err := svc.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusSiapDiambil}); err != nil {
		t.Fatalf("advance to Siap Diambil failed: %v", err)
	}
	done, err := svc.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusSelesai})
	if err != nil {
		t.Fatalf("advance to Selesai failed: %v", err)
	}
	if done.Status != domain.OrderStatusSelesai || done.CompletedAt == nil {
		t.Fatalf("expected Selesai with completed_at set, got %+v", done)
	}

	// backward transitions are rejected
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusDiproses}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on backward transition, got %v", err)
	}
}

func TestPaymentSettlesExactlyOnce(t *testing.T) {
	svc, ctx := newTestService(t)
	customer, duration, laundry := catalogFixture(t, svc, ctx)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerID: customer.ID,
		DurationID: duration.ID,
		Items:      []domain.OrderItemInput{{ServiceID: laundry.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	pending, err := svc.GetPayment(ctx, order.InvoiceNumber)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if pending.Status != domain.PaymentStatusBelumDibayar || pending.AmountDue != 21000 {
		t.Fatalf("unexpected pending payment %+v", pending)
	}

	// underpayment is rejected
	if _, err := svc.SettlePayment(ctx, domain.PaymentSettleRequest{
		InvoiceNumber: order.InvoiceNumber,
		AmountPaid:    20000,
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input on underpayment, got %v", err)
	}

	settled, err := svc.SettlePayment(ctx, domain.PaymentSettleRequest{
		InvoiceNumber: order.InvoiceNumber,
		AmountPaid:    25000,
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if settled.Status != domain.PaymentStatusLunas || settled.ChangeGiven != 4000 || settled.PaidAt == nil {
		t.Fatalf("unexpected settled payment %+v", settled)
	}

	if _, err := svc.SettlePayment(ctx, domain.PaymentSettleRequest{
		InvoiceNumber: order.InvoiceNumber,
		AmountPaid:    25000,
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on double settle, got %v", err)
	}
}

func TestCustomerPaginationFlags(t *testing.T) {
	svc, ctx := newTestService(t)

	for i := 0; i < 25; i++ {
		if _, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
			Name:  fmt.Sprintf("Pelanggan %02d", i),
			Phone: fmt.Sprintf("+62812345%04d", i),
		}); err != nil {
			t.Fatalf("create customer %d failed: %v", i, err)
		}
	}

	first, err := svc.ListCustomers(ctx, store.CustomerFilter{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list page 1 failed: %v", err)
	}
	if !first.Meta.IsFirstPage || first.Meta.IsLastPage || first.Meta.TotalItems != 25 || first.Meta.TotalPages != 3 {
		t.Fatalf("unexpected page 1 meta %+v", first.Meta)
	}
	if len(first.Customers) != 10 {
		t.Fatalf("expected 10 customers on page 1, got %d", len(first.Customers))
	}

	last, err := svc.ListCustomers(ctx, store.CustomerFilter{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("list page 3 failed: %v", err)
	}
	if last.Meta.IsFirstPage || !last.Meta.IsLastPage || len(last.Customers) != 5 {
		t.Fatalf("unexpected page 3 result: meta %+v, items %d", last.Meta, len(last.Customers))
	}

	beyond, err := svc.ListCustomers(ctx, store.CustomerFilter{Page: 4, Limit: 10})
	if err != nil {
		t.Fatalf("list page 4 failed: %v", err)
	}
	if len(beyond.Customers) != 0 || !beyond.Meta.IsLastPage {
		t.Fatalf("expected empty page past the end, got %d items", len(beyond.Customers))
	}
}

func TestCustomerSearchFilter(t *testing.T) {
	svc, ctx := newTestService(t)
	if _, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Budi Santoso", Phone: "+62811000001"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Siti Aminah", Phone: "+62811000002"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	resp, err := svc.ListCustomers(ctx, store.CustomerFilter{Search: "budi", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resp.Customers) != 1 || resp.Customers[0].Name != "Budi Santoso" {
		t.Fatalf("unexpected search result %+v", resp.Customers)
	}
}

func TestNoteUpsert(t *testing.T) {
	svc, ctx := newTestService(t)

	if _, err := svc.GetNote(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found before upsert, got %v", err)
	}

	if _, err := svc.UpsertNote(ctx, domain.NoteUpsertRequest{Content: "Terima kasih"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := svc.UpsertNote(ctx, domain.NoteUpsertRequest{Content: "Terima kasih, datang lagi"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	note, err := svc.GetNote(ctx)
	if err != nil {
		t.Fatalf("get note failed: %v", err)
	}
	if note.Content != "Terima kasih, datang lagi" {
		t.Fatalf("expected latest content, got %q", note.Content)
	}
}

func TestSingleActivePrinter(t *testing.T) {
	svc, ctx := newTestService(t)

	first, err := svc.RegisterPrinter(ctx, domain.PrinterRegisterRequest{Name: "Kasir Depan", Address: "AA:BB:CC:DD:EE:01"})
	if err != nil {
		t.Fatalf("register printer failed: %v", err)
	}
	second, err := svc.RegisterPrinter(ctx, domain.PrinterRegisterRequest{Name: "Kasir Belakang", Address: "AA:BB:CC:DD:EE:02"})
	if err != nil {
		t.Fatalf("register second printer failed: %v", err)
	}

	printers, err := svc.ListPrinters(ctx)
	if err != nil {
		t.Fatalf("list printers failed: %v", err)
	}
	active := 0
	for _, p := range printers {
		if p.IsActive {
			active++
			if p.ID != second.ID {
				t.Fatalf("expected newest printer to be the active one")
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active printer, got %d", active)
	}

	if _, err := svc.ActivatePrinter(ctx, first.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	printers, _ = svc.ListPrinters(ctx)
	for _, p := range printers {
		if p.IsActive && p.ID != first.ID {
			t.Fatalf("expected only the re-activated printer to be active")
		}
	}
}

func TestRegisterPrinterUpsertsByAddress(t *testing.T) {
	svc, ctx := newTestService(t)

	first, err := svc.RegisterPrinter(ctx, domain.PrinterRegisterRequest{Name: "Kasir", Address: "AA:BB:CC:DD:EE:01"})
	if err != nil {
		t.Fatalf("register printer failed: %v", err)
	}
	renamed, err := svc.RegisterPrinter(ctx, domain.PrinterRegisterRequest{Name: "Kasir Utama", Address: "AA:BB:CC:DD:EE:01"})
	if err != nil {
		t.Fatalf("re-register printer failed: %v", err)
	}
	if renamed.ID != first.ID {
		t.Fatalf("expected the same device row, got %s and %s", first.ID, renamed.ID)
	}
	if renamed.Name != "Kasir Utama" || !renamed.IsActive {
		t.Fatalf("expected updated active device, got %+v", renamed)
	}

	printers, err := svc.ListPrinters(ctx)
	if err != nil {
		t.Fatalf("list printers failed: %v", err)
	}
	if len(printers) != 1 {
		t.Fatalf("expected one device after re-register, got %d", len(printers))
	}
}
