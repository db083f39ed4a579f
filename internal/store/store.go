package store

import (
	"context"
	"errors"
	"time"

	"cucibersih/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict covers integrity violations: deleting a referenced duration,
	// settling an already-paid invoice, re-deciding a decided billing invoice,
	// moving an order status backwards.
	ErrConflict = errors.New("conflict")
	ErrCooldown = errors.New("cooldown active")
)

type CustomerFilter struct {
	Search string
	Page   int
	Limit  int
}

type OrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type Repository interface {
	// merchants / auth
	CreateMerchant(ctx context.Context, acct domain.MerchantAccount) (*domain.Merchant, error)
	GetMerchantByEmail(ctx context.Context, email string) (*domain.MerchantAccount, error)
	GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error)
	UpdateMerchant(ctx context.Context, merchant domain.Merchant) (*domain.Merchant, error)
	UpdateMerchantPassword(ctx context.Context, merchantID string, passwordHash string) error
	AddReferralPoint(ctx context.Context, referralCode string) error

	// password resets: one unconsumed code per merchant, 60s request cooldown,
	// all statements in one transaction
	CreatePasswordReset(ctx context.Context, reset domain.PasswordReset) error
	ConsumePasswordReset(ctx context.Context, merchantID string, code string, at time.Time) error

	// customers
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, merchantID, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, merchantID string, filter CustomerFilter) ([]domain.Customer, int, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, merchantID, customerID string) error

	// durations
	CreateDuration(ctx context.Context, duration domain.Duration) (*domain.Duration, error)
	GetDurationByID(ctx context.Context, merchantID, durationID string) (*domain.Duration, error)
	ListDurations(ctx context.Context, merchantID string) ([]domain.Duration, error)
	UpdateDuration(ctx context.Context, duration domain.Duration) (*domain.Duration, error)
	// DeleteDuration fails with ErrConflict while any service price references it.
	DeleteDuration(ctx context.Context, merchantID, durationID string) error

	// services (header + per-duration prices in one transaction)
	CreateService(ctx context.Context, service domain.Service) (*domain.Service, error)
	GetServiceByID(ctx context.Context, merchantID, serviceID string) (*domain.Service, error)
	ListServices(ctx context.Context, merchantID string) ([]domain.Service, error)
	UpdateService(ctx context.Context, service domain.Service) (*domain.Service, error)
	DeleteService(ctx context.Context, merchantID, serviceID string) error

	// note (single row per merchant, upsert semantics)
	GetNote(ctx context.Context, merchantID string) (*domain.Note, error)
	UpsertNote(ctx context.Context, note domain.Note) (*domain.Note, error)

	// printers: at most one active device per merchant, deactivation of
	// siblings and the insert/activate run inside one transaction
	ListPrinters(ctx context.Context, merchantID string) ([]domain.PrinterDevice, error)
	RegisterPrinter(ctx context.Context, device domain.PrinterDevice) (*domain.PrinterDevice, error)
	ActivatePrinter(ctx context.Context, merchantID, deviceID string) (*domain.PrinterDevice, error)

	// orders: header + immutable items + the Belum Dibayar payment row are
	// created in one transaction; line prices are captured from the price
	// list in effect at creation
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, merchantID, orderID string) (*domain.Order, error)
	GetOrderByInvoice(ctx context.Context, merchantID, invoiceNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, merchantID string, filter OrderFilter) ([]domain.Order, int, error)
	UpdateOrderStatus(ctx context.Context, merchantID, orderID, status string, at time.Time) (*domain.Order, error)

	// payments
	GetPaymentByInvoice(ctx context.Context, merchantID, invoiceNumber string) (*domain.Payment, error)
	SettlePayment(ctx context.Context, merchantID, invoiceNumber string, amountPaid int64, at time.Time) (*domain.Payment, error)

	// billing
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*domain.Plan, error)
	GetPlanByID(ctx context.Context, id string) (*domain.Plan, error)
	GetSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error)
	// ReplaceSubscription deletes any existing row and inserts the new one in
	// one transaction
	ReplaceSubscription(ctx context.Context, sub domain.Subscription) error
	CreateBillingInvoice(ctx context.Context, invoice domain.BillingInvoice) (*domain.BillingInvoice, error)
	GetBillingInvoice(ctx context.Context, invoiceID string) (*domain.BillingInvoice, error)
	ListBillingInvoices(ctx context.Context, merchantID string) ([]domain.BillingInvoice, error)
	// MarkProofUploaded transitions Menunggu Pembayaran -> Menunggu Konfirmasi
	MarkProofUploaded(ctx context.Context, invoiceID, proofURL string) (*domain.BillingInvoice, error)
	// DecideInvoice transitions to Diterima or Ditolak; decided invoices are
	// final (ErrConflict on a second decision)
	DecideInvoice(ctx context.Context, invoiceID, status string, at time.Time) (*domain.BillingInvoice, error)
	// AcceptInvoice marks the invoice Diterima and writes the subscription row
	// in the same transaction, so a failure cannot leave an accepted invoice
	// without its subscription
	AcceptInvoice(ctx context.Context, invoiceID string, sub domain.Subscription, at time.Time) (*domain.BillingInvoice, error)
	HasOpenInvoice(ctx context.Context, merchantID string) (bool, error)
	ListSubscriptionsEndingOn(ctx context.Context, day time.Time) ([]domain.Subscription, error)
	ListSubscriptionsEndedOn(ctx context.Context, day time.Time) ([]domain.Subscription, error)

	// reports
	GetRevenueCells(ctx context.Context, merchantID string, from, to time.Time) ([]domain.RevenueCell, error)
	CountCompletedOrdersByDay(ctx context.Context, merchantID string, from, to time.Time) ([]domain.DayOrderCount, error)
	GetDashboardSummary(ctx context.Context, merchantID string, now time.Time) (domain.DashboardSummary, error)
}
