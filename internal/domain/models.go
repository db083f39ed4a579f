package domain

import "time"

// Merchant is the tenant. Every catalog and transaction row is owned by
// exactly one merchant.
type Merchant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address,omitempty"`
	LogoURL        string    `json:"logo_url,omitempty"`
	ReferralCode   string    `json:"referral_code"`
	ReferralPoints int       `json:"referral_points"`
	CreatedAt      time.Time `json:"created_at"`
}

// MerchantAccount is the internal persistence model carrying the password hash.
type MerchantAccount struct {
	Merchant
	PasswordHash string
	IsDeleted    bool
}

type RegisterRequest struct {
	Name         string `json:"name" validate:"required,min=2"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,min=8"`
	Password     string `json:"password" validate:"required,min=8"`
	Address      string `json:"address"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken     string    `json:"access_token"`
	ExpiresAt       string    `json:"expires_at"`
	Merchant        Merchant  `json:"merchant"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

type MerchantUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,min=8"`
	Address *string `json:"address,omitempty"`
	LogoURL *string `json:"logo_url,omitempty" validate:"omitempty,url"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type PasswordReset struct {
	MerchantID string
	Code       string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// Actor identifies the authenticated merchant on a request context.
type Actor struct {
	MerchantID      string
	Email           string
	SubscriptionEnd time.Time
}

type Customer struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"-"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	Address    string    `json:"address,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Phone   string `json:"phone" validate:"required,min=8"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
	Gender  string `json:"gender" validate:"omitempty,oneof=Laki-laki Perempuan"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,min=8"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Address *string `json:"address,omitempty"`
	Gender  *string `json:"gender,omitempty" validate:"omitempty,oneof=Laki-laki Perempuan"`
}

// Duration is a turnaround tier (e.g. "Express", 6 jam).
type Duration struct {
	ID         string `json:"id"`
	MerchantID string `json:"-"`
	Name       string `json:"name"`
	Value      int    `json:"value"`
	Type       string `json:"type"`
}

type DurationCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Value int    `json:"value" validate:"required,min=1"`
	Type  string `json:"type" validate:"required,oneof=hari jam"`
}

// ServicePrice is the price of a service at one duration tier.
type ServicePrice struct {
	DurationID   string `json:"duration_id"`
	DurationName string `json:"duration_name,omitempty"`
	Price        int64  `json:"price"`
}

type Service struct {
	ID         string         `json:"id"`
	MerchantID string         `json:"-"`
	Name       string         `json:"name"`
	Unit       string         `json:"unit"`
	Prices     []ServicePrice `json:"prices"`
}

type ServicePriceInput struct {
	DurationID string `json:"duration_id" validate:"required"`
	Price      int64  `json:"price" validate:"required,min=1"`
}

type ServiceCreateRequest struct {
	Name   string              `json:"name" validate:"required"`
	Unit   string              `json:"unit" validate:"required,oneof=kg pcs meter"`
	Prices []ServicePriceInput `json:"prices" validate:"required,min=1,dive"`
}

// Note is the single free-text note a merchant keeps (receipt footer etc.).
type Note struct {
	MerchantID string    `json:"-"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type NoteUpsertRequest struct {
	Content string `json:"content" validate:"required"`
}

type PrinterDevice struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"-"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type PrinterRegisterRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
}

const (
	OrderStatusDiproses    = "Diproses"
	OrderStatusSiapDiambil = "Siap Diambil"
	OrderStatusSelesai     = "Selesai"
)

type OrderItem struct {
	ServiceID   string  `json:"service_id"`
	ServiceName string  `json:"service_name,omitempty"`
	Qty         float64 `json:"qty"`
	// Price is captured from the service/duration price list at order time
	// so later catalog changes never rewrite historical totals.
	Price    int64 `json:"price"`
	Subtotal int64 `json:"subtotal"`
}

type Order struct {
	ID            string      `json:"id"`
	MerchantID    string      `json:"-"`
	InvoiceNumber string      `json:"invoice_number"`
	CustomerID    string      `json:"customer_id"`
	CustomerName  string      `json:"customer_name,omitempty"`
	DurationID    string      `json:"duration_id"`
	DurationName  string      `json:"duration_name,omitempty"`
	Status        string      `json:"status"`
	Total         int64       `json:"total"`
	CreatedAt     time.Time   `json:"created_at"`
	EstimatedDone time.Time   `json:"estimated_done"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	Items         []OrderItem `json:"items"`
}

type OrderItemInput struct {
	ServiceID string  `json:"service_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type OrderCreateRequest struct {
	CustomerID string           `json:"customer_id" validate:"required"`
	DurationID string           `json:"duration_id" validate:"required"`
	Items      []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=Diproses 'Siap Diambil' Selesai"`
}

const (
	PaymentStatusBelumDibayar = "Belum Dibayar"
	PaymentStatusLunas        = "Lunas"
)

type Payment struct {
	ID            string     `json:"id"`
	MerchantID    string     `json:"-"`
	InvoiceNumber string     `json:"invoice_number"`
	Status        string     `json:"status"`
	AmountDue     int64      `json:"amount_due"`
	AmountPaid    int64      `json:"amount_paid"`
	ChangeGiven   int64      `json:"change_given"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type PaymentSettleRequest struct {
	InvoiceNumber string `json:"invoice_number" validate:"required"`
	AmountPaid    int64  `json:"amount_paid" validate:"required,min=1"`
}

// Plan is a subscription tier offered to merchants. A plan with zero
// DurationDays is an on-boarding plan whose acceptance starts the clock at
// the acceptance time instead of extending an existing period.
type Plan struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	DurationDays int    `json:"duration_days"`
}

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

type Subscription struct {
	MerchantID string    `json:"-"`
	PlanID     string    `json:"plan_id"`
	PlanCode   string    `json:"plan_code,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Status     string    `json:"status"`
}

const (
	InvoiceStatusMenungguPembayaran = "Menunggu Pembayaran"
	InvoiceStatusMenungguKonfirmasi = "Menunggu Konfirmasi"
	InvoiceStatusDiterima           = "Diterima"
	InvoiceStatusDitolak            = "Ditolak"
)

// BillingInvoice is a subscription payment request, distinct from the
// per-order invoice number on transactions.
type BillingInvoice struct {
	InvoiceID  string     `json:"invoice_id"`
	MerchantID string     `json:"-"`
	PlanID     string     `json:"plan_id"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	DueDate    time.Time  `json:"due_date"`
	ProofURL   string     `json:"proof_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

type SubscribeRequest struct {
	PlanCode string `json:"plan_code" validate:"required"`
}

type ProofUploadRequest struct {
	Token    string `json:"token" validate:"required"`
	ProofURL string `json:"proof_url" validate:"required,url"`
}

type InvoiceDecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=Diterima Ditolak"`
}

// PageMeta carries LIMIT/OFFSET pagination state. IsLastPage is true iff
// page*limit >= total; a page past the end yields an empty item list.
type PageMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	IsFirstPage bool `json:"is_first_page"`
	IsLastPage  bool `json:"is_last_page"`
}

func NewPageMeta(page, limit, total int) PageMeta {
	if limit < 1 {
		limit = 10
	}
	if page < 1 {
		page = 1
	}
	totalPages := (total + limit - 1) / limit
	return PageMeta{
		Page:        page,
		Limit:       limit,
		TotalItems:  total,
		TotalPages:  totalPages,
		IsFirstPage: page == 1,
		IsLastPage:  page*limit >= total,
	}
}

type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
	Meta      PageMeta   `json:"meta"`
}

type OrderListResponse struct {
	Orders []Order  `json:"orders"`
	Meta   PageMeta `json:"meta"`
}

// RevenueCell is one (day, service) aggregate produced by the report query.
// The per-service pivot happens in application code, never in SQL text.
type RevenueCell struct {
	Day         time.Time
	ServiceID   string
	ServiceName string
	Orders      int64
	Qty         float64
	Revenue     int64
}

// DayOrderCount is the number of distinct completed orders on one calendar
// day. Unlike RevenueCell.Orders it never double-counts an order that spans
// several services.
type DayOrderCount struct {
	Day    time.Time
	Orders int64
}

type ReportServiceColumn struct {
	ServiceID   string  `json:"service_id"`
	ServiceName string  `json:"service_name"`
	TotalQty    float64 `json:"total_qty"`
	TotalAmount int64   `json:"total_amount"`
}

type ReportDayRow struct {
	Date         string           `json:"date"`
	PerService   map[string]int64 `json:"per_service"`
	TotalRevenue int64            `json:"total_revenue"`
	Transactions int64            `json:"transactions"`
}

type RevenueReport struct {
	MerchantID        string                `json:"-"`
	From              string                `json:"from"`
	To                string                `json:"to"`
	Services          []ReportServiceColumn `json:"services"`
	Days              []ReportDayRow        `json:"days"`
	TotalRevenue      int64                 `json:"total_revenue"`
	TotalTransactions int64                 `json:"total_transactions"`
}

type DashboardSummary struct {
	TodayRevenue   int64            `json:"today_revenue"`
	MonthRevenue   int64            `json:"month_revenue"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	CustomerCount  int64            `json:"customer_count"`
}

// OrderStatusRank orders the fulfillment states; transitions only move to a
// strictly higher rank.
func OrderStatusRank(status string) int {
	switch status {
	case OrderStatusDiproses:
		return 1
	case OrderStatusSiapDiambil:
		return 2
	case OrderStatusSelesai:
		return 3
	default:
		return 0
	}
}

// ValidInvoiceStatus reports whether s is one of the four billing invoice
// states. Unknown statuses are rejected at the boundary.
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusMenungguPembayaran, InvoiceStatusMenungguKonfirmasi,
		InvoiceStatusDiterima, InvoiceStatusDitolak:
		return true
	}
	return false
}
