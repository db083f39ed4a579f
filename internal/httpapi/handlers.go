package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
)

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.CustomerFilter{
			Search: strings.TrimSpace(r.URL.Query().Get("search")),
			Page:   parsePositiveInt(r.URL.Query().Get("page"), 1, 0),
			Limit:  parsePositiveInt(r.URL.Query().Get("limit"), 10, 100),
		}
		resp, err := a.service.ListCustomers(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimPrefix(r.URL.Path, "/api/v1/customers/")
	if customerID == "" || strings.Contains(customerID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), customerID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPut, http.MethodPatch:
		var req domain.CustomerUpdateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), customerID, req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), customerID); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDurations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		durations, err := a.service.ListDurations(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"durations": durations})
	case http.MethodPost:
		var req domain.DurationCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		duration, err := a.service.CreateDuration(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"duration": duration})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDurationActions(w http.ResponseWriter, r *http.Request) {
	durationID := strings.TrimPrefix(r.URL.Path, "/api/v1/durations/")
	if durationID == "" || strings.Contains(durationID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var req domain.DurationCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		duration, err := a.service.UpdateDuration(r.Context(), durationID, req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"duration": duration})
	case http.MethodDelete:
		if err := a.service.DeleteDuration(r.Context(), durationID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				writeError(w, http.StatusConflict, errors.New("durasi masih dipakai oleh layanan"))
				return
			}
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := a.service.ListServices(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": services})
	case http.MethodPost:
		var req domain.ServiceCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		svc, err := a.service.CreateService(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"service": svc})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleServiceActions(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	if serviceID == "" || strings.Contains(serviceID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		svc, err := a.service.GetService(r.Context(), serviceID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": svc})
	case http.MethodPut, http.MethodPatch:
		var req domain.ServiceCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		svc, err := a.service.UpdateService(r.Context(), serviceID, req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": svc})
	case http.MethodDelete:
		if err := a.service.DeleteService(r.Context(), serviceID); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		note, err := a.service.GetNote(r.Context())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"note": nil})
				return
			}
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"note": note})
	case http.MethodPut, http.MethodPost:
		var req domain.NoteUpsertRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		note, err := a.service.UpsertNote(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"note": note})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePrinters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		printers, err := a.service.ListPrinters(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"printers": printers})
	case http.MethodPost:
		var req domain.PrinterRegisterRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		printer, err := a.service.RegisterPrinter(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"printer": printer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePrinterActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/printers/")
	deviceID, action, _ := strings.Cut(rest, "/")
	if deviceID == "" || action != "activate" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	printer, err := a.service.ActivatePrinter(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"printer": printer})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if invoiceNumber := strings.TrimSpace(r.URL.Query().Get("invoice")); invoiceNumber != "" {
			order, err := a.service.GetOrderByInvoice(r.Context(), invoiceNumber)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"transaction": order})
			return
		}
		filter := store.OrderFilter{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Page:   parsePositiveInt(r.URL.Query().Get("page"), 1, 0),
			Limit:  parsePositiveInt(r.URL.Query().Get("limit"), 10, 100),
		}
		resp, err := a.service.ListOrders(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.OrderCreateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		order, err := a.service.CreateOrder(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transaction": order})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	orderID, action, hasAction := strings.Cut(rest, "/")
	if orderID == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch {
	case !hasAction && r.Method == http.MethodGet:
		order, err := a.service.GetOrder(r.Context(), orderID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": order})
	case hasAction && action == "status" && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		var req domain.OrderStatusUpdateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		order, err := a.service.UpdateOrderStatus(r.Context(), orderID, req)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				writeError(w, http.StatusConflict, errors.New("status tidak dapat mundur"))
				return
			}
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": order})
	case !hasAction:
		writeMethodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		invoiceNumber := strings.TrimSpace(r.URL.Query().Get("invoice"))
		if invoiceNumber == "" {
			writeError(w, http.StatusBadRequest, errors.New("invoice query parameter required"))
			return
		}
		payment, err := a.service.GetPayment(r.Context(), invoiceNumber)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
	case http.MethodPost:
		var req domain.PaymentSettleRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		payment, err := a.service.SettlePayment(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrConflict):
				writeError(w, http.StatusConflict, errors.New("invoice sudah lunas"))
			case errors.Is(err, store.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, errors.New("jumlah bayar kurang dari tagihan"))
			default:
				writeStoreError(w, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
	default:
		writeMethodNotAllowed(w)
	}
}

func parseReportRange(r *http.Request) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	fromRaw := strings.TrimSpace(r.URL.Query().Get("from"))
	toRaw := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to query parameters required: %w", store.ErrInvalidInput)
	}
	from, err := time.Parse(layout, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", store.ErrInvalidInput)
	}
	to, err := time.Parse(layout, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", store.ErrInvalidInput)
	}
	return from, to, nil
}

func (a *API) handleRevenueReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseReportRange(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	report, err := a.service.RevenueReport(r.Context(), from, to)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleRevenueReportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseReportRange(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	data, filename, err := a.service.RevenueReportXLSX(r.Context(), from, to)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	summary, err := a.service.DashboardSummary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
