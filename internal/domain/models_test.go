package domain

import "testing"

func TestNewPageMetaFlags(t *testing.T) {
	cases := []struct {
		name        string
		page, limit int
		total       int
		first, last bool
		totalPages  int
	}{
		{"first of three", 1, 10, 25, true, false, 3},
		{"middle", 2, 10, 25, false, false, 3},
		{"last partial", 3, 10, 25, false, true, 3},
		{"beyond the end", 4, 10, 25, false, true, 3},
		{"exact boundary", 2, 10, 20, false, true, 2},
		{"empty set", 1, 10, 0, true, true, 0},
	}

	for _, tc := range cases {
		meta := NewPageMeta(tc.page, tc.limit, tc.total)
		if meta.IsFirstPage != tc.first || meta.IsLastPage != tc.last || meta.TotalPages != tc.totalPages {
			t.Errorf("%s: got %+v", tc.name, meta)
		}
	}
}

func TestOrderStatusRankIsMonotonic(t *testing.T) {
	if OrderStatusRank(OrderStatusDiproses) >= OrderStatusRank(OrderStatusSiapDiambil) {
		t.Fatalf("Diproses must rank below Siap Diambil")
	}
	if OrderStatusRank(OrderStatusSiapDiambil) >= OrderStatusRank(OrderStatusSelesai) {
		t.Fatalf("Siap Diambil must rank below Selesai")
	}
	if OrderStatusRank("Dibatalkan") != 0 {
		t.Fatalf("unknown status must rank zero")
	}
}

func TestValidInvoiceStatus(t *testing.T) {
	for _, s := range []string{
		InvoiceStatusMenungguPembayaran,
		InvoiceStatusMenungguKonfirmasi,
		InvoiceStatusDiterima,
		InvoiceStatusDitolak,
	} {
		if !ValidInvoiceStatus(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if ValidInvoiceStatus("Dibatalkan") || ValidInvoiceStatus("") {
		t.Fatalf("unknown statuses must be rejected")
	}
}
