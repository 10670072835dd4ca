package charge

import (
	"errors"
	"testing"
	"time"
)

func TestDaysOverdue(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	today := time.Date(2024, time.January, 17, 9, 30, 0, 0, saoPaulo)

	tests := []struct {
		name     string
		dueDate  string
		expected int
		wantErr  bool
	}{
		{name: "seven days ago", dueDate: "2024-01-10T00:00:00.000Z", expected: 7},
		{name: "due today", dueDate: "2024-01-17T00:00:00.000Z", expected: 0},
		{name: "without fractional seconds", dueDate: "2024-01-16T03:00:00Z", expected: 1},
		{name: "across month boundary", dueDate: "2023-12-31T00:00:00.000Z", expected: 17},
		{name: "not yet due", dueDate: "2024-01-20T00:00:00.000Z", expected: -3},
		{name: "empty", dueDate: "", wantErr: true},
		{name: "garbage", dueDate: "10/01/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DaysOverdue(tt.dueDate, today)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %d days, got %d", tt.expected, got)
			}
		})
	}
}

func TestDaysOverdue_MissingDueDate(t *testing.T) {
	_, err := DaysOverdue("  ", time.Now())
	if !errors.Is(err, ErrMissingDueDate) {
		t.Errorf("expected ErrMissingDueDate, got %v", err)
	}
}

func TestNewInvoice(t *testing.T) {
	today := time.Date(2024, time.January, 17, 12, 0, 0, 0, time.UTC)
	payment := Payment{
		PayerName:         "Ana",
		PayerPhone:        "(11) 99999-9999",
		BoletoURL:         "http://x/1",
		DueDate:           "2024-01-10T00:00:00.000Z",
		ExternalStatus:    "OVERDUE",
		BoletoDigitalLine: "23790.00000",
	}

	inv, err := NewInvoice(payment, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.DaysDue != 7 {
		t.Errorf("expected DaysDue 7, got %d", inv.DaysDue)
	}
	if inv.PayerPhone != "551199999999" {
		t.Errorf("expected normalized phone, got %q", inv.PayerPhone)
	}
	if inv.DueDate != payment.DueDate {
		t.Errorf("expected raw due date to be kept, got %q", inv.DueDate)
	}
	if inv.BoletoDigitalLine != payment.BoletoDigitalLine || inv.ExternalStatus != payment.ExternalStatus {
		t.Error("expected pass-through fields to be copied")
	}
}

func TestNewInvoice_MissingPhoneStaysAbsent(t *testing.T) {
	today := time.Date(2024, time.January, 17, 12, 0, 0, 0, time.UTC)

	inv, err := NewInvoice(Payment{PayerName: "Bruno", DueDate: "2024-01-10T00:00:00.000Z"}, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.HasPhone() {
		t.Errorf("expected no phone, got %q", inv.PayerPhone)
	}
}

func TestSortByDueDate(t *testing.T) {
	invoices := []Invoice{
		{PayerName: "c", DueDate: "2024-01-12T00:00:00.000Z"},
		{PayerName: "a", DueDate: "2024-01-08T00:00:00.000Z"},
		{PayerName: "b1", DueDate: "2024-01-10T00:00:00.000Z"},
		{PayerName: "b2", DueDate: "2024-01-10T00:00:00.000Z"},
	}

	SortByDueDate(invoices)

	expected := []string{"a", "b1", "b2", "c"}
	for i, name := range expected {
		if invoices[i].PayerName != name {
			t.Errorf("position %d: expected %q, got %q", i, name, invoices[i].PayerName)
		}
	}
	for i := 1; i < len(invoices); i++ {
		if invoices[i-1].DueDate > invoices[i].DueDate {
			t.Errorf("expected non-decreasing due dates at %d", i)
		}
	}
}
