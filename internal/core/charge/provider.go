package charge

import (
	"context"
	"time"
)

// SearchByDueDate makes the provider match payments on their due date.
const SearchByDueDate = "DUE_DATE"

// PaymentQuery selects the payments listed by a Provider.
type PaymentQuery struct {
	SubscriberID string
	From         time.Time
	To           time.Time
	SearchType   string
}

// Provider defines the billing system the charge finder reads from.
type Provider interface {
	// ListPayments returns every payment matching the query. A transport
	// failure or a non-success response is returned as an error.
	ListPayments(ctx context.Context, query PaymentQuery) ([]Payment, error)
}
