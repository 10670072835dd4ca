package testutil

import (
	"context"

	"oralplatinum/cobranca/internal/core/charge"
	"oralplatinum/cobranca/internal/core/contact"
	"oralplatinum/cobranca/internal/core/reminder"
)

// MockBillingProvider is a mock implementation of charge.Provider.
type MockBillingProvider struct {
	ListPaymentsFunc func(ctx context.Context, query charge.PaymentQuery) ([]charge.Payment, error)
	Queries          []charge.PaymentQuery
}

// ListPayments records the query and calls the mock function if set,
// otherwise returns no payments.
func (m *MockBillingProvider) ListPayments(ctx context.Context, query charge.PaymentQuery) ([]charge.Payment, error) {
	m.Queries = append(m.Queries, query)
	if m.ListPaymentsFunc != nil {
		return m.ListPaymentsFunc(ctx, query)
	}
	return nil, nil
}

// VariableCall is one recorded SetVariable call.
type VariableCall struct {
	ContactID  contact.ID
	VariableID string
	Value      string
}

// MockDirectory is a mock implementation of contact.Directory.
type MockDirectory struct {
	FindByPhoneFunc func(ctx context.Context, phone string) (contact.ID, error)
	CreateFunc      func(ctx context.Context, nc contact.NewContact) (contact.ID, error)
	SetVariableFunc func(ctx context.Context, id contact.ID, variableID, value string) error

	Lookups   []string
	Created   []contact.NewContact
	Variables []VariableCall
}

// FindByPhone calls the mock function if set, otherwise reports not found.
func (m *MockDirectory) FindByPhone(ctx context.Context, phone string) (contact.ID, error) {
	m.Lookups = append(m.Lookups, phone)
	if m.FindByPhoneFunc != nil {
		return m.FindByPhoneFunc(ctx, phone)
	}
	return "", contact.ErrNotFound
}

// Create calls the mock function if set, otherwise returns id 1.
func (m *MockDirectory) Create(ctx context.Context, nc contact.NewContact) (contact.ID, error) {
	m.Created = append(m.Created, nc)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, nc)
	}
	return contact.NumberID(1), nil
}

// SetVariable calls the mock function if set, otherwise succeeds.
func (m *MockDirectory) SetVariable(ctx context.Context, id contact.ID, variableID, value string) error {
	m.Variables = append(m.Variables, VariableCall{ContactID: id, VariableID: variableID, Value: value})
	if m.SetVariableFunc != nil {
		return m.SetVariableFunc(ctx, id, variableID, value)
	}
	return nil
}

// MockSender is a mock implementation of reminder.Sender.
type MockSender struct {
	SendTemplateFunc func(ctx context.Context, msg reminder.Message) error
	RunFlowFunc      func(ctx context.Context, run reminder.FlowRun) error

	Messages []reminder.Message
	Flows    []reminder.FlowRun
}

// SendTemplate calls the mock function if set, otherwise succeeds.
func (m *MockSender) SendTemplate(ctx context.Context, msg reminder.Message) error {
	m.Messages = append(m.Messages, msg)
	if m.SendTemplateFunc != nil {
		return m.SendTemplateFunc(ctx, msg)
	}
	return nil
}

// RunFlow calls the mock function if set, otherwise succeeds.
func (m *MockSender) RunFlow(ctx context.Context, run reminder.FlowRun) error {
	m.Flows = append(m.Flows, run)
	if m.RunFlowFunc != nil {
		return m.RunFlowFunc(ctx, run)
	}
	return nil
}
