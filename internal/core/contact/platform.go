package contact

import "context"

// Directory manages contacts and their bot variables on the messaging platform.
type Directory interface {
	// FindByPhone returns the contact registered for phone, or ErrNotFound.
	// Any other error means the lookup itself failed.
	FindByPhone(ctx context.Context, phone string) (ID, error)
	// Create registers a new contact and returns its identifier.
	Create(ctx context.Context, c NewContact) (ID, error)
	// SetVariable stores value in the bot variable variableID of the contact.
	SetVariable(ctx context.Context, id ID, variableID, value string) error
}
