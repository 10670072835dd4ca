package contact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ID identifies a contact on the messaging platform. The platform may hand
// out numeric or string identifiers, so ID keeps the raw JSON token it was
// decoded from and writes it back unchanged.
type ID string

// NumberID builds an ID from a numeric identifier.
func NumberID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// StringID builds an ID from a string identifier.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID(b)
}

// IsZero reports whether the ID is absent or an empty string.
func (id ID) IsZero() bool {
	return id == "" || id == `""` || id == "null"
}

// String returns the identifier without JSON quoting.
func (id ID) String() string {
	if len(id) > 0 && id[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(id), &s); err == nil {
			return s
		}
	}
	return string(id)
}

// MarshalJSON writes the raw identifier token.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if !json.Valid([]byte(id)) {
		return nil, fmt.Errorf("contact id %q is not a JSON value", string(id))
	}
	return []byte(id), nil
}

// UnmarshalJSON keeps the raw identifier token. Only strings and numbers are
// accepted.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("contact id: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("contact id must be a string or a number: %w", err)
		}
	}
	*id = ID(raw)
	return nil
}

// ErrNotFound is returned by a Platform lookup when no contact owns the phone.
var ErrNotFound = errors.New("contact not found")

// Processed is a contact that is ready to receive a reminder. It is the
// record type of the processed-contacts handoff document.
type Processed struct {
	ContactID ID     `json:"contact_id" validate:"contactid"`
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"name"`
	BoletoURL string `json:"boleto_url"`
	DueDate   string `json:"due_date"`
}

// NewContact carries the fields needed to create a contact.
type NewContact struct {
	Phone string
	Name  string
}
