package domain

import "github.com/google/uuid"

// CustomerSnapshot is the embedded customer reference carried on a ticket.
// The customer record itself is owned by an external system; tickets keep
// the fields needed for display and calling.
type CustomerSnapshot struct {
	ID       uuid.UUID `json:"id,omitempty"`
	Name     string    `json:"name"`
	Document string    `json:"document,omitempty"`
	Phone    string    `json:"phone,omitempty"`
}
