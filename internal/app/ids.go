package app

import "github.com/google/uuid"

// IDFunc generates identifiers for new products and orders.
type IDFunc func() string

func newID() string {
	return uuid.NewString()
}
