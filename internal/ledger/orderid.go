package ledger

import "github.com/google/uuid"

// OrderIDGenerator issues the token shared by all lines of one checkout.
type OrderIDGenerator interface {
	NewOrderID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewOrderID() string {
	return uuid.NewString()
}

// OrderIDFunc adapts a function to OrderIDGenerator.
type OrderIDFunc func() string

func (f OrderIDFunc) NewOrderID() string { return f() }
