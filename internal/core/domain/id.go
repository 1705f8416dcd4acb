package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one attached relay connection. It carries no identity
// beyond the lifetime of the socket.
type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}
