package invalidation

import (
	"errors"
	"fmt"
)

type Model string

const (
	ModelRoom    Model = "Room"
	ModelMessage Model = "Message"
	ModelUser    Model = "User"
	ModelTopic   Model = "Topic"
)

type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

var ErrInvalidChange = errors.New("invalid change")

// Change describes one mutation of a domain model. ID may be zero when unknown.
type Change struct {
	Model Model `json:"model"`
	ID    int   `json:"id"`
	Op    Op    `json:"op"`
}

func (c Change) Validate() error {
	switch c.Model {
	case ModelRoom, ModelMessage, ModelUser, ModelTopic:
	default:
		return fmt.Errorf("%w: unknown model %q", ErrInvalidChange, c.Model)
	}
	switch c.Op {
	case OpCreated, OpUpdated, OpDeleted:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidChange, c.Op)
	}
	if c.ID < 0 {
		return fmt.Errorf("%w: negative id", ErrInvalidChange)
	}
	return nil
}
