package broker

import (
	"context"

	"gavel/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.AdmittedMessage) error
	Close() error
}
