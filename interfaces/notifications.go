package interfaces

import (
	"context"

	"github.com/customeros/ticketstack/dto"
)

type NotificationDispatcher interface {
	Enqueue(ctx context.Context, request dto.NotificationRequest) error
}
