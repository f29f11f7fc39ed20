package dto

import "github.com/customeros/ticketstack/internal/enum"

type NotificationRequest struct {
	Event         enum.NotificationEvent     `json:"event"`
	Title         string                     `json:"title"`
	Message       string                     `json:"message"`
	Recipient     NotificationRecipient      `json:"recipient"`
	Channels      []enum.NotificationChannel `json:"channels"`
	RelatedEntity RelatedEntity              `json:"relatedEntity"`
}

type NotificationRecipient struct {
	Type   enum.NotificationRecipient `json:"type"`
	UserID string                     `json:"userId,omitempty"`
	Email  string                     `json:"email,omitempty"`
}

type RelatedEntity struct {
	Type enum.RelatedEntity `json:"type"`
	ID   string             `json:"id"`
}
