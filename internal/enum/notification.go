package enum

type NotificationRecipient string

const (
	RecipientAllUsers      NotificationRecipient = "allUsers"
	RecipientSpecificUser  NotificationRecipient = "specificUser"
	RecipientExternalEmail NotificationRecipient = "externalEmail"
)

func (r NotificationRecipient) String() string {
	return string(r)
}

type NotificationChannel string

const (
	NotificationDashboard NotificationChannel = "dashboard"
	NotificationEmail     NotificationChannel = "email"
)

func (c NotificationChannel) String() string {
	return string(c)
}

type NotificationEvent string

const (
	EventTicketCreated NotificationEvent = "ticket.created"
	EventTicketUpdated NotificationEvent = "ticket.updated"
)

func (e NotificationEvent) String() string {
	return string(e)
}
