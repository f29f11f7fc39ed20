package interfaces

import "github.com/customeros/ticketstack/dto"

type MonitorStatusProvider interface {
	Status() dto.MonitorStatus
}
