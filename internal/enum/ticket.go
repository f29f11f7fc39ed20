package enum

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelWeb   Channel = "web"
)

func (c Channel) String() string {
	return string(c)
}

type SenderType string

const (
	SenderRequester SenderType = "requester"
	SenderAgent     SenderType = "agent"
)

func (s SenderType) String() string {
	return string(s)
}

type RelatedEntity string

const (
	RelatedEntityTicket RelatedEntity = "ticket"
)

func (r RelatedEntity) String() string {
	return string(r)
}
