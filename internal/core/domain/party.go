package domain

// Party identifies which side of a negotiation a participant is on.
type Party string

const (
	PartyInitiator Party = "initiator"
	PartyRecipient Party = "recipient"
)

func (p Party) Valid() bool {
	return p == PartyInitiator || p == PartyRecipient
}

// Other returns the counterpart side.
func (p Party) Other() Party {
	if p == PartyInitiator {
		return PartyRecipient
	}
	return PartyInitiator
}
