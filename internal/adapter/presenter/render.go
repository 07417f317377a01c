package presenter

import (
	"fmt"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// Notice is one line of text addressed to one participant.
type Notice struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// RenderView tells each participant what the session is waiting for.
func RenderView(v domain.StageView) []Notice {
	if v.Stage.IsTerminal() {
		return nil
	}
	ids := map[domain.Party]string{
		domain.PartyInitiator: v.InitiatorID,
		domain.PartyRecipient: v.RecipientID,
	}
	waiting := make(map[domain.Party]bool)
	for _, p := range v.Awaiting() {
		waiting[p] = true
	}

	notices := make([]Notice, 0, 2)
	for _, p := range []domain.Party{domain.PartyInitiator, domain.PartyRecipient} {
		other := ids[p.Other()]
		var text string
		switch {
		case v.Stage.IsSelecting() && waiting[p]:
			text = fmt.Sprintf("Pick an item to offer %s, or pick nothing.", other)
		case v.Stage == domain.StageAwaitingQuantities && waiting[p]:
			text = fmt.Sprintf("How many %s will you give %s?", sideOf(v, p).ItemID, other)
		case v.Stage == domain.StageAwaitingConfirmation && p == domain.PartyRecipient:
			text = fmt.Sprintf("%s offers %s for your %s. Confirm or decline.",
				other, describe(v.Initiator), describe(v.Recipient))
		case v.Stage == domain.StageAwaitingConfirmation:
			text = fmt.Sprintf("Your offer of %s for %s is waiting on %s.",
				describe(v.Initiator), describe(v.Recipient), other)
		default:
			text = fmt.Sprintf("Waiting for %s.", other)
		}
		notices = append(notices, Notice{UserID: ids[p], Text: text})
	}
	return notices
}

// RenderOutcome gives both participants the same closing message.
func RenderOutcome(o domain.Outcome) []Notice {
	msg := o.Message()
	return []Notice{
		{UserID: o.InitiatorID, Text: msg},
		{UserID: o.RecipientID, Text: msg},
	}
}

func sideOf(v domain.StageView, p domain.Party) domain.SideView {
	if p == domain.PartyInitiator {
		return v.Initiator
	}
	return v.Recipient
}

func describe(s domain.SideView) string {
	switch {
	case !s.Selected:
		return "?"
	case s.ItemID == "":
		return "nothing"
	}
	return fmt.Sprintf("%d x %s", s.Quantity, s.ItemID)
}
