package flow

import (
	"context"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// briefingHandler sends the pre-training focus message. It has no completion
// flag: the user stays in briefing until the scheduler moves them to debrief
// after training.
type briefingHandler struct {
	deps
}

func (h *briefingHandler) Mode() models.ConversationMode { return models.ModeBriefing }

func (h *briefingHandler) Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error) {
	text, data, err := h.converse(ctx, user, models.ModeBriefing, briefingInstructions, briefingDataContract, inboundText)
	if err != nil {
		return nil, err
	}
	h.applySharedChannels(user, data)
	return &Result{Text: text}, nil
}
