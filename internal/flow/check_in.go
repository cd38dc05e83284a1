package flow

import (
	"context"
	"log/slog"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// checkInHandler runs the morning are-you-training-today exchange.
type checkInHandler struct {
	deps
}

func (h *checkInHandler) Mode() models.ConversationMode { return models.ModeCheckIn }

func (h *checkInHandler) Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error) {
	text, data, err := h.converse(ctx, user, models.ModeCheckIn, checkInInstructions, checkInDataContract, inboundText)
	if err != nil {
		return nil, err
	}
	result := &Result{Text: text}
	if data == nil {
		return result, nil
	}

	if data.CheckinComplete != nil && *data.CheckinComplete {
		if err := h.transitionToIdle(user); err != nil {
			slog.Error("checkInHandler.Handle: failed to resolve check-in", "error", err, "userID", user.ID)
		} else {
			slog.Info("checkInHandler.Handle: check-in resolved", "userID", user.ID)
		}
	}
	h.applySharedChannels(user, data)
	return result, nil
}
