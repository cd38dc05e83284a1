package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// debriefHandler runs the post-training conversation and turns its outcome
// into a TrainingSession row.
type debriefHandler struct {
	deps
}

func (h *debriefHandler) Mode() models.ConversationMode { return models.ModeDebrief }

func (h *debriefHandler) Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error) {
	text, data, err := h.converse(ctx, user, models.ModeDebrief, debriefInstructions, debriefDataContract, inboundText)
	if err != nil {
		return nil, err
	}
	result := &Result{Text: text}
	if data == nil {
		return result, nil
	}

	if data.DebriefComplete != nil && *data.DebriefComplete {
		session := sessionFromFlat(user, data, activeFocusPeriodID(h.deps, user.ID), h.now())
		if err := h.store.AddTrainingSession(session); err != nil {
			return nil, fmt.Errorf("failed to log debrief session: %w", err)
		}
		if err := h.transitionToIdle(user); err != nil {
			return nil, err
		}
		slog.Info("debriefHandler.Handle: debrief complete, session logged",
			"userID", user.ID, "sessionID", session.ID, "date", session.Date)
	}
	h.applySharedChannels(user, data)
	return result, nil
}
