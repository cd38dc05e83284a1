package flow

import (
	"context"
	"log/slog"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// SessionLoggedLink is the deep link attached to the session-logged notice.
const SessionLoggedLink = "ottercoach://sessions"

// freeChatHandler covers unscheduled conversation, including ad-hoc session
// reports and profile changes mentioned in passing.
type freeChatHandler struct {
	deps
}

func (h *freeChatHandler) Mode() models.ConversationMode { return models.ModeFreeChat }

func (h *freeChatHandler) Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error) {
	text, data, err := h.converse(ctx, user, models.ModeFreeChat, freeChatInstructions, freeChatDataContract, inboundText)
	if err != nil {
		return nil, err
	}
	result := &Result{Text: text}
	if data == nil {
		return result, nil
	}

	if data.Session != nil {
		session := sessionFromNested(user, data.Session, activeFocusPeriodID(h.deps, user.ID), h.now())
		if err := h.store.AddTrainingSession(session); err != nil {
			slog.Error("freeChatHandler.Handle: failed to log session", "error", err, "userID", user.ID)
		} else {
			slog.Info("freeChatHandler.Handle: session logged", "userID", user.ID, "date", session.Date)
			result.SystemMessages = append(result.SystemMessages, SystemMessage{
				Text: "Training session logged for " + session.Date + ".",
				Link: SessionLoggedLink,
			})
		}
	}
	if data.ProfileUpdates != nil {
		if applyProfileUpdates(user, data.ProfileUpdates) {
			if err := h.store.UpdateUser(user); err != nil {
				slog.Error("freeChatHandler.Handle: failed to persist profile updates", "error", err, "userID", user.ID)
			}
		}
	}
	h.applySharedChannels(user, data)
	return result, nil
}

// activeFocusPeriodID resolves the user's current focus period id, if any.
func activeFocusPeriodID(d deps, userID string) string {
	fp, err := d.store.ActiveFocusPeriod(userID)
	if err != nil || fp == nil {
		return ""
	}
	return fp.ID
}
