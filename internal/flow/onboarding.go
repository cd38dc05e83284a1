package flow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// OnboardingCompleteLink is the deep link attached to the onboarding-complete
// system notice.
const OnboardingCompleteLink = "ottercoach://profile"

// onboardingHandler runs the getting-to-know-you conversation for new users.
type onboardingHandler struct {
	deps
}

func (h *onboardingHandler) Mode() models.ConversationMode { return models.ModeOnboarding }

func (h *onboardingHandler) Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error) {
	text, data, err := h.converse(ctx, user, models.ModeOnboarding, onboardingInstructions, onboardingDataContract, inboundText)
	if err != nil {
		return nil, err
	}
	result := &Result{Text: text}
	if data == nil {
		return result, nil
	}

	changed := applyProfileData(user, data)
	completed := data.OnboardingComplete != nil && *data.OnboardingComplete && hasOnboardingMinimum(user)
	if completed {
		user.OnboardingComplete = true
		user.ConversationMode = models.ModeIdle
	}
	if changed || completed {
		if err := h.store.UpdateUser(user); err != nil {
			slog.Error("onboardingHandler.Handle: failed to persist profile", "error", err, "userID", user.ID)
		}
	}
	if completed {
		slog.Info("onboardingHandler.Handle: onboarding complete", "userID", user.ID, "name", user.DisplayName)
		if user.Goals != "" {
			goal := &models.Goal{
				ID:        uuid.NewString(),
				UserID:    user.ID,
				Text:      user.Goals,
				Status:    models.GoalActive,
				CreatedAt: h.now(),
			}
			if err := h.store.AddGoal(goal); err != nil {
				slog.Error("onboardingHandler.Handle: failed to persist goal", "error", err, "userID", user.ID)
			}
		}
		result.SystemMessages = append(result.SystemMessages, SystemMessage{
			Text: "Profile set up — scheduled check-ins are now active.",
			Link: OnboardingCompleteLink,
		})
	}
	h.applySharedChannels(user, data)
	return result, nil
}

// hasOnboardingMinimum guards the completion flag: the model may claim
// completion but the profile must actually carry a name, an experience
// estimate, and at least one training day.
func hasOnboardingMinimum(user *models.User) bool {
	return user.DisplayName != "" && user.ExperienceMonths > 0 && !user.TrainingDays.IsEmpty()
}
