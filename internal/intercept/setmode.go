package intercept

import (
	"context"
	"time"

	"overseer/internal/errs"
	"overseer/internal/store"
)

// SetModeResult is the switch_freq tool's output shape.
type SetModeResult struct {
	PreviousMode store.SessionMode
	CurrentMode  store.SessionMode
}

// SetMode implements the switch_freq tool: transitions Session.mode, which
// §6 routing consults to decide whether a given message goes to chat, IPC,
// or both.
func (h *Handlers) SetMode(ctx context.Context, sessionID, actingUserID string, mode store.SessionMode) (SetModeResult, error) {
	s, err := h.ownedSession(ctx, sessionID, actingUserID)
	if err != nil {
		return SetModeResult{}, err
	}

	previous := s.Mode
	s.Mode = mode
	s.UpdatedAt = time.Now().UTC()
	if err := h.Store.Sessions().Update(ctx, s); err != nil {
		return SetModeResult{}, errs.Wrap(errs.Internal, "intercept.set_mode", err)
	}
	return SetModeResult{PreviousMode: previous, CurrentMode: mode}, nil
}
