package session

import (
	"context"
	"fmt"

	"github.com/gridprobe/gridprobe/internal/core"
)

// defaultRetryInstruction is sent when a follow-up carries no user text.
const defaultRetryInstruction = "Continue your previous answer. If it was complete, restate the final predicted output."

// Retry opens a new session that continues a terminal parent session. The
// parent is never mutated; its record and event log stay addressable.
//
// The follow-up call reuses whatever continuation resources the parent still
// holds: a stateful provider's handle when it is within retention, a
// stateless provider's conversation history otherwise. When both are gone
// the retry falls back to a fresh prompt carrying the instruction.
func (m *Manager) Retry(ctx context.Context, parentID, instruction string) (*Session, error) {
	parent, err := m.Get(parentID)
	if err != nil {
		return nil, err
	}
	if !parent.State().IsTerminal() {
		return nil, core.ErrState(core.CodeInvalidState,
			fmt.Sprintf("session %s is still %s; cancel it or wait before retrying", parentID, parent.State()))
	}

	req := parent.request
	puzzle, err := m.catalog.Get(ctx, req.PuzzleID)
	if err != nil {
		return nil, err
	}
	adapter, err := m.providers.Get(req.ProviderID)
	if err != nil {
		return nil, err
	}

	handle, history := parent.continuation()
	var plan callPlan
	switch {
	case handle != "" && adapter.Capabilities().SupportsContinuation:
		plan = callPlan{priorHandle: handle, instruction: instruction}
	case len(history) > 0:
		inst := instruction
		if inst == "" {
			inst = defaultRetryInstruction
		}
		plan = callPlan{history: history, instruction: inst}
	default:
		prompt, err := m.prompts.Build(core.PromptRequest{
			Puzzle:           puzzle,
			Config:           req.Config,
			ExtraInstruction: instruction,
		})
		if err != nil {
			return nil, err
		}
		plan = callPlan{prompt: prompt, instruction: instruction}
	}

	m.logger.WithSession(parentID).Info("retry requested",
		"with_handle", plan.priorHandle != "", "with_history", len(plan.history) > 0)
	return m.launch(req, puzzle, adapter, plan, parentID)
}
