package menu

import (
	"context"
	"log/slog"
	"sync"

	"torrentcast/internal/domain/ports"
	"torrentcast/internal/metrics"
)

type dispatchEntry struct {
	menu    *Menu
	handler HandlerFunc
}

// Router owns the conversation state per chat and dispatches each inbound
// message to the handler of the chat's current state. Dispatches for the same
// chat are serialized; distinct chats proceed in parallel.
type Router struct {
	sender ports.Sender
	logger *slog.Logger

	mu         sync.Mutex
	handlers   map[string]dispatchEntry
	sessions   map[ports.UserID]*conversation
	entry      dispatchEntry
	entryState string
}

type conversation struct {
	mu    sync.Mutex
	state string
}

func NewRouter(sender ports.Sender, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sender:   sender,
		logger:   logger,
		handlers: make(map[string]dispatchEntry),
		sessions: make(map[ports.UserID]*conversation),
	}
}

// Mount registers every state of the menu under its prefixed name.
func (r *Router) Mount(m *Menu) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for state, handler := range m.Handlers() {
		r.handlers[state] = dispatchEntry{menu: m, handler: handler}
	}
}

// SetEntry declares the menu whose start state handles chats with no
// conversation yet (and chats whose conversation has ended).
func (r *Router) SetEntry(m *Menu) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entryState = m.Prefix("start")
	r.entry = r.handlers[r.entryState]
}

func (r *Router) conversation(user ports.UserID) *conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.sessions[user]
	if !ok {
		conv = &conversation{}
		r.sessions[user] = conv
	}
	return conv
}

// State reports the chat's current state, "" when no conversation is active.
func (r *Router) State(user ports.UserID) string {
	conv := r.conversation(user)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.state
}

// Dispatch routes one message. A handler error leaves the conversation state
// unchanged so the chat can retry; it never tears the session down.
func (r *Router) Dispatch(ctx context.Context, user ports.UserID, text string) error {
	conv := r.conversation(user)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	state := conv.state
	if state == "" {
		state = r.entryState
	}

	r.mu.Lock()
	ent, ok := r.handlers[state]
	r.mu.Unlock()
	if !ok {
		ent = r.entry
		state = r.entryState
	}
	if ent.handler == nil {
		r.logger.Error("no entry state mounted", slog.Int64("userId", int64(user)))
		return nil
	}

	metrics.BotDispatchesTotal.WithLabelValues(state).Inc()

	call := &Call{User: user, Text: text, menu: ent.menu, sender: r.sender}
	next, err := ent.handler(ctx, call)
	if err != nil {
		r.logger.Error("handler failed",
			slog.String("state", state),
			slog.Int64("userId", int64(user)),
			slog.String("error", err.Error()))
		return err
	}

	switch next {
	case "":
		// Stay in the current state.
	case End:
		conv.state = ""
	default:
		conv.state = next
	}
	return nil
}
