// Package listener fans received envelopes out to application subscribers.
package listener

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/wagiedev/enginebridge-go/internal/envelope"
	"github.com/wagiedev/enginebridge-go/internal/handler"
)

// Callback receives one inbound envelope through its handler.
//
// For requests the return value claims ownership: the first callback that
// returns true owns the handler and no later callback sees it. For messages
// the return value is ignored and every matching callback runs.
type Callback func(h *handler.Handler) bool

// TextCallback receives frames that do not carry an envelope.
type TextCallback func(frame string)

// Token identifies a subscription.
type Token string

// Filter selects which envelopes a subscription receives.
type Filter struct {
	// Kinds lists the accepted kinds. Empty accepts messages and requests.
	Kinds []envelope.Kind

	// ID restricts delivery to one topic. Empty accepts every topic.
	ID string
}

// Matches reports whether env passes the filter.
func (f Filter) Matches(env envelope.Envelope) bool {
	if f.ID != "" && f.ID != env.ID {
		return false
	}

	if len(f.Kinds) == 0 {
		return env.Kind == envelope.KindMessage || env.Kind == envelope.KindRequest
	}

	return slices.Contains(f.Kinds, env.Kind)
}

type entry struct {
	token  Token
	filter Filter
	cb     Callback
}

type textEntry struct {
	token Token
	cb    TextCallback
}

// Registry holds subscriptions in registration order. It is safe for
// concurrent use; callbacks are always invoked on snapshots so they may
// subscribe or unsubscribe freely.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	text    []textEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make([]entry, 0, 4),
	}
}

// Subscribe registers cb for envelopes matching filter.
func (r *Registry) Subscribe(filter Filter, cb Callback) Token {
	token := Token(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry{token: token, filter: filter, cb: cb})

	return token
}

// SubscribeText registers cb for frames without an envelope prefix.
func (r *Registry) SubscribeText(cb TextCallback) Token {
	token := Token(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.text = append(r.text, textEntry{token: token, cb: cb})

	return token
}

// Unsubscribe removes a subscription. Returns false if the token is unknown.
func (r *Registry) Unsubscribe(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.entries, func(e entry) bool { return e.token == token }); i >= 0 {
		r.entries = slices.Delete(r.entries, i, i+1)

		return true
	}

	if i := slices.IndexFunc(r.text, func(e textEntry) bool { return e.token == token }); i >= 0 {
		r.text = slices.Delete(r.text, i, i+1)

		return true
	}

	return false
}

// Matching returns the callbacks whose filter accepts env, in registration order.
func (r *Registry) Matching(env envelope.Envelope) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Callback, 0, len(r.entries))

	for _, e := range r.entries {
		if e.filter.Matches(env) {
			out = append(out, e.cb)
		}
	}

	return out
}

// Text returns the text callbacks in registration order.
func (r *Registry) Text() []TextCallback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TextCallback, 0, len(r.text))
	for _, e := range r.text {
		out = append(out, e.cb)
	}

	return out
}

// Len returns the number of envelope and text subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries) + len(r.text)
}
