package channel

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Message is the payload handed to a sender once the scheduler has
// resolved a task's channel. Overrides carries the task's raw
// channel_config map for providers that splice extra fields into the
// request body.
type Message struct {
	Title     string
	Content   string
	Overrides map[string]string
}

// Sender pushes one message through an external provider. cfg is the
// channel's global configuration with task-level overrides already
// merged in. The returned string is a provider message id, when the
// provider reports one.
type Sender interface {
	Send(ctx context.Context, msg Message, cfg map[string]string) (string, error)
}

// Error is a provider-reported failure: missing credentials, an
// unrecognized key format, or a nonzero status code embedded in the
// provider's response body. Transport failures are returned as plain
// errors; the dispatch engine treats both the same way.
type Error struct {
	Channel string
	Code    int
	Msg     string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: provider code %d: %s", e.Channel, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Channel, e.Msg)
}

// Registry maps channel names to senders. New channels are added by
// registering an implementation, not by editing a dispatch switch.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

func (r *Registry) Register(name string, s Sender) { r.senders[name] = s }

func (r *Registry) Lookup(name string) (Sender, bool) {
	s, ok := r.senders[name]
	return s, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry wires the built-in senders over one shared client.
func DefaultRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := NewRegistry()
	r.Register("serverchan", &ServerChan{Client: client})
	r.Register("wecom", &WeCom{Client: client})
	r.Register("webhook", &Webhook{Client: client})
	return r
}

// Merge overlays task-level overrides on the channel's global config,
// task values taking precedence.
func Merge(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
