package httpapi

import (
	"context"
	"io"

	"personad/internal/chat"
	"personad/internal/manager"
	"personad/internal/voice"
	"personad/pkg/types"
)

// AdapterLister lists published adapter names. *registry.Registry satisfies it.
type AdapterLister interface {
	List() ([]string, error)
}

// Backend adapts the chat service, persona cache, registry and optional voice
// service to Service.
type Backend struct {
	chat  *chat.Service
	cache *manager.Manager
	reg   AdapterLister
	voice *voice.Service
}

// NewBackend wires a Backend. v may be nil when voice chat is disabled.
func NewBackend(c *chat.Service, m *manager.Manager, reg AdapterLister, v *voice.Service) *Backend {
	return &Backend{chat: c, cache: m, reg: reg, voice: v}
}

var _ Service = (*Backend)(nil)

func (b *Backend) Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error) {
	return b.chat.Handle(ctx, req)
}

func (b *Backend) Adapters() ([]string, error) { return b.reg.List() }

func (b *Backend) Switch(ctx context.Context, persona string) (string, error) {
	return b.cache.Switch(ctx, persona)
}

func (b *Backend) Status() types.StatusResponse { return b.cache.Status() }

func (b *Backend) Ready() bool { return b.cache.Ready() }

func (b *Backend) VoiceChat(ctx context.Context, req voice.Request) (io.ReadCloser, error) {
	if b.voice == nil {
		return nil, voice.ErrDisabled
	}
	return b.voice.Reply(ctx, req)
}
