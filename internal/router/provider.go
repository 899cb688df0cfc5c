// Package router holds the provider registry and per-provider availability
// tracking. The registry is rebuilt wholesale on config reload; handlers
// always read through an atomic-style swap in the caller.
package router

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/af-corp/muse-gateway/internal/config"
	"github.com/af-corp/muse-gateway/internal/router/adapters"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

const defaultChatModel = "qwen_normal"

// Registry maps model keys to chat adapters and holds the single image and
// video adapters. There is one generation vendor per modality, so those are
// slots rather than maps.
type Registry struct {
	mu    sync.RWMutex
	chat  map[string]adapters.ChatAdapter
	image adapters.ImageAdapter
	video adapters.VideoAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		chat: make(map[string]adapters.ChatAdapter),
	}
}

func (r *Registry) RegisterChat(key string, a adapters.ChatAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[key] = a
}

func (r *Registry) RegisterImage(a adapters.ImageAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image = a
}

func (r *Registry) RegisterVideo(a adapters.VideoAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = a
}

func (r *Registry) Chat(key string) (adapters.ChatAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.chat[key]
	return a, ok
}

func (r *Registry) Image() (adapters.ImageAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.image, r.image != nil
}

func (r *Registry) Video() (adapters.VideoAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.video, r.video != nil
}

// DefaultChat returns the model key used when a request names none.
func (r *Registry) DefaultChat() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.chat[defaultChatModel]; ok {
		return defaultChatModel
	}
	keys := make([]string, 0, len(r.chat))
	for k := range r.chat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// ChatModels lists the registered chat models for the discovery endpoint,
// keyed by the name clients put in the request's model field.
func (r *Registry) ChatModels() map[string]types.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make(map[string]types.ModelInfo, len(r.chat))
	for k, a := range r.chat {
		infos[k] = a.Info()
	}
	return infos
}

// BuildFromConfig builds the adapter registry from the providers config.
// Unknown provider types are skipped; a partially useful registry beats a
// dead gateway when one stanza is mistyped.
func BuildFromConfig(provCfg *config.ProvidersConfig, retry upstream.Policy) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		switch cfg.Type {
		case "qwen":
			registry.RegisterChat(name, adapters.NewQwenAdapter(name, cfg, client))
		case "hunyuan":
			registry.RegisterChat(name, adapters.NewHunyuanAdapter(name, cfg, client))
		case "wanx":
			registry.RegisterImage(adapters.NewWanxAdapter(name, cfg, client, retry))
		case "cogvideo":
			registry.RegisterVideo(adapters.NewCogVideoAdapter(name, cfg, client, retry))
		}
	}
	return registry
}
