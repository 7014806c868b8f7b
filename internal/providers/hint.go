package providers

import (
	"sync"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// Hint remembers which credential last succeeded per provider so the next
// call in the same process tries it first. It is owned by the caller, never
// persisted, and a nil *Hint is valid everywhere. Correctness never depends
// on it: a hint only reorders candidates.
type Hint struct {
	mu        sync.Mutex
	preferred map[string]string
}

// NewHint returns an empty hint.
func NewHint() *Hint {
	return &Hint{preferred: make(map[string]string)}
}

// Remember records key as the preferred credential for its provider.
func (h *Hint) Remember(key types.ProviderKey) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.preferred == nil {
		h.preferred = make(map[string]string)
	}
	h.preferred[key.ProviderName] = key.Credential
}

// Preferred returns the remembered credential for provider.
func (h *Hint) Preferred(provider string) (string, bool) {
	if h == nil {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.preferred[provider]
	return c, ok
}

// order returns keys with the preferred credential moved to the front.
// The input slice is not modified.
func (h *Hint) order(provider string, keys []types.ProviderKey) []types.ProviderKey {
	out := append([]types.ProviderKey(nil), keys...)
	pref, ok := h.Preferred(provider)
	if !ok {
		return out
	}
	for i, k := range out {
		if k.Credential == pref {
			copy(out[1:i+1], out[:i])
			out[0] = k
			break
		}
	}
	return out
}
