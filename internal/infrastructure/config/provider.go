package config

import "sync"

// Provider memoises a single Settings snapshot.
//
// The first call to Settings runs Load; every later call returns the same
// pointer (or the same error) without reading the environment again.
//
// Thread Safety:
//   - Settings is safe for concurrent use. Concurrent first callers block
//     until the one construction finishes and all observe its result.
type Provider struct {
	opts LoadOptions

	once     sync.Once
	settings *Settings
	err      error
}

// NewProvider creates a Provider that resolves settings from opts on first use.
func NewProvider(opts LoadOptions) *Provider {
	return &Provider{opts: opts}
}

// Settings returns the cached snapshot, loading it on the first call.
func (p *Provider) Settings() (*Settings, error) {
	p.once.Do(func() {
		p.settings, p.err = Load(p.opts)
	})
	return p.settings, p.err
}
