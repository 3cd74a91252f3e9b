package signer

import (
	"sync"

	"github.com/yourusername/korasign/internal/perr"
)

// Pool is the process-lifetime, thread-safe set of configured signer
// entries. It is built once at startup from the signers file and never
// mutated afterward; concurrent Get calls require no locking beyond the
// map's read-only access, guarded here only against construction races.
type Pool struct {
	mu          sync.RWMutex
	byName      map[string]Entry
	byAddress   map[string]Entry
	defaultName string
}

func NewPool() *Pool {
	return &Pool{byName: make(map[string]Entry), byAddress: make(map[string]Entry)}
}

// Register adds an entry to the pool, addressable by both its name and its
// base58 public address. isDefault marks it as the fallback used when a
// request omits signer_key. Only one entry may be marked default; the last
// registration wins, mirroring the signers file's single "default: true"
// marker.
func (p *Pool) Register(e Entry, isDefault bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName[e.Name()] = e
	p.byAddress[e.PublicAddress().String()] = e
	if isDefault {
		p.defaultName = e.Name()
	}
}

// Get resolves signerKey to an Entry. An empty signerKey selects the
// default entry. A non-empty signerKey matching nothing is always
// UnknownSigner, even if a default entry exists.
func (p *Pool) Get(signerKey string) (Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	key := signerKey
	if key == "" {
		key = p.defaultName
	}
	if key == "" {
		return nil, perr.New(perr.UnknownSigner, perr.NonRetryable, "no default signer configured", nil)
	}

	if e, ok := p.byName[key]; ok {
		return e, nil
	}
	if e, ok := p.byAddress[key]; ok {
		return e, nil
	}
	return nil, perr.New(perr.UnknownSigner, perr.NonRetryable, "unknown signer: "+signerKey, nil)
}

// All returns every registered entry, for getConfig-style introspection.
func (p *Pool) All() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.byName))
	for _, e := range p.byName {
		out = append(out, e)
	}
	return out
}
