package asset

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/app/core"
)

// Registration pairs a tradable symbol with its external collaborator.
type Registration struct {
	Symbol  string
	Address common.Address // external handle, informational
	Token   Token
}

// Registry maps asset symbols to their external token collaborators.
// Only the admin identity fixed at construction may register assets.
// Registering an existing symbol overwrites it (idempotent).
//
// Not safe for concurrent use on its own: all mutating access is
// serialized by the owning spot.Exchange.
type Registry struct {
	admin  common.Address
	native string // reserved quote-asset symbol, never registrable
	assets map[string]Registration
}

func NewRegistry(admin common.Address, nativeSymbol string) *Registry {
	return &Registry{
		admin:  admin,
		native: nativeSymbol,
		assets: make(map[string]Registration),
	}
}

// Register adds symbol -> token. Fails with ErrUnauthorized unless
// caller is the configured admin.
func (r *Registry) Register(caller common.Address, symbol string, addr common.Address, tok Token) error {
	if caller != r.admin {
		return fmt.Errorf("%w: %s is not admin", core.ErrUnauthorized, caller.Hex())
	}
	if symbol == "" || symbol == r.native {
		return fmt.Errorf("%w: %q", core.ErrInvalidSymbol, symbol)
	}
	if tok == nil {
		return fmt.Errorf("%w: nil token for %q", core.ErrInvalidSymbol, symbol)
	}

	r.assets[symbol] = Registration{Symbol: symbol, Address: addr, Token: tok}
	return nil
}

func (r *Registry) IsRegistered(symbol string) bool {
	_, ok := r.assets[symbol]
	return ok
}

// Token returns the external collaborator for symbol.
func (r *Registry) Token(symbol string) (Token, bool) {
	reg, ok := r.assets[symbol]
	if !ok {
		return nil, false
	}
	return reg.Token, true
}

// NativeSymbol is the reserved symbol of the native quote asset.
func (r *Registry) NativeSymbol() string { return r.native }

// Admin returns the configured administrator identity.
func (r *Registry) Admin() common.Address { return r.admin }

// List returns all registrations sorted by symbol.
func (r *Registry) List() []Registration {
	out := make([]Registration, 0, len(r.assets))
	for _, reg := range r.assets {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
