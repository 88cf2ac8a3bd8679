// Package feepool keeps the allowlist of fee-denomination tokens the venue
// accepts. Collected toll fees are paid in one of these tokens.
package feepool

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// MaxTokens caps the allowlist size.
const MaxTokens = 3

var (
	ErrUnauthorized   = errors.New("feepool: unauthorized")
	ErrDuplicateToken = errors.New("feepool: token is already in the list")
	ErrTokenCapacity  = errors.New("feepool: token list is at capacity")
	ErrTokenNotFound  = errors.New("feepool: token is not in the list")
	ErrNoTokens       = errors.New("feepool: token list is empty")
)

// Pool is the token allowlist, owner-administered.
type Pool struct {
	mu     sync.Mutex
	owner  string
	tokens []string
	logger zerolog.Logger
}

func New(owner string, logger zerolog.Logger) *Pool {
	return &Pool{
		owner:  owner,
		tokens: make([]string, 0, MaxTokens),
		logger: logger,
	}
}

// AddToken appends a token denomination. Owner only; duplicates and additions
// past capacity are rejected.
func (p *Pool) AddToken(caller, denom string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrUnauthorized
	}
	if p.contains(denom) {
		return ErrDuplicateToken
	}
	if len(p.tokens) >= MaxTokens {
		return ErrTokenCapacity
	}

	p.tokens = append(p.tokens, denom)
	p.logger.Info().Str("denom", denom).Msg("fee token added")
	return nil
}

// RemoveToken removes a token denomination. Owner only.
func (p *Pool) RemoveToken(caller, denom string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.owner {
		return ErrUnauthorized
	}
	if len(p.tokens) == 0 {
		return ErrNoTokens
	}

	for i, t := range p.tokens {
		if t == denom {
			p.tokens = append(p.tokens[:i], p.tokens[i+1:]...)
			p.logger.Info().Str("denom", denom).Msg("fee token removed")
			return nil
		}
	}
	return ErrTokenNotFound
}

// IsToken reports whether the denomination is on the allowlist.
func (p *Pool) IsToken(denom string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contains(denom)
}

// Tokens returns a copy of the allowlist in insertion order.
func (p *Pool) Tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.tokens))
	copy(out, p.tokens)
	return out
}

func (p *Pool) contains(denom string) bool {
	for _, t := range p.tokens {
		if t == denom {
			return true
		}
	}
	return false
}
