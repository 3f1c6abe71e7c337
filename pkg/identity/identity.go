// Package identity verifies third-party identity tokens.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrNotInitialized is returned when no identity provider has been configured.
var ErrNotInitialized = errors.New("identity provider not initialized")

// ExternalIdentity is the verified subject behind an identity token.
type ExternalIdentity struct {
	Subject     string
	Email       string
	DisplayName string
}

// Verifier checks an opaque identity token with the provider.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*ExternalIdentity, error)
}

// DomainAllowList restricts external logins to a set of email domains.
// An empty list accepts every domain.
type DomainAllowList struct {
	domains map[string]struct{}
}

// NewDomainAllowList normalises domains to lower case.
func NewDomainAllowList(domains []string) DomainAllowList {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return DomainAllowList{domains: set}
}

// Open reports whether no restriction is configured.
func (l DomainAllowList) Open() bool {
	return len(l.domains) == 0
}

// Allows reports whether email belongs to an allowed domain.
func (l DomainAllowList) Allows(email string) bool {
	if l.Open() {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	_, ok := l.domains[strings.ToLower(email[at+1:])]
	return ok
}
