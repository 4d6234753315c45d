// Package entitlements decides whether the calling principal may act on
// records, based on the group memberships carried in its access token.
package entitlements

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// Authorizer is the authorization collaborator used by the pipeline.
type Authorizer interface {
	// HasValidAcl reports whether every ACL entry belongs to the tenant domain.
	HasValidAcl(ctx context.Context, acl models.Acl) bool
	// HasOwnerAccess reports whether the caller is one of the owners.
	HasOwnerAccess(ctx context.Context, acl models.Acl) bool
	// HasAccess reports whether the caller may read every given record.
	HasAccess(ctx context.Context, records ...*models.RecordMetadata) bool
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// GroupAuthorizer checks ACLs against the groups of the principal in ctx.
type GroupAuthorizer struct {
	domain string
}

func NewGroupAuthorizer(aclDomain string) *GroupAuthorizer {
	return &GroupAuthorizer{domain: strings.ToLower(aclDomain)}
}

func (a *GroupAuthorizer) HasValidAcl(_ context.Context, acl models.Acl) bool {
	entries := acl.All()
	if len(acl.Owners) == 0 || len(acl.Viewers) == 0 {
		return false
	}
	for _, e := range entries {
		at := strings.LastIndex(e, "@")
		if at <= 0 || strings.ToLower(e[at+1:]) != a.domain {
			return false
		}
	}
	return true
}

func (a *GroupAuthorizer) HasOwnerAccess(ctx context.Context, acl models.Acl) bool {
	return intersects(groups(ctx), acl.Owners)
}

func (a *GroupAuthorizer) HasAccess(ctx context.Context, records ...*models.RecordMetadata) bool {
	g := groups(ctx)
	for _, r := range records {
		if r == nil || !r.HasVersions() {
			continue
		}
		if !intersects(g, r.Acl.Owners) && !intersects(g, r.Acl.Viewers) {
			return false
		}
	}
	return true
}

func groups(ctx context.Context) map[string]struct{} {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	out := make(map[string]struct{}, len(p.Groups))
	for _, g := range p.Groups {
		out[strings.ToLower(g)] = struct{}{}
	}
	return out
}

func intersects(groups map[string]struct{}, acl []string) bool {
	for _, e := range acl {
		if _, ok := groups[strings.ToLower(e)]; ok {
			return true
		}
	}
	return false
}
