// Package ability maps a user's role set to the actions it may perform.
// The rules table is built once at process start and is immutable; the
// predicate is recomputed per request from the role set embedded in the
// verified access token, never re-read from the database. Role changes
// therefore take effect at the next token issuance, the same consistency
// window the access token itself has.
package ability

import (
	"fmt"
	"strings"
)

// Role is a closed enumeration of GrantDesk roles. Roles are additive:
// a user's permissions are the union of every role they hold.
type Role string

const (
	// RoleAdmin is the platform operator: full access across ministries.
	RoleAdmin Role = "admin"

	// RoleMinistryAdmin manages users and applications within one ministry.
	RoleMinistryAdmin Role = "ministry_admin"

	// RoleReviewer evaluates and decides grant applications for a ministry.
	RoleReviewer Role = "reviewer"

	// RoleApplicant submits and tracks their own grant applications.
	RoleApplicant Role = "applicant"
)

// ParseRole validates a role string against the closed enumeration.
// Validation happens once at the data-model boundary (user create/update
// and token verification); call sites never do ad-hoc string matching.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMinistryAdmin:
		return RoleMinistryAdmin, nil
	case RoleReviewer:
		return RoleReviewer, nil
	case RoleApplicant:
		return RoleApplicant, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// ParseRoles validates a role set. The set must be non-empty; duplicates
// are collapsed while preserving first-seen order.
func ParseRoles(raw []string) ([]Role, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("role set must not be empty")
	}
	seen := make(map[Role]bool, len(raw))
	roles := make([]Role, 0, len(raw))
	for _, s := range raw {
		role, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles, nil
}

// RoleStrings converts a role set to plain strings for token claims and JSON.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// Action identifies an operation a subject wants to perform.
type Action string

const (
	ActionRead        Action = "read"
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDecide      Action = "decide"
	ActionManageUsers Action = "manage_users"
)

// Subject is the acting identity, built from verified access-token claims.
type Subject struct {
	UserID     string
	MinistryID string
	Roles      []Role
}

// Resource describes the target of an action. MinistryID and OwnerID are
// the attributes rules may condition on; either may be empty when the
// resource type has no such attribute.
type Resource struct {
	Type       string
	MinistryID string
	OwnerID    string
}

// ResourceGrant is the canonical resource type for grant applications.
const ResourceGrant = "grant_application"

// ResourceUser is the resource type for user administration.
const ResourceUser = "user"

// rule predicates receive the subject and resource so grants can be scoped
// by ministry or ownership. A nil check means the action is unconditional
// for that role.
type rule struct {
	action       Action
	resourceType string
	check        func(sub Subject, res Resource) bool
}

// Resolver answers whether a role set may perform an action on a resource.
// Construct once at startup with NewResolver and share by reference; the
// rules table is never mutated afterwards.
type Resolver struct {
	rules map[Role][]rule
}

// NewResolver builds the immutable role → rules table.
func NewResolver() *Resolver {
	sameMinistry := func(sub Subject, res Resource) bool {
		return res.MinistryID != "" && res.MinistryID == sub.MinistryID
	}
	ownResource := func(sub Subject, res Resource) bool {
		return res.OwnerID != "" && res.OwnerID == sub.UserID
	}

	return &Resolver{
		rules: map[Role][]rule{
			RoleAdmin: {
				// Platform operators are unconditional on every resource type.
				{action: ActionRead, resourceType: ResourceGrant},
				{action: ActionCreate, resourceType: ResourceGrant},
				{action: ActionUpdate, resourceType: ResourceGrant},
				{action: ActionDecide, resourceType: ResourceGrant},
				{action: ActionRead, resourceType: ResourceUser},
				{action: ActionManageUsers, resourceType: ResourceUser},
			},
			RoleMinistryAdmin: {
				{action: ActionRead, resourceType: ResourceGrant, check: sameMinistry},
				{action: ActionUpdate, resourceType: ResourceGrant, check: sameMinistry},
				{action: ActionDecide, resourceType: ResourceGrant, check: sameMinistry},
				{action: ActionRead, resourceType: ResourceUser, check: sameMinistry},
				{action: ActionManageUsers, resourceType: ResourceUser, check: sameMinistry},
			},
			RoleReviewer: {
				{action: ActionRead, resourceType: ResourceGrant, check: sameMinistry},
				{action: ActionDecide, resourceType: ResourceGrant, check: sameMinistry},
			},
			RoleApplicant: {
				{action: ActionCreate, resourceType: ResourceGrant},
				{action: ActionRead, resourceType: ResourceGrant, check: ownResource},
				{action: ActionUpdate, resourceType: ResourceGrant, check: ownResource},
			},
		},
	}
}

// Can reports whether the subject may perform the action on the resource.
// Pure function over the resolver's rules: no state, no I/O.
func (r *Resolver) Can(sub Subject, action Action, res Resource) bool {
	for _, role := range sub.Roles {
		for _, rl := range r.rules[role] {
			if rl.action != action || rl.resourceType != res.Type {
				continue
			}
			if rl.check == nil || rl.check(sub, res) {
				return true
			}
		}
	}
	return false
}
