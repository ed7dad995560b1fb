package approval

import (
	"context"
	"errors"
	"strings"
)

const (
	DefaultAuthorityName = "Administrator"
	DefaultTimeoutHours  = 24
)

var (
	ErrNoGuildScope   = errors.New("approval: command requires a server-scoped actor")
	ErrTicketNotFound = errors.New("approval: ticket not found")
	ErrNotAuthorized  = errors.New("approval: actor lacks approval authority")
	ErrAlreadyDecided = errors.New("approval: ticket already decided")
)

// Settings is the immutable approver configuration injected at construction.
type Settings struct {
	AuthorityName            string
	TimeoutHours             int
	NotifyRequesterOnFailure bool
	OpenThreads              bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		AuthorityName: DefaultAuthorityName,
		TimeoutHours:  DefaultTimeoutHours,
		OpenThreads:   true,
	}
}

func (s Settings) normalized() Settings {
	s.AuthorityName = strings.TrimSpace(s.AuthorityName)
	if s.AuthorityName == "" {
		s.AuthorityName = DefaultAuthorityName
	}
	if s.TimeoutHours <= 0 {
		s.TimeoutHours = DefaultTimeoutHours
	}
	return s
}

// Directory resolves guild roles.
type Directory interface {
	ActorHasRole(actor Actor, roleName string) bool
	RoleMentions(ctx context.Context, guildID, roleName string) []string
}

// Policy decides whether an actor holds approval authority.
type Policy struct {
	authorityName string
	directory     Directory
}

func NewPolicy(authorityName string, directory Directory) Policy {
	name := strings.TrimSpace(authorityName)
	if name == "" {
		name = DefaultAuthorityName
	}
	return Policy{authorityName: name, directory: directory}
}

// AuthorityName returns the role name that grants approval rights.
func (p Policy) AuthorityName() string {
	return p.authorityName
}

// IsAuthorized reports whether the actor holds the authority role.
func (p Policy) IsAuthorized(actor Actor) bool {
	if p.directory == nil {
		return false
	}
	return p.directory.ActorHasRole(actor, p.authorityName)
}

// RoleDirectory is a Directory backed by the role names carried on the actor.
// It is used where no live guild is available.
type RoleDirectory struct{}

func (RoleDirectory) ActorHasRole(actor Actor, roleName string) bool {
	for _, role := range actor.Roles {
		if role == roleName {
			return true
		}
	}
	return false
}

func (RoleDirectory) RoleMentions(context.Context, string, string) []string {
	return nil
}
