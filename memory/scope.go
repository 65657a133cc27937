package memory

import "time"

// Accessor identifies the requester on a read path. Either field may be
// empty; an empty field never matches an ownership rule.
type Accessor struct {
	AgentID string
	UserID  string
}

// CanRead decides read visibility for a single memory. It is a pure
// function with no side effects, called on every retrieval candidate.
//
// The rules, exhaustively:
//
//   - ScopeGlobal: readable by anyone in the project
//   - ScopeAgentShared: readable by the owner and by agents listed in
//     SharedWithAgents
//   - ScopeAgentPrivate: readable only by the owner
//
// Ownership is the owning agent when AgentID is set; for user-owned
// memories with no agent, the owning user stands in.
func CanRead(acc Accessor, m *Memory) bool {
	switch m.Scope {
	case ScopeGlobal:
		return true
	case ScopeAgentShared:
		return isOwner(acc, m) || m.SharedWith(acc.AgentID)
	case ScopeAgentPrivate:
		return isOwner(acc, m)
	default:
		// Unknown scopes are rejected at the write boundary; anything that
		// slips through is unreadable.
		return false
	}
}

// Readable combines the scope rule with the expiry and deprecation gates
// applied on default retrieval. Expired memories never pass; deprecated
// memories pass only when includeDeprecated is set (audit reads).
func Readable(acc Accessor, m *Memory, now time.Time, includeDeprecated bool) bool {
	if m.Expired(now) {
		return false
	}
	if m.IsDeprecated && !includeDeprecated {
		return false
	}
	return CanRead(acc, m)
}

func isOwner(acc Accessor, m *Memory) bool {
	if m.AgentID != "" {
		return acc.AgentID == m.AgentID
	}
	return m.UserID != "" && acc.UserID == m.UserID
}
