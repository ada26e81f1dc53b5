package state

import "strings"

// Session roles as shown in status output.
const (
	RolePoll = "poll"
	RolePost = "post"
	RoleFree = "free"
)

// RoleMap partitions session names into poll and post roles. Names are
// normalized and lowercased; a name must never appear in both sets, and the
// API rejects any mutation that would put it there.
type RoleMap struct {
	Poll map[string]struct{}
	Post map[string]struct{}
}

// Roles derives the role map from the current pollers and jobs.
func (s *Store) Roles() RoleMap {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm := RoleMap{
		Poll: make(map[string]struct{}),
		Post: make(map[string]struct{}),
	}

	for _, p := range s.pollers {
		if name := roleKey(p.PollSessionName); name != "" {
			rm.Poll[name] = struct{}{}
		}
	}

	for _, j := range s.jobs {
		if j.PostMode != PostModeUser {
			continue
		}
		if name := roleKey(j.PostSessionName); name != "" {
			rm.Post[name] = struct{}{}
		}
	}

	return rm
}

func roleKey(name string) string {
	return strings.ToLower(NormalizeSessionName(name))
}

// IsPoll reports whether the session name holds the poll role.
func (rm RoleMap) IsPoll(name string) bool {
	_, ok := rm.Poll[roleKey(name)]
	return ok
}

// IsPost reports whether the session name holds the post role.
func (rm RoleMap) IsPost(name string) bool {
	_, ok := rm.Post[roleKey(name)]
	return ok
}

// RoleOf returns the session's role for status output.
func (rm RoleMap) RoleOf(name string) string {
	switch {
	case rm.IsPoll(name):
		return RolePoll
	case rm.IsPost(name):
		return RolePost
	default:
		return RoleFree
	}
}
