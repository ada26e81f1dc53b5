package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mirrord.dev/internal/common/metrics"
)

// Store is the guarded working set plus its JSON snapshot file. All reads
// return copies; all mutation goes through methods holding the store mutex.
// Mutators do not persist; callers snapshot with Persist after a batch of
// changes.
type Store struct {
	mu   sync.Mutex
	path string

	pollers         map[string]*Poller
	jobs            map[string]*Job
	recentBySession map[string][]RecentPost
	recentByBot     map[string][]RecentPost
	deadSessions    map[string]DeadSession
}

// NewStore creates an empty store backed by the given snapshot path.
func NewStore(path string) *Store {
	return &Store{
		path:            path,
		pollers:         make(map[string]*Poller),
		jobs:            make(map[string]*Job),
		recentBySession: make(map[string][]RecentPost),
		recentByBot:     make(map[string][]RecentPost),
		deadSessions:    make(map[string]DeadSession),
	}
}

// Load reads the snapshot file. A missing or unparseable file leaves the
// store empty; mirrord starts with a clean state rather than refusing to run.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("State file unparseable, starting empty", "path", s.path, "error", err)
		return nil
	}

	if snap.Pollers != nil {
		s.pollers = snap.Pollers
	}
	if snap.Jobs != nil {
		s.jobs = snap.Jobs
	}
	if snap.RecentBySession != nil {
		s.recentBySession = snap.RecentBySession
	}
	if snap.RecentByBot != nil {
		s.recentByBot = snap.RecentByBot
	}
	if snap.DeadSessions != nil {
		s.deadSessions = snap.DeadSessions
	}

	// Map keys are authoritative for identity fields.
	for source, p := range s.pollers {
		if p.Source == "" {
			p.Source = source
		}
	}
	for id, j := range s.jobs {
		if j.ID == "" {
			j.ID = id
		}
	}

	metrics.JobsActive.Set(float64(len(s.jobs)))
	return nil
}

// Persist writes the snapshot file. The write goes through a temp file and
// rename so a crash mid-write never corrupts the previous snapshot.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	snap := s.snapshotLocked()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		metrics.StateSnapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.StateSnapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		metrics.StateSnapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	metrics.StateSnapshotWrites.WithLabelValues("ok").Inc()
	return nil
}

func (s *Store) snapshotLocked() *Snapshot {
	return &Snapshot{
		Pollers:         s.pollers,
		Jobs:            s.jobs,
		RecentBySession: s.recentBySession,
		RecentByBot:     s.recentByBot,
		DeadSessions:    s.deadSessions,
	}
}

// === Pollers ===

// GetPoller returns the poller for the normalized source.
func (s *Store) GetPoller(source string) (Poller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pollers[source]
	if !ok {
		return Poller{}, false
	}
	return *p, true
}

// Pollers returns all pollers sorted by source.
func (s *Store) Pollers() []Poller {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Poller, 0, len(s.pollers))
	for _, p := range s.pollers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// PutPoller creates or rebinds the poller for a source. A new poller gets
// its creation timestamp; an existing one keeps it.
func (s *Store) PutPoller(source, sessionName string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pollers[source]
	if !ok {
		p = &Poller{Source: source, CreatedTS: time.Now()}
		s.pollers[source] = p
	}
	p.PollSessionName = sessionName
	p.SessionIndex = index
}

// RebindPoller points the poller at a new session after failover, clearing
// the error and stamping the failover time.
func (s *Store) RebindPoller(source, sessionName string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pollers[source]
	if !ok {
		return
	}
	p.PollSessionName = sessionName
	p.SessionIndex = index
	p.LastError = ""
	p.LastFailoverTS = time.Now()
}

// SetPollerError records a fetch or failover error on the poller.
func (s *Store) SetPollerError(source, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pollers[source]; ok {
		p.LastError = msg
	}
}

// PollerCounts returns how many sources each session polls, keyed by
// lowercased session name. Used to pick the least-loaded failover candidate.
func (s *Store) PollerCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, p := range s.pollers {
		name := strings.ToLower(NormalizeSessionName(p.PollSessionName))
		if name != "" {
			counts[name]++
		}
	}
	return counts
}

// === Jobs ===

// GetJob returns the job with the given id.
func (s *Store) GetJob(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs returns all jobs sorted by id.
func (s *Store) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobsLocked()
}

func (s *Store) jobsLocked() []Job {
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JobsFor returns the jobs mirroring the given normalized source, sorted by
// id.
func (s *Store) JobsFor(source string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, j := range s.jobs {
		if j.Source == source {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutJob inserts or replaces a job. A new job gets its creation timestamp;
// the update timestamp is always stamped.
func (s *Store) PutJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.jobs[job.ID]; ok {
		job.CreatedTS = existing.CreatedTS
	} else if job.CreatedTS.IsZero() {
		job.CreatedTS = now
	}
	job.UpdatedTS = now

	stored := job
	s.jobs[job.ID] = &stored
	metrics.JobsActive.Set(float64(len(s.jobs)))
}

// MarkJobDelivered records a successful republish of msgID for the job. The
// cursor advances only when msgID is above it; error and pause markers are
// cleared either way. Returns whether the cursor moved.
func (s *Store) MarkJobDelivered(id string, msgID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}

	j.LastError = ""
	j.PausedReason = ""
	j.UpdatedTS = time.Now()

	if msgID <= j.LastOkID {
		return false
	}
	j.LastOkID = msgID
	metrics.JobCursorAdvances.Inc()
	return true
}

// SetJobError records a republish failure without touching the cursor.
func (s *Store) SetJobError(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.LastError = msg
		j.UpdatedTS = time.Now()
	}
}

// SetJobPaused marks the job as paused with a machine-readable reason and a
// human-readable error.
func (s *Store) SetJobPaused(id, reason, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.PausedReason = reason
		j.LastError = msg
		j.UpdatedTS = time.Now()
	}
}

// DeleteSource removes every job for the source and its poller in one
// critical section. Returns the number of jobs removed and whether a poller
// existed.
func (s *Store) DeleteSource(source string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if j.Source == source {
			delete(s.jobs, id)
			removed++
		}
	}

	_, hadPoller := s.pollers[source]
	delete(s.pollers, source)

	metrics.JobsActive.Set(float64(len(s.jobs)))
	return removed, hadPoller
}

// MinCursor returns the smallest last_ok_id over the jobs for a source.
// The second return is false when the source has no jobs.
func (s *Store) MinCursor(source string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	min := 0
	for _, j := range s.jobs {
		if j.Source != source {
			continue
		}
		if !found || j.LastOkID < min {
			min = j.LastOkID
			found = true
		}
	}
	return min, found
}

// === Recent-publish rings ===

// PushSessionRecent prepends a publish record to the session's ring.
func (s *Store) PushSessionRecent(sessionFile string, post RecentPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentBySession[sessionFile] = pushRecent(s.recentBySession[sessionFile], post)
}

// PushBotRecent prepends a publish record to the bot's ring.
func (s *Store) PushBotRecent(botKey string, post RecentPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentByBot[botKey] = pushRecent(s.recentByBot[botKey], post)
}

func pushRecent(ring []RecentPost, post RecentPost) []RecentPost {
	ring = append([]RecentPost{post}, ring...)
	if len(ring) > recentRingCap {
		ring = ring[:recentRingCap]
	}
	return ring
}

// SessionRecent returns the session's ring, newest first.
func (s *Store) SessionRecent(sessionFile string) []RecentPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecentPost(nil), s.recentBySession[sessionFile]...)
}

// BotRecent returns every bot ring keyed by fingerprint.
func (s *Store) BotRecent() map[string][]RecentPost {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]RecentPost, len(s.recentByBot))
	for k, ring := range s.recentByBot {
		out[k] = append([]RecentPost(nil), ring...)
	}
	return out
}

// ClearSessionRecent drops the ring of a deleted session.
func (s *Store) ClearSessionRecent(sessionFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recentBySession, sessionFile)
}

// === Dead sessions ===

// SetDeadSessions replaces the dead map wholesale; the health monitor owns
// the full picture on every pass.
func (s *Store) SetDeadSessions(dead map[string]DeadSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dead == nil {
		dead = make(map[string]DeadSession)
	}
	s.deadSessions = dead
}

// DeadSessions returns a copy of the dead map.
func (s *Store) DeadSessions() map[string]DeadSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]DeadSession, len(s.deadSessions))
	for k, v := range s.deadSessions {
		out[k] = v
	}
	return out
}

// CountJobs returns the number of configured jobs.
func (s *Store) CountJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// CountPollers returns the number of configured pollers.
func (s *Store) CountPollers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}
