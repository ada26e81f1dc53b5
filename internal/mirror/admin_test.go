package mirror

import (
	"context"
	"errors"
	"testing"

	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/state"
)

func TestUpsertJobBindsPollerAndBaselines(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	alphaClient := h.connect("alpha")
	h.connect("beta")
	alphaClient.latest = 1000

	res, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostMode:    state.PostModeUser,
		PostSession: "beta",
	})
	if err != nil {
		t.Fatalf("UpsertJob failed: %v", err)
	}

	if res.PollSession != "alpha" {
		t.Errorf("Expected poll session alpha, got %s", res.PollSession)
	}
	if res.BaselineID != 1000 {
		t.Errorf("Expected baseline 1000, got %d", res.BaselineID)
	}
	if res.Job.LastOkID != 1000 {
		t.Errorf("Expected new job cursor at the baseline, got %d", res.Job.LastOkID)
	}
	if res.Job.PostSessionName != "beta" {
		t.Errorf("Expected post session beta, got %s", res.Job.PostSessionName)
	}

	p, ok := h.store.GetPoller("source_one")
	if !ok || p.PollSessionName != "alpha" {
		t.Fatalf("Expected poller bound to alpha, got %q", p.PollSessionName)
	}

	joined := alphaClient.joinedChannels()
	if len(joined) != 1 || joined[0] != "source_one" {
		t.Errorf("Expected the poll session to join the source, got %v", joined)
	}
	for _, ch := range joined {
		if ch == "dest_one" {
			t.Error("Expected the poll session to never join the destination")
		}
	}
}

func TestUpsertJobNormalizesChannels(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	h.connect("alpha")
	h.connect("beta")

	res, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "@source_one ",
		Dest:        " @dest_one",
		PostSession: "Beta.session",
	})
	if err != nil {
		t.Fatalf("UpsertJob failed: %v", err)
	}
	if res.Job.Source != "source_one" || res.Job.Dest != "dest_one" {
		t.Errorf("Expected normalized channels, got %s -> %s", res.Job.Source, res.Job.Dest)
	}
	if res.Job.PostSessionName != "beta" {
		t.Errorf("Expected canonical post session name beta, got %s", res.Job.PostSessionName)
	}
	if res.Job.PostMode != state.PostModeUser {
		t.Errorf("Expected mode to default to user, got %s", res.Job.PostMode)
	}
}

func TestUpsertJobExistingJobKeepsCursor(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	alphaClient := h.connect("alpha")
	h.connect("beta")
	alphaClient.latest = 1000

	params := JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
	}
	first, err := h.admin.UpsertJob(context.Background(), params)
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	alphaClient.mu.Lock()
	alphaClient.latest = 2000
	alphaClient.mu.Unlock()

	params.CaptionAppend = "Mirrored"
	second, err := h.admin.UpsertJob(context.Background(), params)
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	if second.Job.ID != first.Job.ID {
		t.Fatalf("Expected the same job id, got %s and %s", first.Job.ID, second.Job.ID)
	}
	if second.Job.LastOkID != 1000 {
		t.Errorf("Expected cursor kept at 1000, got %d", second.Job.LastOkID)
	}
	if second.Job.CaptionAppend != "Mirrored" {
		t.Errorf("Expected caption updated, got %q", second.Job.CaptionAppend)
	}
	if h.store.CountJobs() != 1 {
		t.Errorf("Expected 1 job, got %d", h.store.CountJobs())
	}
}

func TestUpsertJobRejectsPostSessionThatPolls(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	h.connect("alpha")
	h.connect("beta")
	h.bindPoller("source_a", "alpha")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_b",
		Dest:        "dest_b",
		PostSession: "alpha",
	})
	if !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("Expected role conflict, got %v", err)
	}
}

func TestUpsertJobRejectsPreferredPollSessionThatPosts(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session", "gamma.session")
	h.connect("alpha")
	h.connect("beta")
	h.connect("gamma")
	h.putUserJob("source_a", "dest_a", "beta", 0)

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_b",
		Dest:        "dest_b",
		PostSession: "gamma",
		PollSession: "beta",
	})
	if !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("Expected role conflict, got %v", err)
	}
}

func TestUpsertJobRejectsPollEqualsPost(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	h.connect("alpha")
	h.connect("beta")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "alpha",
		PollSession: "alpha",
	})
	if !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("Expected role conflict for one session in both roles, got %v", err)
	}
}

func TestUpsertJobUnknownPostSession(t *testing.T) {
	h := newHarness(t, "alpha.session")
	h.connect("alpha")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "ghost",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Expected session not found, got %v", err)
	}
}

func TestUpsertJobUnknownPreferredPollSession(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	h.connect("alpha")
	h.connect("beta")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
		PollSession: "ghost",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Expected session not found, got %v", err)
	}
}

func TestUpsertJobDeadPreferredPollSession(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session")
	h.dialer.client("alpha.session").authorized = false
	h.connect("beta")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
		PollSession: "alpha",
	})
	if !errors.Is(err, ErrPollSessionDead) {
		t.Fatalf("Expected dead poll session error, got %v", err)
	}
	if _, ok := h.store.GetPoller("source_one"); ok {
		t.Error("Expected no poller bound after a failed probe")
	}
}

func TestUpsertJobNoEligiblePollSession(t *testing.T) {
	h := newHarness(t, "beta.session")
	h.connect("beta")

	_, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
	})
	if !errors.Is(err, ErrNoPollSession) {
		t.Fatalf("Expected no poll session error, got %v", err)
	}
	if h.store.CountJobs() != 0 {
		t.Errorf("Expected no job stored, got %d", h.store.CountJobs())
	}
}

func TestUpsertJobKeepsExistingPollerWhenAlive(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session", "gamma.session")
	h.connect("alpha")
	h.connect("beta")
	h.connect("gamma")
	h.bindPoller("source_one", "alpha")

	res, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
	})
	if err != nil {
		t.Fatalf("UpsertJob failed: %v", err)
	}
	if res.PollSession != "alpha" {
		t.Errorf("Expected the existing binding kept, got %s", res.PollSession)
	}
}

func TestUpsertJobRebindsDeadExistingPoller(t *testing.T) {
	h := newHarness(t, "alpha.session", "beta.session", "gamma.session")
	h.dialer.client("alpha.session").authorized = false
	h.connect("beta")
	h.connect("gamma")
	h.bindPoller("source_one", "alpha")

	res, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:      "source_one",
		Dest:        "dest_one",
		PostSession: "beta",
	})
	if err != nil {
		t.Fatalf("UpsertJob failed: %v", err)
	}
	if res.PollSession != "gamma" {
		t.Errorf("Expected rebind to gamma, got %s", res.PollSession)
	}
	p, _ := h.store.GetPoller("source_one")
	if p.PollSessionName != "gamma" {
		t.Errorf("Expected poller bound to gamma, got %s", p.PollSessionName)
	}
	if n := h.alerts.eventCount(notify.EventFailover); n != 1 {
		t.Errorf("Expected 1 failover alert, got %d", n)
	}
}

func TestUpsertJobBotMode(t *testing.T) {
	h := newHarness(t, "alpha.session")
	alphaClient := h.connect("alpha")
	alphaClient.latest = 500

	res, err := h.admin.UpsertJob(context.Background(), JobParams{
		Source:   "source_one",
		Dest:     "dest_bot",
		PostMode: state.PostModeBot,
		BotToken: " 123:token ",
	})
	if err != nil {
		t.Fatalf("UpsertJob failed: %v", err)
	}
	if res.Job.PostMode != state.PostModeBot {
		t.Errorf("Expected bot mode, got %s", res.Job.PostMode)
	}
	if res.Job.BotToken != "123:token" {
		t.Errorf("Expected trimmed token, got %q", res.Job.BotToken)
	}
	if res.Job.PostSessionName != "" {
		t.Errorf("Expected no post session for a bot job, got %q", res.Job.PostSessionName)
	}
	if res.Job.LastOkID != 500 {
		t.Errorf("Expected baseline cursor 500, got %d", res.Job.LastOkID)
	}
}

func TestUpsertJobValidation(t *testing.T) {
	h := newHarness(t, "alpha.session")
	h.connect("alpha")

	cases := []struct {
		name   string
		params JobParams
	}{
		{"empty source", JobParams{Dest: "dest_one", PostSession: "alpha"}},
		{"blank source", JobParams{Source: "@ ", Dest: "dest_one", PostSession: "alpha"}},
		{"empty dest", JobParams{Source: "source_one", PostSession: "alpha"}},
		{"user without post session", JobParams{Source: "source_one", Dest: "dest_one"}},
		{"bot without token", JobParams{Source: "source_one", Dest: "dest_one", PostMode: state.PostModeBot}},
	}
	for _, tc := range cases {
		if _, err := h.admin.UpsertJob(context.Background(), tc.params); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected invalid request, got %v", tc.name, err)
		}
	}
}

func TestDeleteAllRemovesJobsAndPoller(t *testing.T) {
	h := newHarness(t, "alpha.session")
	h.connect("alpha")
	h.bindPoller("source_one", "alpha")
	h.putBotJob("source_one", "dest_a", "123:token-a", 0)
	h.putBotJob("source_one", "dest_b", "123:token-b", 0)
	h.putBotJob("source_other", "dest_c", "123:token-c", 0)

	removed, hadPoller, err := h.admin.DeleteAll("@source_one")
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if removed != 2 || !hadPoller {
		t.Errorf("Expected 2 jobs and the poller removed, got %d jobs, poller %v", removed, hadPoller)
	}
	if h.store.CountJobs() != 1 {
		t.Errorf("Expected the other source untouched, got %d jobs", h.store.CountJobs())
	}
	if _, ok := h.store.GetPoller("source_one"); ok {
		t.Error("Expected the poller removed")
	}

	removed, hadPoller, err = h.admin.DeleteAll("source_one")
	if err != nil {
		t.Fatalf("Second DeleteAll failed: %v", err)
	}
	if removed != 0 || hadPoller {
		t.Errorf("Expected nothing left to delete, got %d jobs, poller %v", removed, hadPoller)
	}
}

func TestDeleteAllInvalidSource(t *testing.T) {
	h := newHarness(t)

	if _, _, err := h.admin.DeleteAll("  "); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected invalid request, got %v", err)
	}
}
