package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cli.Close() })
	return mr, cli
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, cli := newTestClient(t)
	repo := NewRedisSessionRepository(cli, logger.NewNop())

	if _, err := repo.Get(ctx, "missing"); err != redis.Nil {
		t.Fatalf("Get(missing) err = %v, want redis.Nil", err)
	}

	if err := repo.Save(ctx, &models.GatewaySession{ID: "s1", UserID: "u1", Sequence: 42}, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.Sequence != 42 {
		t.Fatalf("got %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "s1"); err != redis.Nil {
		t.Fatalf("expired session err = %v, want redis.Nil", err)
	}
}

func TestScheduleRepositoryPopDueIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	_, cli := newTestClient(t)
	repo := NewRedisScheduleRepository(cli, logger.NewNop())

	for i, uID := range []string{"a", "b", "c"} {
		s := &models.PresenceSchedule{Status: models.StatusDND, RevertTo: models.StatusOnline, Until: int64(1000 * (i + 1))}
		if err := repo.Set(ctx, uID, s, time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	due, err := repo.PopDue(ctx, 2000, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0] != "a" || due[1] != "b" {
		t.Fatalf("PopDue(2000) = %v, want [a b]", due)
	}

	due, err = repo.PopDue(ctx, 2000, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatalf("second PopDue(2000) = %v, want none", due)
	}

	// The schedule record itself survives the pop so the sweeper can read revertTo.
	s, err := repo.Get(ctx, "a")
	if err != nil || s.RevertTo != models.StatusOnline {
		t.Fatalf("Get(a) = %+v, %v", s, err)
	}
}

func TestScheduleRepositoryPopDueRespectsLimit(t *testing.T) {
	ctx := context.Background()
	_, cli := newTestClient(t)
	repo := NewRedisScheduleRepository(cli, logger.NewNop())

	for _, uID := range []string{"a", "b", "c"} {
		if err := repo.Set(ctx, uID, &models.PresenceSchedule{Status: models.StatusIdle, Until: 10}, time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	due, err := repo.PopDue(ctx, 100, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("PopDue limit 2 returned %v", due)
	}
}

func TestPresenceRepositoryOverrideNeverOffline(t *testing.T) {
	ctx := context.Background()
	_, cli := newTestClient(t)
	repo := NewRedisPresenceRepository(cli, logger.NewNop())

	if err := repo.SetOverride(ctx, "u1", models.StatusOffline); err == nil {
		t.Fatal("SetOverride(offline) succeeded")
	}
	if err := repo.SetOverride(ctx, "u1", models.StatusDND); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetOverride(ctx, "u1")
	if err != nil || got != models.StatusDND {
		t.Fatalf("GetOverride = %q, %v", got, err)
	}
	if err := repo.DeleteOverride(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.GetOverride(ctx, "u1"); got != "" {
		t.Fatalf("override after delete = %q", got)
	}
}

func TestPresenceRepositoryGetManySkipsMissing(t *testing.T) {
	ctx := context.Background()
	_, cli := newTestClient(t)
	repo := NewRedisPresenceRepository(cli, logger.NewNop())

	if err := repo.Set(ctx, &models.Presence{UserID: "u1", Status: models.StatusIdle}, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetMany(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["u1"].Status != models.StatusIdle {
		t.Fatalf("GetMany = %v", got)
	}
}

func TestVoiceRepositoryChannelMove(t *testing.T) {
	ctx := context.Background()
	_, cli := newTestClient(t)
	repo := NewRedisVoiceRepository(cli, logger.NewNop())

	ch1, ch2 := "c1", "c2"
	st := &models.VoiceState{UserID: "u1", SpaceID: "s", ChannelID: &ch1}
	if err := repo.SaveState(ctx, st, "", time.Minute, time.Hour, 1000); err != nil {
		t.Fatal(err)
	}

	moved := *st
	moved.ChannelID = &ch2
	if err := repo.SaveState(ctx, &moved, st.RoomID(), time.Minute, time.Hour, 2000); err != nil {
		t.Fatal(err)
	}

	old, err := repo.ChannelStates(ctx, "s:c1")
	if err != nil || len(old) != 0 {
		t.Fatalf("old channel states = %v, %v", old, err)
	}
	cur, err := repo.ChannelStates(ctx, "s:c2")
	if err != nil || len(cur) != 1 || cur[0].UserID != "u1" {
		t.Fatalf("new channel states = %v, %v", cur, err)
	}
	if room, _ := repo.GetLastRoom(ctx, "u1"); room != "s:c2" {
		t.Fatalf("last room = %q", room)
	}

	due, err := repo.DueExpiries(ctx, 1500, 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("DueExpiries(1500) = %v, %v; the index must follow the latest write", due, err)
	}

	if err := repo.RemoveState(ctx, "u1", "s:c2"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := repo.StateExists(ctx, "u1"); ok {
		t.Fatal("state still exists after RemoveState")
	}
	if room, _ := repo.GetLastRoom(ctx, "u1"); room != "" {
		t.Fatalf("last room = %q after RemoveState", room)
	}
	if due, _ := repo.DueExpiries(ctx, 5000, 10); len(due) != 0 {
		t.Fatalf("index entry survived RemoveState: %v", due)
	}
}

func TestLockRepositorySingleHolder(t *testing.T) {
	ctx := context.Background()
	mr, cli := newTestClient(t)
	repo := NewRedisLockRepository(cli, logger.NewNop())

	ok, err := repo.AcquireLock(ctx, "presence", "i1", 900*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, err = repo.AcquireLock(ctx, "presence", "i2", 900*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("second acquire = %v, %v", ok, err)
	}

	mr.FastForward(time.Second)
	ok, err = repo.AcquireLock(ctx, "presence", "i2", 900*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("acquire after expiry = %v, %v", ok, err)
	}
}
