package history_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ripperbot/internal/history"
	"ripperbot/internal/testsupport"
)

func TestBeginFinishRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	if err := store.Begin(ctx, "cap-1", "picked_from_source", started); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.UpdateState(ctx, "cap-1", "imaging"); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	got, err := store.Get(ctx, "cap-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.State != "imaging" || got.Finished() || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected in-flight row %+v", got)
	}

	err = store.Finish(ctx, "cap-1", history.Outcome{
		State:         "sorted",
		Tray:          "error",
		Imaged:        false,
		Errors:        []string{"imaging failed", "cover failed"},
		CloseFailures: 2,
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, _ = store.Get(ctx, "cap-1")
	if got.Tray != "error" || got.CloseFailures != 2 || got.ErrorMessage != "imaging failed; cover failed" || !got.Finished() {
		t.Fatalf("unexpected finished row %+v", got)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	got, err := store.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = %v, %v", got, err)
	}
	if err := store.UpdateState(context.Background(), "missing", "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestRecentAndStats(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	for i, tray := range []string{"done", "error", "done", ""} {
		id := []string{"a", "b", "c", "d"}[i]
		if err := store.Begin(ctx, id, "picked_from_source", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Begin %s: %v", id, err)
		}
		if tray == "" {
			continue
		}
		if err := store.Finish(ctx, id, history.Outcome{State: "sorted", Tray: tray, Imaged: tray == "done"}); err != nil {
			t.Fatalf("Finish %s: %v", id, err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "d" || recent[1].ID != "c" {
		t.Fatalf("unexpected order %+v", recent)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Done != 2 || st.Error != 1 || st.InFlight != 1 || st.LastFinish.IsZero() {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMarkInterrupted(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.Begin(ctx, "open", "imaging", time.Now()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.Begin(ctx, "closed", "imaging", time.Now()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.Finish(ctx, "closed", history.Outcome{State: "sorted", Tray: "done"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	n, err := store.MarkInterrupted(ctx, "daemon restarted")
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	got, _ := store.Get(ctx, "open")
	if got.State != history.StateInterrupted || got.ErrorMessage != "daemon restarted" || !got.Finished() {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Begin(context.Background(), "keep", "imaging", time.Now()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	first.Close()

	second := testsupport.MustOpenHistory(t, cfg)
	got, err := second.Get(context.Background(), "keep")
	if err != nil || got == nil {
		t.Fatalf("expected row after reopen: %v %v", got, err)
	}
}
