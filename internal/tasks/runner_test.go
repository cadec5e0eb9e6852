package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/utsushi/internal/models"
)

func waitFor(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("job did not finish: %v", err)
	}
}

func TestRunner_Finished(t *testing.T) {
	r := NewRunner()
	if s := r.Status(); s.State != StateIdle {
		t.Fatalf("initial state = %s", s.State)
	}
	id, err := r.Start("refresh", func(ctx context.Context, rep *Reporter) error {
		rep.Progress("photos", 3, 4)
		rep.Finished(models.RefreshStats{Added: 3, Removed: 1})
		return nil
	})
	if err != nil || id == "" {
		t.Fatalf("Start = %q, %v", id, err)
	}
	waitFor(t, r)

	s := r.Status()
	if s.ID != id || s.Kind != "refresh" || s.State != StateFinished {
		t.Errorf("status = %+v", s)
	}
	if s.Folder != "photos" || s.Processed != 3 || s.Total != 4 {
		t.Errorf("progress = %s %d/%d", s.Folder, s.Processed, s.Total)
	}
	if s.Stats == nil || s.Stats.Added != 3 || s.Stats.Removed != 1 {
		t.Errorf("stats = %+v", s.Stats)
	}
}

func TestRunner_BusyAndCancel(t *testing.T) {
	r := NewRunner()
	started := make(chan struct{})
	_, err := r.Start("index", func(ctx context.Context, rep *Reporter) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if _, err := r.Start("refresh", func(context.Context, *Reporter) error { return nil }); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start err = %v, want ErrBusy", err)
	}
	if !r.Cancel() {
		t.Error("Cancel should report a running job")
	}
	waitFor(t, r)
	if s := r.Status(); s.State != StateCanceled {
		t.Errorf("state = %s, want canceled", s.State)
	}
	if r.Cancel() {
		t.Error("Cancel with nothing running should report false")
	}

	if _, err := r.Start("refresh", func(context.Context, *Reporter) error { return nil }); err != nil {
		t.Errorf("Start after job ended: %v", err)
	}
	waitFor(t, r)
}

func TestRunner_FailedAndPanic(t *testing.T) {
	r := NewRunner()
	_, _ = r.Start("refresh", func(context.Context, *Reporter) error { return errors.New("disk gone") })
	waitFor(t, r)
	if s := r.Status(); s.State != StateFailed || s.Error != "disk gone" {
		t.Errorf("status = %+v", s)
	}

	_, _ = r.Start("refresh", func(context.Context, *Reporter) error { panic("boom") })
	waitFor(t, r)
	if s := r.Status(); s.State != StateFailed {
		t.Errorf("panicking job state = %s, want failed", s.State)
	}
}

func TestRunner_StaleReporterIgnored(t *testing.T) {
	r := NewRunner()
	var stale *Reporter
	_, _ = r.Start("a", func(ctx context.Context, rep *Reporter) error {
		stale = rep
		return nil
	})
	waitFor(t, r)
	_, _ = r.Start("b", func(context.Context, *Reporter) error { return nil })
	waitFor(t, r)
	stale.Progress("old", 9, 9)
	if s := r.Status(); s.Folder == "old" {
		t.Error("reporter of a previous job must not change the current status")
	}
}
