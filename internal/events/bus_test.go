package events_test

import (
	"context"
	"testing"
	"time"

	"storybook/internal/events"
	"storybook/internal/run"
)

func snapshotEvent(status run.Status, stage run.Stage) events.Event {
	return events.Event{Status: status, Stage: stage, ReadyMaxPage: -1, ReadyMaxAudioPage: -1}
}

func TestSubscribeYieldsSnapshotFirst(t *testing.T) {
	bus := events.NewBus(time.Second)
	ctx := context.Background()

	bus.Publish("r1", snapshotEvent(run.StatusRunning, run.StageText))
	sub := bus.Subscribe("r1", snapshotEvent(run.StatusRunning, run.StageCover))

	evt, ok, err := sub.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next failed: ok=%v err=%v", ok, err)
	}
	if evt.Stage != run.StageCover {
		t.Fatalf("expected snapshot first, got %+v", evt)
	}
}

func TestEventsDeliveredInPublishOrder(t *testing.T) {
	bus := events.NewBus(time.Second)
	ctx := context.Background()

	sub := bus.Subscribe("r1", snapshotEvent(run.StatusQueued, run.StageText))
	stages := []run.Stage{run.StageText, run.StageCover, run.StagePanel1, run.StagePanel2}
	for _, stage := range stages {
		bus.Publish("r1", snapshotEvent(run.StatusRunning, stage))
	}
	bus.Publish("r1", snapshotEvent(run.StatusDone, run.StageAudio))

	// Snapshot first.
	if evt, _, err := sub.Next(ctx); err != nil || evt.Status != run.StatusQueued {
		t.Fatalf("snapshot: %+v err=%v", evt, err)
	}
	for _, stage := range stages {
		evt, ok, err := sub.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("Next failed: %v", err)
		}
		if evt.Stage != stage {
			t.Fatalf("out of order: expected %s got %s", stage, evt.Stage)
		}
	}

	evt, ok, err := sub.Next(ctx)
	if err != nil || !ok || evt.Status != run.StatusDone {
		t.Fatalf("expected terminal event, got %+v ok=%v err=%v", evt, ok, err)
	}
	if _, ok, _ := sub.Next(ctx); ok {
		t.Fatal("stream should end after terminal event")
	}
}

func TestTerminalSnapshotEndsStreamImmediately(t *testing.T) {
	bus := events.NewBus(time.Second)
	ctx := context.Background()

	sub := bus.Subscribe("r1", snapshotEvent(run.StatusFailed, run.StageText))
	evt, ok, err := sub.Next(ctx)
	if err != nil || !ok || evt.Status != run.StatusFailed {
		t.Fatalf("unexpected snapshot: %+v", evt)
	}
	if _, ok, _ := sub.Next(ctx); ok {
		t.Fatal("expected closed stream")
	}
}

func TestKeepaliveOnIdle(t *testing.T) {
	bus := events.NewBus(20 * time.Millisecond)
	ctx := context.Background()

	sub := bus.Subscribe("r1", snapshotEvent(run.StatusRunning, run.StageText))
	if _, _, err := sub.Next(ctx); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	evt, ok, err := sub.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next failed: %v", err)
	}
	if !evt.Keepalive {
		t.Fatalf("expected keepalive marker, got %+v", evt)
	}

	// Stream continues after a keepalive.
	bus.Publish("r1", snapshotEvent(run.StatusDone, run.StageAudio))
	evt, ok, err = sub.Next(ctx)
	if err != nil || !ok || evt.Status != run.StatusDone {
		t.Fatalf("expected terminal event after keepalive, got %+v", evt)
	}
}

func TestNextHonorsContextCancellation(t *testing.T) {
	bus := events.NewBus(time.Minute)
	sub := bus.Subscribe("r1", snapshotEvent(run.StatusRunning, run.StageText))
	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := sub.Next(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLateSubscriberSkipsHistoryButSeesNewEvents(t *testing.T) {
	bus := events.NewBus(time.Second)
	ctx := context.Background()

	bus.Publish("r1", snapshotEvent(run.StatusRunning, run.StageText))
	bus.Publish("r1", snapshotEvent(run.StatusRunning, run.StageCover))

	sub := bus.Subscribe("r1", snapshotEvent(run.StatusRunning, run.StageCover))
	if evt, _, err := sub.Next(ctx); err != nil || evt.Stage != run.StageCover {
		t.Fatalf("snapshot: %+v err=%v", evt, err)
	}

	bus.Publish("r1", snapshotEvent(run.StatusRunning, run.StagePanel1))
	evt, _, err := sub.Next(ctx)
	if err != nil || evt.Stage != run.StagePanel1 {
		t.Fatalf("expected panel 1 event, got %+v err=%v", evt, err)
	}
}

func TestDropDiscardsRunLog(t *testing.T) {
	bus := events.NewBus(10 * time.Millisecond)
	bus.Publish("r1", snapshotEvent(run.StatusRunning, run.StageText))
	bus.Drop("r1")

	sub := bus.Subscribe("r1", snapshotEvent(run.StatusRunning, run.StageText))
	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("snapshot after drop failed: %v", err)
	}
	evt, _, err := sub.Next(context.Background())
	if err != nil || !evt.Keepalive {
		t.Fatalf("expected keepalive on empty log, got %+v err=%v", evt, err)
	}
}
