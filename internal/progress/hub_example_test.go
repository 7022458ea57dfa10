package progress

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, _ Event) error {
	s.total++
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{BufferSize: 4}, sink)

	hub.Emit(Event{
		RunID: "00000000-0000-0000-0000-000000000001",
		TS:    time.Unix(0, 0),
		Stage: StageRunStart,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink that totals updated entries.
func ExampleSink() {
	var updated int
	capture := sinkFunc(func(_ context.Context, evt Event) error {
		if evt.Stage == StageEntryDone && evt.Outcome == OutcomeUpdated {
			updated++
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 2}, capture)

	hub.Emit(Event{
		RunID:   "00000000-0000-0000-0000-000000000002",
		TS:      time.Unix(0, 0),
		Stage:   StageEntryDone,
		Key:     "a8f3b2c199d04e72",
		Outcome: OutcomeUpdated,
		Cites:   12,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("entries updated: %d\n", updated)
	// Output:
	// entries updated: 1
}

type sinkFunc func(context.Context, Event) error

func (f sinkFunc) Consume(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
