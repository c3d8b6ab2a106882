package notify

import "context"

// Notifier reports the progress of a backup run
type Notifier interface {
	// Started announces a new run and returns an id referring to the announcement
	Started(ctx context.Context, msg string) (string, error)
	// Succeeded marks the run announced under id as successful
	Succeeded(ctx context.Context, id, msg string) error
	// Failed reports that the run announced under id failed.
	// id may be empty if the start announcement could not be delivered.
	Failed(ctx context.Context, id string, err error) error
}

// Noop is a notifier that does not report anything
type Noop struct{}

func (Noop) Started(context.Context, string) (string, error) { return "", nil }

func (Noop) Succeeded(context.Context, string, string) error { return nil }

func (Noop) Failed(context.Context, string, error) error { return nil }
