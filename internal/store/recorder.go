package store

import (
	"context"
	"errors"
)

// Recorder persists the cases a driver evaluates.
type Recorder interface {
	RecordMetadata(ctx context.Context, meta Metadata) error
	RecordCase(ctx context.Context, c Case) error
	Close() error
}

type multiRecorder []Recorder

// Multi fans every call out to all recorders.
func Multi(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) RecordMetadata(ctx context.Context, meta Metadata) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordMetadata(ctx, meta))
	}
	return errors.Join(errs...)
}

func (m multiRecorder) RecordCase(ctx context.Context, c Case) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordCase(ctx, c))
	}
	return errors.Join(errs...)
}

func (m multiRecorder) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

type discard struct{}

// Discard drops everything; nested problems record through it.
var Discard Recorder = discard{}

func (discard) RecordMetadata(context.Context, Metadata) error { return nil }
func (discard) RecordCase(context.Context, Case) error         { return nil }
func (discard) Close() error                                   { return nil }

// Observer wraps a recorder and calls fn after each successfully recorded case.
func Observer(r Recorder, fn func(Case)) Recorder {
	return &observer{Recorder: r, fn: fn}
}

type observer struct {
	Recorder
	fn func(Case)
}

func (o *observer) RecordCase(ctx context.Context, c Case) error {
	if err := o.Recorder.RecordCase(ctx, c); err != nil {
		return err
	}
	o.fn(c)
	return nil
}
