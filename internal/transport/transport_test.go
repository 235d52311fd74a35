// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"spotmeter/pkg/utils"
)

type failingTransport struct {
	sendErr, closeErr error
	closes            int
}

func (f *failingTransport) Send(any) error { return f.sendErr }

func (f *failingTransport) Close() error {
	f.closes++
	return f.closeErr
}

func TestFanoutHandleLevel(t *testing.T) {
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	f := NewFanout(a, nil, b)
	f.now = func() time.Time { return time.UnixMilli(1700000000000) }

	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (nil skipped)", f.Len())
	}

	f.HandleLevel(context.Background(), 0.25)
	f.HandleLevel(context.Background(), 0.5)

	for name, mt := range map[string]*utils.MockTransport{"a": a, "b": b} {
		msgs := mt.Messages()
		if len(msgs) != 2 {
			t.Fatalf("%s received %d events, want 2", name, len(msgs))
		}
		ev, ok := msgs[1].(LevelEvent)
		if !ok {
			t.Fatalf("%s received %T, want LevelEvent", name, msgs[1])
		}
		want := LevelEvent{Type: "level", Level: 0.5, Sequence: 2, Timestamp: 1700000000000}
		if ev != want {
			t.Errorf("%s event = %+v, want %+v", name, ev, want)
		}
	}
}

func TestFanoutSendErrorsDoNotStopDelivery(t *testing.T) {
	bad := &failingTransport{sendErr: errors.New("boom")}
	good := &utils.MockTransport{}
	f := NewFanout(bad, good)

	f.HandleLevel(context.Background(), 1)
	if len(good.Messages()) != 1 {
		t.Errorf("healthy transport missed the event")
	}

	if err := f.Send("raw"); err == nil || !errors.Is(err, bad.sendErr) {
		t.Errorf("Send() error = %v, want wrapped %v", err, bad.sendErr)
	}
}

func TestFanoutCloseOnce(t *testing.T) {
	closeErr := errors.New("close failed")
	bad := &failingTransport{closeErr: closeErr}
	good := &utils.MockTransport{}
	f := NewFanout(bad, good)

	for range 2 {
		if err := f.Close(); !errors.Is(err, closeErr) {
			t.Errorf("Close() error = %v, want %v", err, closeErr)
		}
	}
	if bad.closes != 1 {
		t.Errorf("transport closed %d times, want 1", bad.closes)
	}
	if !good.Closed {
		t.Error("healthy transport was not closed")
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(LevelEvent{Level: 0.1}); err != nil {
		t.Errorf("Send(LevelEvent) error = %v", err)
	}
	if err := lt.Send(42); err != nil {
		t.Errorf("Send(int) error = %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
