// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"spotmeter/internal/level"
)

type fakeSource struct {
	level   float64
	windows uint64
}

func (f fakeSource) LastLevel() float64 { return f.level }

func (f fakeSource) Stats() level.Stats { return level.Stats{Windows: f.windows} }

type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (r *recordingSender) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, append([]byte(nil), data...))
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func TestPacketEncoding(t *testing.T) {
	in := Packet{Sequence: 7, Timestamp: -42, Window: 1 << 40, Level: 0.333}
	buf := AppendPacket(nil, in)

	if len(buf) != PacketSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), PacketSize)
	}
	if buf[3] != 7 {
		t.Errorf("sequence is not big-endian: % x", buf[:4])
	}

	out, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket() error = %v", err)
	}
	if out != in {
		t.Errorf("DecodePacket() = %+v, want %+v", out, in)
	}

	if _, err := DecodePacket(buf[:10]); err == nil {
		t.Error("DecodePacket() accepted a short packet")
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(time.Second, nil, fakeSource{}); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewPublisher(time.Second, &recordingSender{}, nil); err == nil {
		t.Error("expected error for nil source")
	}

	p, err := NewPublisher(0, &recordingSender{}, fakeSource{})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestPublisherSequence(t *testing.T) {
	sender := &recordingSender{}
	p, err := NewPublisher(5*time.Millisecond, sender, fakeSource{level: 0.5, windows: 3})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	p.Start()
	p.Start() // no-op

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("publisher did not send 3 packets")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, raw := range sender.packets {
		pkt, err := DecodePacket(raw)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.Sequence != uint32(i+1) || pkt.Level != 0.5 || pkt.Window != 3 {
			t.Errorf("packet %d = %+v", i, pkt)
		}
	}
}

func TestPublisherSurvivesSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("network down")}
	p, _ := NewPublisher(5*time.Millisecond, sender, fakeSource{})

	p.Start()
	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("publisher stopped after a send error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
}

func TestSenderOverLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}

	want := Packet{Sequence: 1, Timestamp: 99, Window: 2, Level: 0.75}
	if err := sender.Send(AppendPacket(nil, want)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 64)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	got, err := DecodePacket(buf[:n])
	if err != nil || got != want {
		t.Errorf("received %+v (err %v), want %+v", got, err, want)
	}

	if err := sender.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send() after Close = %v, want ErrSenderClosed", err)
	}
}

func TestNewSenderBadAddress(t *testing.T) {
	if _, err := NewSender("not-an-address"); err == nil {
		t.Error("expected resolve error")
	}
}

func BenchmarkPublish(b *testing.B) {
	p, _ := NewPublisher(time.Second, &discardSender{}, fakeSource{level: 0.1})
	b.ReportAllocs()

	for b.Loop() {
		p.publish()
	}
}

type discardSender struct{}

func (discardSender) Send([]byte) error { return nil }
