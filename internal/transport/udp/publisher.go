// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"spotmeter/internal/level"
	applog "spotmeter/internal/log"
)

// DefaultInterval is used when a non-positive interval is given.
const DefaultInterval = time.Second

// PacketSize is the encoded length of a Packet in bytes.
const PacketSize = 4 + 8 + 8 + 8

// LevelSource is the read side of the level pipeline.
type LevelSource interface {
	LastLevel() float64
	Stats() level.Stats
}

// PacketSender transmits one encoded packet.
type PacketSender interface {
	Send(data []byte) error
}

/*
UDP Packet Structure (BigEndian)

+-------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                |
|-----------------|-----------|--------------|----------------------------|
| Sequence Number | uint32    | 4            | Monotonically increasing   |
| Timestamp       | int64     | 8            | Nanoseconds since epoch    |
| Window          | uint64    | 8            | Windows completed so far   |
| Level           | float64   | 8            | Last emitted window average|
+-------------------------------------------------------------------------+
*/

// Packet is one decoded publisher datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Window    uint64
	Level     float64
}

// AppendPacket appends the wire form of p to dst.
func AppendPacket(dst []byte, p Packet) []byte {
	dst = binary.BigEndian.AppendUint32(dst, p.Sequence)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp))
	dst = binary.BigEndian.AppendUint64(dst, p.Window)
	dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(p.Level))
	return dst
}

// DecodePacket parses a datagram produced by AppendPacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("invalid packet length %d, want %d", len(b), PacketSize)
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Window:    binary.BigEndian.Uint64(b[12:20]),
		Level:     math.Float64frombits(binary.BigEndian.Uint64(b[20:28])),
	}, nil
}

// Publisher periodically sends the latest window average over UDP.
// It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	sender   PacketSender
	source   LevelSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	packet      []byte // Reused for every datagram.
}

// NewPublisher creates a Publisher. If interval is not positive it defaults
// to DefaultInterval.
func NewPublisher(interval time.Duration, sender PacketSender, source LevelSource) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, errors.New("UDPPublisher: level source cannot be nil")
	}

	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		packet:   make([]byte, 0, PacketSize),
	}, nil
}

// Start begins publishing. Calling Start on a running publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})

	// Local copies so the goroutine never reads the fields Stop rewrites.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publishing every %s", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to exit and waits for it.
// It is safe to call Stop more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

// publish runs only on the publisher goroutine.
func (p *Publisher) publish() {
	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], Packet{
		Sequence:  p.sequenceNum,
		Timestamp: time.Now().UnixNano(),
		Window:    p.source.Stats().Windows,
		Level:     p.source.LastLevel(),
	})

	if err := p.sender.Send(p.packet); err != nil {
		applog.Warnf("UDPPublisher: packet %d: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
}

// Close implements io.Closer by stopping the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
