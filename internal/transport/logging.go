// SPDX-License-Identifier: MIT
package transport

import (
	applog "spotmeter/internal/log"
)

// LoggingTransport implements the Transport interface by logging data.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data at debug level.
func (lt *LoggingTransport) Send(data any) error {
	if ev, ok := data.(LevelEvent); ok {
		applog.Debugf("Transport: level #%d = %.6f", ev.Sequence, ev.Level)
		return nil
	}
	applog.Debugf("Transport: received (%T): %+v", data, data)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("Transport: LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
