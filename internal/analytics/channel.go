// Package analytics defines the channel model, snapshot types and the
// snapshot differ used by the realtime distribution hub.
package analytics

import (
	"errors"
	"fmt"
)

// Channel is a named topic a connection can subscribe to.
type Channel string

const (
	ChannelMetrics Channel = "metrics"
	ChannelCharts  Channel = "charts"
	ChannelAlerts  Channel = "alerts"
)

// ErrUnknownChannel is returned when a client names a channel outside the
// closed enumeration.
var ErrUnknownChannel = errors.New("unknown channel")

// Channels returns the closed set of valid channels.
func Channels() []Channel {
	return []Channel{ChannelMetrics, ChannelCharts, ChannelAlerts}
}

// ParseChannel validates a client-supplied channel name.
func ParseChannel(name string) (Channel, error) {
	switch Channel(name) {
	case ChannelMetrics, ChannelCharts, ChannelAlerts:
		return Channel(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
}

// MessageType maps a channel to the wire message type carrying its updates.
func (c Channel) MessageType() string {
	switch c {
	case ChannelCharts:
		return "chart_data"
	case ChannelAlerts:
		return "alert"
	default:
		return "metric_update"
	}
}

func (c Channel) String() string {
	return string(c)
}
