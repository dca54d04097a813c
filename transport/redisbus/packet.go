// Package redisbus carries game channels over redis pub/sub. The host listens on
// "<prefix>:host"; every participant listens on "<prefix>:client:<participant id>".
package redisbus

import (
	"encoding/json"
	"errors"
	"fmt"
)

type packetType string

const (
	packetOpen  packetType = "open"
	packetData  packetType = "data"
	packetClose packetType = "close"
)

var (
	ErrBadPacket = errors.New("bad packet")
	ErrBusClosed = errors.New("bus is closed")
)

type packet struct {
	Participant string     `json:"participant"`
	Type        packetType `json:"type"`
	Frame       []byte     `json:"frame,omitempty"`
}

func (that packet) marshal() (string, error) {
	data, err := json.Marshal(that)
	if err != nil {
		return "", fmt.Errorf("failed to marshal packet: %w", err)
	}

	return string(data), nil
}

func unmarshalPacket(payload string) (packet, error) {
	var p packet

	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return packet{}, fmt.Errorf("%w: %w", ErrBadPacket, err)
	}

	if p.Participant == "" {
		return packet{}, fmt.Errorf("%w: no participant", ErrBadPacket)
	}

	switch p.Type {
	case packetOpen, packetData, packetClose:
	default:
		return packet{}, fmt.Errorf("%w: unknown type %q", ErrBadPacket, string(p.Type))
	}

	return p, nil
}

func hostChannel(prefix string) string {
	return prefix + ":host"
}

func clientChannel(prefix, participant string) string {
	return prefix + ":client:" + participant
}
