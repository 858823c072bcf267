// Package sparusrpc holds the control-plane messages and gRPC stubs for the
// luclerpc.Lucle service described in luclerpc.proto. Messages encode to
// the protobuf wire format with protowire.
package sparusrpc

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// EventType is the lifecycle action carried by a PluginEvent.
type EventType int32

const (
	EventInstall EventType = 0
	EventUpdate  EventType = 1
	EventDelete  EventType = 2
)

func (e EventType) String() string {
	switch e {
	case EventInstall:
		return "install"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	}
	return fmt.Sprintf("unknown(%d)", int32(e))
}

// Known reports whether e is one of the defined event types.
func (e EventType) Known() bool {
	return e >= EventInstall && e <= EventDelete
}

// Message is implemented by every type carried over the service.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Plugins is the request: the launcher identity and its plugin inventory.
type Plugins struct {
	RepositoryName string
	ListPlugin     map[string]string
}

// PluginEvent is one streamed lifecycle event.
type PluginEvent struct {
	Plugin    string
	EventType EventType
}

// Marshal encodes the message. Map entries are written in key order.
func (m *Plugins) Marshal() ([]byte, error) {
	var b []byte
	if m.RepositoryName != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.RepositoryName)
	}
	keys := make([]string, 0, len(m.ListPlugin))
	for k := range m.ListPlugin {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendString(entry, m.ListPlugin[k])

		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b, nil
}

// Unmarshal decodes the message, skipping unknown fields.
func (m *Plugins) Unmarshal(b []byte) error {
	*m = Plugins{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.RepositoryName = v
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			k, v, err := unmarshalMapEntry(entry)
			if err != nil {
				return err
			}
			if m.ListPlugin == nil {
				m.ListPlugin = make(map[string]string)
			}
			m.ListPlugin[k] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func unmarshalMapEntry(b []byte) (string, string, error) {
	var key, value string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		b = b[n:]
		if typ == protowire.BytesType && (num == 1 || num == 2) {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			if num == 1 {
				key = v
			} else {
				value = v
			}
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		b = b[n:]
	}
	return key, value, nil
}

// Marshal encodes the message.
func (m *PluginEvent) Marshal() ([]byte, error) {
	var b []byte
	if m.Plugin != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Plugin)
	}
	if m.EventType != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.EventType)))
	}
	return b, nil
}

// Unmarshal decodes the message, skipping unknown fields.
func (m *PluginEvent) Unmarshal(b []byte) error {
	*m = PluginEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Plugin = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.EventType = EventType(int32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
