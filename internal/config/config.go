// Package config holds the externally managed channel configuration and
// subscription map. The dispatch path only ever sees immutable snapshots;
// edits happen out of process and land here through file reloads.
package config

import (
	"bytes"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// MessageTemplate describes how to build one channel message for one
// trigger type. Subject is optional; channels without a subject line
// leave it empty.
type MessageTemplate struct {
	Subject       string `yaml:"subject,omitempty"`
	Body          string `yaml:"body"`
	RecipientPath string `yaml:"recipientPath"`
}

// ChannelConfig is the per-channel configuration. SenderIdentity is
// opaque here; decryption happens in the configuration-management flow
// before the file is written.
type ChannelConfig struct {
	Enabled        bool                       `yaml:"enabled"`
	SenderIdentity string                     `yaml:"senderIdentity"`
	RatePerSecond  float64                    `yaml:"ratePerSecond,omitempty"`
	Templates      map[string]MessageTemplate `yaml:"templates"`
}

// Subscription marks a channel's interest in one (resourceType, trigger)
// pair.
type Subscription struct {
	ResourceType string `yaml:"resourceType"`
	TriggerType  string `yaml:"triggerType"`
}

// Snapshot is one immutable view of the full configuration. Callers must
// never mutate a snapshot; reloads swap in a fresh value instead.
type Snapshot struct {
	Channels      map[string]ChannelConfig  `yaml:"channels"`
	Subscriptions map[string][]Subscription `yaml:"subscriptions"`
}

// Subscribed reports whether the named channel is interested in the given
// resource type and trigger.
func (s *Snapshot) Subscribed(channel, resourceType, triggerType string) bool {
	for _, sub := range s.Subscriptions[channel] {
		if sub.ResourceType == resourceType && sub.TriggerType == triggerType {
			return true
		}
	}
	return false
}

// Template returns the channel's template for a trigger type, if any.
func (s *Snapshot) Template(channel, triggerType string) (MessageTemplate, bool) {
	cfg, ok := s.Channels[channel]
	if !ok {
		return MessageTemplate{}, false
	}
	tmpl, ok := cfg.Templates[triggerType]
	return tmpl, ok
}

// Load reads and validates a configuration file.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a configuration document. Unknown fields are rejected so
// a typo in the file surfaces at load time instead of silently disabling
// a channel.
func Parse(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode channel config: %w", err)
	}
	if err := validate(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func validate(snap *Snapshot) error {
	for name, cfg := range snap.Channels {
		for trigger, tmpl := range cfg.Templates {
			if tmpl.Body == "" {
				return fmt.Errorf("channel %s template %s: body is required", name, trigger)
			}
			if tmpl.RecipientPath == "" {
				return fmt.Errorf("channel %s template %s: recipientPath is required", name, trigger)
			}
		}
	}
	for name := range snap.Subscriptions {
		if _, ok := snap.Channels[name]; !ok {
			return fmt.Errorf("subscriptions reference unknown channel %s", name)
		}
	}
	return nil
}
