// Package config defines the parameters recognized by the QPSK/IL2P
// core and decodes them from a small YAML document: the struct every
// channel-owning component is constructed from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Channel holds the parameters recognized by the core for one radio channel.
type Channel struct {
	Baud     int  `yaml:"baud"`     // Symbol rate.
	SlotTime int  `yaml:"slottime"` // CSMA slot, units of 10ms.
	Persist  int  `yaml:"persist"`  // p-persistence, 0-255.
	TXDelay  int  `yaml:"txdelay"`  // Preamble duration, 10ms units.
	TXTail   int  `yaml:"txtail"`   // Trailer duration, 10ms units.
	FullDup  bool `yaml:"fulldup"`  // Skip CSMA if true.
	DWait    int  `yaml:"dwait"`    // Post-busy debounce, 10ms units.

	// AX.25 layer knobs, consumed by the (external) link-layer state
	// machine. The core only carries them through.
	FRAck    int `yaml:"frack"`
	Retry    int `yaml:"retry"`
	PacLen   int `yaml:"paclen"`
	MaxFrame int `yaml:"maxframe"`
}

// DefaultChannel returns the conventional 1200 baud channel defaults.
func DefaultChannel() Channel {
	return Channel{
		Baud:     1200,
		SlotTime: 10,
		Persist:  63,
		TXDelay:  10,
		TXTail:   10,
		FullDup:  false,
		DWait:    0,
		FRAck:    4,
		Retry:    10,
		PacLen:   256,
		MaxFrame: 4,
	}
}

// Config is the top-level document: one or more named channels.
type Config struct {
	Channels map[string]Channel `yaml:"channels"`
}

// Load reads and decodes a YAML config document, filling in defaults for any
// field a channel entry omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML config document from memory.
func Parse(raw []byte) (*Config, error) {
	var doc struct {
		Channels map[string]Channel `yaml:"channels"`
	}

	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg := &Config{Channels: make(map[string]Channel, len(doc.Channels))}
	for name, ch := range doc.Channels {
		merged := DefaultChannel()
		if ch.Baud != 0 {
			merged.Baud = ch.Baud
		}
		if ch.SlotTime != 0 {
			merged.SlotTime = ch.SlotTime
		}
		if ch.Persist != 0 {
			merged.Persist = ch.Persist
		}
		if ch.TXDelay != 0 {
			merged.TXDelay = ch.TXDelay
		}
		if ch.TXTail != 0 {
			merged.TXTail = ch.TXTail
		}
		merged.FullDup = ch.FullDup
		merged.DWait = ch.DWait
		if ch.FRAck != 0 {
			merged.FRAck = ch.FRAck
		}
		if ch.Retry != 0 {
			merged.Retry = ch.Retry
		}
		if ch.PacLen != 0 {
			merged.PacLen = ch.PacLen
		}
		if ch.MaxFrame != 0 {
			merged.MaxFrame = ch.MaxFrame
		}
		cfg.Channels[name] = merged
	}

	if len(cfg.Channels) == 0 {
		cfg.Channels["0"] = DefaultChannel()
	}

	return cfg, nil
}
