package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"questsync.dev/internal/quest"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Quest     quest.Rules `yaml:"quest"`
	Transport Transport   `yaml:"transport"`
	Journal   Journal     `yaml:"journal"`
}

type Transport struct {
	// Per-connection outbound queue. A full queue drops the new frame rather
	// than blocking the session handler.
	MaxQueue            int    `yaml:"max_queue"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	MaxMessageBytes     int64  `yaml:"max_message_bytes"`
	PlayerQueryParam    string `yaml:"player_query_param"`
	PlayerHeader        string `yaml:"player_header"`
}

type Journal struct {
	Enabled bool `yaml:"enabled"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Quest:           quest.DefaultRules(),
		Transport: Transport{
			MaxQueue:            16,
			ReadTimeoutSeconds:  60,
			WriteTimeoutSeconds: 5,
			MaxMessageBytes:     4096,
			PlayerQueryParam:    "player_id",
			PlayerHeader:        "X-Player-Id",
		},
		Journal: Journal{Enabled: true},
	}
}

// Load reads a tuning file over Defaults(). An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("quest.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("quest.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	d := Defaults()
	t.Quest = t.Quest.Normalize()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.Transport.MaxQueue <= 0 {
		t.Transport.MaxQueue = d.Transport.MaxQueue
	}
	if t.Transport.MaxQueue > 256 {
		t.Transport.MaxQueue = 256
	}
	if t.Transport.ReadTimeoutSeconds <= 0 {
		t.Transport.ReadTimeoutSeconds = d.Transport.ReadTimeoutSeconds
	}
	if t.Transport.WriteTimeoutSeconds <= 0 {
		t.Transport.WriteTimeoutSeconds = d.Transport.WriteTimeoutSeconds
	}
	if t.Transport.MaxMessageBytes <= 0 {
		t.Transport.MaxMessageBytes = d.Transport.MaxMessageBytes
	}
	t.Transport.PlayerQueryParam = strings.TrimSpace(t.Transport.PlayerQueryParam)
	t.Transport.PlayerHeader = strings.TrimSpace(t.Transport.PlayerHeader)
	if t.Transport.PlayerQueryParam == "" && t.Transport.PlayerHeader == "" {
		t.Transport.PlayerQueryParam = d.Transport.PlayerQueryParam
		t.Transport.PlayerHeader = d.Transport.PlayerHeader
	}
}

func (t Tuning) Validate() error {
	if t.Quest.RequiredVines > 100 || t.Quest.RequiredBerries > 100 || t.Quest.RequiredKimkim > 100 {
		return fmt.Errorf("quest thresholds must be <= 100")
	}
	if t.Transport.MaxMessageBytes < 64 {
		return fmt.Errorf("transport.max_message_bytes too small: %d", t.Transport.MaxMessageBytes)
	}
	return nil
}
