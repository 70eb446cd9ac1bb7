package config

// Config is the top-level YAML structure.
type Config struct {
	Version    string              `yaml:"version"`
	Log        LogConf             `yaml:"log"`
	Server     ServerConf          `yaml:"server"`
	Source     SourceConf          `yaml:"source"`
	Store      StoreConf           `yaml:"store"`
	Engine     EngineConf          `yaml:"engine"`
	Dropdown   DropdownConf        `yaml:"dropdown"`
	Categories map[string][]string `yaml:"categories"` // category label → extra source types
}

type LogConf struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type ServerConf struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins are extra websocket Origin host patterns, e.g.
	// "admin.shop.example" or "*.shop.example". The server's own host is
	// always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SourceConf describes the push channel.
type SourceConf struct {
	URL       string        `yaml:"url"` // e.g. https://shop.example/sse/connect
	ClientID  string        `yaml:"client_id"`
	Reconnect ReconnectConf `yaml:"reconnect"`
}

// ReconnectConf tunes the exponential backoff between dial attempts.
type ReconnectConf struct {
	InitialMs  int     `yaml:"initial_ms"`
	MaxMs      int     `yaml:"max_ms"`
	Multiplier float64 `yaml:"multiplier"`
	Jitter     float64 `yaml:"jitter"`
}

// StoreConf selects the durable backend.
type StoreConf struct {
	Driver string `yaml:"driver"` // sqlite, file or memory
	Path   string `yaml:"path"`   // sqlite file or file-backend directory
	Key    string `yaml:"key"`
}

// EngineConf holds ingestion queue settings.
type EngineConf struct {
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
}

// DropdownConf holds the dropdown animation timings.
type DropdownConf struct {
	OpenDelayMs int `yaml:"open_delay_ms"`
	CloseMs     int `yaml:"close_ms"`
}
