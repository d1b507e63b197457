package lrthrome

import (
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is used when LRTHROME_CONFIG is unset, per the
// project's environment contract.
const DefaultConfigPath = "config.toml"

// ConfigEnvVar names the environment variable cmd/lrthromed reads to
// locate the configuration file.
const ConfigEnvVar = "LRTHROME_CONFIG"

// Config is the top-level shape of config.toml, following
// cmd/routedns/config.go's style of a plain struct with toml tags
// unmarshalled via BurntSushi/toml.
type Config struct {
	General GeneralConfig `toml:"general"`
	Log     LogConfig     `toml:"log"`
	Sources SourcesConfig `toml:"sources"`
}

// GeneralConfig holds the core runtime parameters the dispatcher needs
// directly: the listen address and the two tick intervals, plus the
// rate limit and banner the Established frame carries to every peer.
type GeneralConfig struct {
	BindAddress string `toml:"bind-address"`
	CacheTTL    int    `toml:"cache-ttl"` // seconds
	PeerTTL     int    `toml:"peer-ttl"`  // seconds
	RateLimit   int    `toml:"rate-limit"`
	Banner      string `toml:"banner"`
}

// LogConfig holds the [log] section, mirroring the teacher's
// [log]-style syslog forwarding group (cmd/routedns/main.go
// instantiateGroup "syslog" case). The syslog fields configure
// forwarding of the package-level Log; Level is decoded but not read
// by cmd/lrthromed, which takes the level from -l/--log-level and
// LRTHROME_LOG_LEVEL.
type LogConfig struct {
	Level         string `toml:"level"`
	SyslogNetwork string `toml:"syslog-network"`
	SyslogAddress string `toml:"syslog-address"`
	SyslogTag     string `toml:"syslog-tag"`
	SyslogPrio    string `toml:"syslog-priority"`
}

// SourcesConfig lists the ordered HTTP remotes plus the optional
// GeoLite databases this process tempers its cache from.
type SourcesConfig struct {
	CacheDir string        `toml:"cache-dir"`
	Remotes  []string      `toml:"remotes"`
	Geolite  GeoliteConfig `toml:"geolite"`
}

// GeoliteConfig describes the three MaxMind GeoLite2 dumps (or
// compiled .mmdb databases) a GeoliteFetcher may read, each with its
// own id allow-list, matching original_source/server/src/sources/
// geolite.rs's GeoLite struct.
type GeoliteConfig struct {
	ASN     GeoliteTableConfig `toml:"asn"`
	City    GeoliteTableConfig `toml:"city"`
	Country GeoliteTableConfig `toml:"country"`
}

// GeoliteTableConfig is one GeoLite2 table: a database path (CSV dump
// or .mmdb) and the ids to keep.
type GeoliteTableConfig struct {
	DatabasePath string   `toml:"database-path"`
	IDs          []uint32 `toml:"ids"`
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, Wrap(KindIO, err, "failed to load config "+path)
	}
	return &cfg, nil
}

// ConfigPath resolves the configuration file location from
// LRTHROME_CONFIG, defaulting to DefaultConfigPath when unset.
func ConfigPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	return DefaultConfigPath
}

// BuildRegistry constructs a SourceRegistry from the configured
// sources: one RemoteFetcher for all of Sources.Remotes (if any), and
// up to one GeoliteFetcher when any of the three GeoLite tables names
// a database path. Both follow the order the teacher's
// instantiateGroup builds loaders in: remotes first, then location
// databases.
func (c *Config) BuildRegistry() *SourceRegistry {
	reg := NewSourceRegistry()
	if len(c.Sources.Remotes) > 0 {
		reg.Register(NewRemoteFetcher("remotes", c.Sources.Remotes, c.Sources.CacheDir))
	}
	g := c.Sources.Geolite
	if g.ASN.DatabasePath != "" || g.City.DatabasePath != "" || g.Country.DatabasePath != "" {
		reg.Register(NewGeoliteFetcher(
			g.ASN.DatabasePath, g.City.DatabasePath, g.Country.DatabasePath,
			g.ASN.IDs, g.City.IDs, g.Country.IDs,
		))
	}
	return reg
}
