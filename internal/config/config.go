// Package config resolves where the client talks and where it keeps its
// credentials. Precedence: built-in defaults, then an optional yaml file,
// then PAYLINK_* environment variables.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidServer = errors.New("config: invalid server")

// Named servers. "test" points at the sandbox host.
var servers = map[string]Server{
	"live": {Host: "bitpay.com", Port: 443},
	"test": {Host: "test.bitpay.com", Port: 443},
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s Server) String() string {
	if s.Port == 443 {
		return s.Host
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ParseServer accepts a named server ("live", "test"), a bare host, a
// host:port pair, or either with an http(s):// scheme prefix. The port
// defaults to 443.
func ParseServer(raw string) (Server, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Server{}, ErrInvalidServer
	}
	if named, ok := servers[strings.ToLower(raw)]; ok {
		return named, nil
	}

	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" || strings.Contains(raw, "/") {
		return Server{}, ErrInvalidServer
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return Server{Host: raw, Port: 443}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 || host == "" {
		return Server{}, ErrInvalidServer
	}
	return Server{Host: host, Port: port}, nil
}

// Config is the resolved client configuration.
type Config struct {
	Server   Server
	DataDir  string
	Insecure bool
	LogLevel string
}

type fileConfig struct {
	Server   string `yaml:"server"`
	DataDir  string `yaml:"dataDir"`
	Insecure *bool  `yaml:"insecure"`
	LogLevel string `yaml:"logLevel"`
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Server:   servers["test"],
		DataDir:  home,
		LogLevel: "info",
	}
}

// LoadFromPath merges defaults, an optional yaml file, and environment
// overrides. A missing or unreadable file falls back to defaults rather
// than failing; a present but malformed file is an error.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.paylink/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, err
		}
		if err := merge(&cfg, parsed); err != nil {
			return Config{}, err
		}
		break
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) error {
	if src.Server != "" {
		server, err := ParseServer(src.Server)
		if err != nil {
			return err
		}
		dst.Server = server
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Insecure != nil {
		dst.Insecure = *src.Insecure
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv("PAYLINK_SERVER")); raw != "" {
		server, err := ParseServer(raw)
		if err != nil {
			return err
		}
		cfg.Server = server
	}
	if dir := strings.TrimSpace(os.Getenv("PAYLINK_DATA_DIR")); dir != "" {
		cfg.DataDir = dir
	}
	if raw := strings.TrimSpace(os.Getenv("PAYLINK_INSECURE")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			cfg.Insecure = v
		}
	}
	return nil
}
