// Package config loads raftlogd's process configuration. Neither segment
// nor wal parse configuration themselves; they take Options structs from
// whoever calls them, and this package is that caller for the daemon.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is raftlogd's process-level configuration, loaded from YAML.
// ACLModelFile and ACLPolicyFile are left blank by default rather than
// defaulted to a path on disk: an unconfigured daemon should fall back to
// auth.NewDefault's embedded policy, not fail to start because nobody has
// written ~/.raftlog/model.conf yet.
type Config struct {
	NodeName string `yaml:"node_name"`

	DataDir         string        `yaml:"data_dir"`
	SegmentCapacity int           `yaml:"segment_capacity"`
	SyncInterval    time.Duration `yaml:"sync_interval"`

	BindAddr       string   `yaml:"bind_addr"`
	StartJoinAddrs []string `yaml:"start_join_addrs"`

	ACLModelFile  string `yaml:"acl_model_file"`
	ACLPolicyFile string `yaml:"acl_policy_file"`
}

// withDefaults fills in anything the file left blank.
func (c Config) withDefaults() Config {
	if c.SegmentCapacity == 0 {
		c.SegmentCapacity = 4096
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = time.Second
	}
	if c.DataDir == "" {
		c.DataDir = configFile("data")
	}
	return c
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c.withDefaults(), nil
}

// configFile resolves a raftlogd config-relative path, honoring $CONFIG_DIR
// the way the rest of the config family does, and falling back to
// ~/.raftlog otherwise.
func configFile(filename string) string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, filename)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalln("config: failed to get user home directory:", err)
	}
	return filepath.Join(homeDir, ".raftlog", filename)
}
