package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent qagent configuration stored as config.toml
// in the .qagent/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Generation  GenerationConfig  `toml:"generation"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Ingest      IngestConfig      `toml:"ingest"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server (e.g. qagent ingest, qagent search). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds knowledge base storage settings.
// Target is a URL or DSN for server backed providers, Path is the
// database file for the sqlite provider.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Path       string `toml:"path,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// GenerationConfig holds generative model settings used for test case and
// script generation.
type GenerationConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// RetrievalConfig holds read path settings.
type RetrievalConfig struct {
	TopK uint `toml:"top_k,omitempty"`
}

// IngestConfig holds settings for background directory ingestion.
type IngestConfig struct {
	WatchDir string `toml:"watch_dir,omitempty"`
	Workers  uint   `toml:"workers,omitempty"`
}

// EventStreamConfig holds ingestion event publishing settings.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":              stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target":       stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.path":       stringKey(func(c *Config) *string { return &c.VectorStore.Path }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"embedding.provider":      stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":        stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":         stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":    uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"generation.provider":     stringKey(func(c *Config) *string { return &c.Generation.Provider }),
	"generation.target":       stringKey(func(c *Config) *string { return &c.Generation.Target }),
	"generation.model":        stringKey(func(c *Config) *string { return &c.Generation.Model }),
	"retrieval.top_k":         uintKey("retrieval.top_k", func(c *Config) *uint { return &c.Retrieval.TopK }),
	"ingest.watch_dir":        stringKey(func(c *Config) *string { return &c.Ingest.WatchDir }),
	"ingest.workers":          uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	"eventstream.provider":    stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.topic":       stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
