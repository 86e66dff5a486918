// Package config は、アプリケーションの設定ファイル(config.json)の構造定義と、
// その読み込み、解決（テンプレートのマージなど）に関する機能を提供します。
package config

// Config は config.json ファイル全体を表すルート構造体です。
type Config struct {
	ConfigVersion        string            `json:"config_version"`
	Network              NetworkSettings   `json:"network"`
	SourceTemplates      map[string]Source `json:"source_templates"`
	Sources              []Source          `json:"sources"`
	CatalogPath          string            `json:"catalog_path,omitempty"`
	WebUIAddr            string            `json:"web_ui_addr,omitempty"`
	MaxConcurrentFetches int               `json:"max_concurrent_fetches"`
	EnableLogFile        bool              `json:"enable_log_file"`
	LogFilePath          string            `json:"log_file_path,omitempty"`
}

// NetworkSettings は、HTTPリクエストに関するグローバルな設定を保持します。
type NetworkSettings struct {
	UserAgent               string            `json:"user_agent"`
	DefaultHeaders          map[string]string `json:"default_headers"`
	PerDomainIntervalMillis map[string]int    `json:"per_domain_interval_ms"`
	RequestTimeoutMillis    int               `json:"request_timeout_ms"`
	RetryCount              int               `json:"retry_count"`
	RetryWaitMillis         int               `json:"retry_wait_ms"`
}

// Source は、1つのソース（エンジンとドメインの組）を定義します。
type Source struct {
	Enabled     *bool             `json:"enabled,omitempty"`
	Name        string            `json:"name,omitempty"`
	UseTemplate string            `json:"use_template,omitempty"`
	Engine      string            `json:"engine,omitempty"`
	Domain      string            `json:"domain,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
}

// IsEnabled は、ソースが有効かどうかを返します。未指定の場合は有効です。
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// EnabledSources は、有効なソースだけを定義順に返します。
func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// Defaults は、未指定の項目に既定値を設定します。
func (c *Config) Defaults() {
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = 4
	}
	if c.WebUIAddr == "" {
		c.WebUIAddr = "127.0.0.1:8080"
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "catalog.db"
	}
}
