package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
platform:
  a1: file-a1
  web_session: file-session
  timezone: Asia/Shanghai
accounts:
  - name: pku
    id: 5f0b3c2e000000000101f2a1
  - name: fudan
    id: 5c9d0f12000000001003a7b3
crawl:
  batch_size: 20
  max_pages: 5
  item_delay: 250ms
  page_delay: 1s
  flush_interval: 1m
rate_limit:
  requests_per_minute: 30
  retry_delay: 10s
output:
  base_directory: ./data
  export_workbook: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notecrawler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFileParsesSections(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(writeConfig(t, sampleYAML)))

	assert.Equal(t, "file-a1", cfg.Platform.A1)
	assert.Equal(t, "Asia/Shanghai", cfg.Platform.Timezone)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "fudan", cfg.Accounts[1].Name)
	assert.Equal(t, 20, cfg.Crawl.BatchSize)
	assert.Equal(t, 5, cfg.Crawl.MaxPages)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.ItemDelay)
	assert.Equal(t, time.Minute, cfg.Crawl.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.RetryDelay)
	assert.False(t, cfg.Output.ExportWorkbook)

	// Fields absent from the file keep their defaults
	assert.Equal(t, 3, cfg.RateLimit.MaxRetries)
	assert.Equal(t, "processed_ids.json", cfg.Output.CheckpointFile)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	err = cfg.LoadFromFile(writeConfig(t, "crawl: [unbalanced"))
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv(EnvPrefix+"BATCH_SIZE", "40")
	t.Setenv(EnvPrefix+"A1", "env-a1")

	cfg, err := Load(path, map[string]interface{}{
		"batch-size": 15,
	})
	require.NoError(t, err)

	// flags beat env, env beats file
	assert.Equal(t, 15, cfg.Crawl.BatchSize)
	assert.Equal(t, "env-a1", cfg.Platform.A1)
	assert.Equal(t, "file-session", cfg.Platform.WebSession)
	assert.Equal(t, 5, cfg.Crawl.MaxPages)
	require.NoError(t, cfg.ValidateIdentity())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "crawl:\n  batch_size: -1\n")
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestDurationParsing(t *testing.T) {
	var cfg CrawlConfig
	require.NoError(t, yaml.Unmarshal([]byte("item_delay: 1m30s\npage_delay: 600ms\n"), &cfg))
	assert.Equal(t, 90*time.Second, cfg.ItemDelay)
	assert.Equal(t, 600*time.Millisecond, cfg.PageDelay)
}

func TestYAMLRoundTripKeepsAccountsOrder(t *testing.T) {
	cfg := validConfig()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"pku", "thu"}, []string{decoded.Accounts[0].Name, decoded.Accounts[1].Name})
	assert.Equal(t, cfg.Crawl, decoded.Crawl)
}

func BenchmarkLoadFromFile(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := DefaultConfig()
		if err := cfg.LoadFromFile(path); err != nil {
			b.Fatal(err)
		}
	}
}
