package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/utils"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseAuditConfig_WireShapes(t *testing.T) {
	body := `{
		"start_url": "https://shop.example.com/",
		"allowed_domain": "shop.example.com",
		"allowed_domains": ["cdn.example.com"],
		"product_name_selectors": ["h2.title::text"],
		"price_selectors": ".cost::text, .price::text",
		"sku_selectors": null,
		"custom_fields": {
			"availability": null,
			"brand": ".brand::text, [itemprop='brand']::text",
			"color": [".color::text"]
		},
		"crawl_limit": 25,
		"report_formats": ["CSV", "text"]
	}`
	cfg, err := ParseAuditConfig([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/", cfg.StartURL)
	assert.Equal(t, []string{"cdn.example.com", "shop.example.com"}, cfg.AllowedDomains)
	assert.Equal(t, []string{"h2.title::text"}, cfg.FieldCascades[FieldName])
	assert.Equal(t, []string{".cost::text", ".price::text"}, cfg.FieldCascades[FieldPrice])
	_, hasSKU := cfg.FieldCascades[FieldSKU]
	assert.False(t, hasSKU, "null cascade means default")
	assert.Nil(t, cfg.CustomFields["availability"])
	assert.Equal(t, FieldSelectors{".brand::text", "[itemprop='brand']::text"}, cfg.CustomFields["brand"])
	assert.Equal(t, FieldSelectors{".color::text"}, cfg.CustomFields["color"])
	assert.Equal(t, 25, cfg.CrawlLimit)
	assert.Nil(t, cfg.ProductURLPatterns)

	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "text"}, cfg.ReportFormats)
	assert.Equal(t, DefaultFieldCascades[FieldSKU], cfg.FieldCascades[FieldSKU])
}

func TestParseAuditConfig_Malformed(t *testing.T) {
	_, err := ParseAuditConfig([]byte(`{"start_url": 12}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrParsing)

	_, err = ParseAuditConfig([]byte(`{"start_url": "https://a.com", "custom_fields": {"x": 5}}`))
	assert.ErrorIs(t, err, utils.ErrParsing)
}

func TestAuditConfig_JSONRoundTripKeepsEffectiveConfig(t *testing.T) {
	cfg := AuditConfig{StartURL: "https://a.com/", AllowedDomains: []string{"a.com"}, ProductURLPatterns: []string{}}
	_, err := cfg.Validate()
	require.NoError(t, err)

	data, err := cfg.MarshalJSON()
	require.NoError(t, err)
	back, err := ParseAuditConfig(data)
	require.NoError(t, err)
	_, err = back.Validate()
	require.NoError(t, err)

	assert.Equal(t, cfg.ProductURLPatterns, back.ProductURLPatterns)
	assert.Equal(t, cfg.FieldCascades, back.FieldCascades)
	assert.Equal(t, cfg.ReportFormats, back.ReportFormats)
}

func TestLoadAuditConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.yaml")
	content := `
start_url: https://shop.example.com/
allowed_domains: [shop.example.com]
product_url_patterns: ['/p/\d+']
custom_fields:
  availability:
crawl_limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadAuditConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{`/p/\d+`}, cfg.ProductURLPatterns)
	assert.Equal(t, 5, cfg.CrawlLimit)
	assert.Contains(t, cfg.CustomFields, "availability")

	_, err = LoadAuditConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestLoadAppConfig(t *testing.T) {
	t.Run("missing file yields empty config", func(t *testing.T) {
		cfg, err := LoadAppConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.NotNil(t, cfg)
	})

	t.Run("yaml values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/data\nnum_workers: 6\nprogress_weights: {crawl: 40, extract: 20, analyze: 20, report: 20}\n"), 0644))
		cfg, err := LoadAppConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/data", cfg.DataDir)
		assert.Equal(t, 6, cfg.NumWorkers)
		assert.Equal(t, 40, cfg.ProgressWeights.Crawl)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("num_workers: [1"), 0644))
		_, err := LoadAppConfig(path)
		assert.ErrorIs(t, err, utils.ErrParsing)
	})
}

func TestAppConfig_ApplyEnv(t *testing.T) {
	cfg := AppConfig{DataDir: "./data", NumWorkers: 2}
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SITE_AUDITOR_DATA_DIR":            "/var/audits",
		"SITE_AUDITOR_NUM_WORKERS":         "8",
		"SITE_AUDITOR_REQUESTS_PER_SECOND": "2.5",
		"SITE_AUDITOR_PERSIST_VISITED":     "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/var/audits", cfg.DataDir)
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.True(t, cfg.PersistVisited)

	err = cfg.ApplyEnv(envMap(map[string]string{"SITE_AUDITOR_NUM_WORKERS": "many"}))
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
