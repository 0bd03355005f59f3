package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/pkg/models"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultHTTPAddr, cfg.HTTPAddr)
	s.Equal("info", cfg.LogLevel)
	s.Contains(cfg.DataDir, ".recall")
	s.Equal(DefaultDimension, cfg.Index.Dimension)
	s.Equal(index.TypeFlat, cfg.Index.Type)
	s.Equal(index.MetricCosine, cfg.Index.Metric)
	s.Equal(float64(30), cfg.Retriever.DecayDays)
	s.Equal(DefaultTokenBudget, cfg.Context.TokenBudget)
	s.Equal(models.CompressionNone, cfg.Context.Compression)
	s.NoError(cfg.Validate())
}

// TestIndexDir tests snapshot directory layout.
func (s *ConfigSuite) TestIndexDir() {
	cfg := Default()
	cfg.DataDir = s.tempDir

	s.Equal(filepath.Join(s.tempDir, "index"), cfg.IndexDir())
	s.NoError(cfg.EnsureDataDir())

	info, err := os.Stat(cfg.IndexDir())
	s.Require().NoError(err)
	s.True(info.IsDir())
}

// TestLoadMissingFile tests defaults when no config file is present.
func (s *ConfigSuite) TestLoadMissingFile() {
	cfg, err := Load(filepath.Join(s.tempDir, "nope.yaml"))
	s.NoError(err)
	s.Equal(Default().HTTPAddr, cfg.HTTPAddr)
}

// TestLoadOverridesDefaults tests YAML values layered over the defaults.
func (s *ConfigSuite) TestLoadOverridesDefaults() {
	path := filepath.Join(s.tempDir, "recall.yaml")
	body := `
data_dir: /tmp/recall-test
log_level: debug
index:
  dimension: 16
  index_type: hnsw
context:
  token_budget: 512
`
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("/tmp/recall-test", cfg.DataDir)
	s.Equal("debug", cfg.LogLevel)
	s.Equal(16, cfg.Index.Dimension)
	s.Equal(index.TypeHNSW, cfg.Index.Type)
	s.Equal(512, cfg.Context.TokenBudget)
	// untouched keys keep defaults
	s.Equal(DefaultHTTPAddr, cfg.HTTPAddr)
}

// TestLoadInvalidYAML tests parse errors surface.
func (s *ConfigSuite) TestLoadInvalidYAML() {
	path := filepath.Join(s.tempDir, "bad.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("index: ["), 0o644))

	_, err := Load(path)
	s.Error(err)
}

// TestLoadInvalidValues tests validation after parsing.
func (s *ConfigSuite) TestLoadInvalidValues() {
	path := filepath.Join(s.tempDir, "invalid.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("context:\n  token_budget: -5\n"), 0o644))

	_, err := Load(path)
	s.Error(err)
}

// TestValidateRejectsBadCompression tests the compression enum check.
func (s *ConfigSuite) TestValidateRejectsBadCompression() {
	cfg := Default()
	cfg.Context.Compression = "shrink"
	s.Error(cfg.Validate())
}
