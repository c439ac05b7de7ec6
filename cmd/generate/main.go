package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/config"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	schemaName = "fleet-config.json"
	outputDir  = "./configs"
)

func main() {
	schemaPath := filepath.Join(outputDir, schemaName)
	sampleConfigPath := filepath.Join(outputDir, "fleet.yaml")

	if err := validatePaths(schemaPath, sampleConfigPath); err != nil {
		log.Fatal(err)
	}

	if err := validateSchemaName(schemaName); err != nil {
		log.Fatal(err)
	}

	cfg := sampleConfig()

	if err := generateSchemaFile(cfg, schemaPath); err != nil {
		log.Fatal(err)
	}

	if err := generateSampleConfig(cfg, sampleConfigPath, schemaName); err != nil {
		log.Fatal(err)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)
}

// sampleConfig is the default configuration with one paper agent.
func sampleConfig() config.Config {
	cfg := config.Default()
	cfg.Agents = []types.AgentConfig{
		{
			Name:          "btc-trend",
			Venue:         config.VenuePaper,
			Symbol:        "BTCUSDT",
			Strategy:      types.StrategyTrendFollowing,
			MaxStake:      100,
			Budget:        300,
			MaxLeverage:   1,
			MaxDuration:   24 * time.Hour,
			StopLossPct:   0.02,
			TakeProfitPct: 0.04,
			Interval:      "1m",
		},
	}

	return cfg
}

func generateSchemaFile(_ config.Config, schemaPath string) error {
	schemaJSON, err := config.Schema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	return nil
}

// generateSampleConfig writes cfg as YAML unless samplePath already exists.
func generateSampleConfig(cfg config.Config, samplePath string, schemaName string) error {
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}

	yamlBytes = append([]byte(getSchemaReference(schemaName)), yamlBytes...)

	if err := os.MkdirAll(filepath.Dir(samplePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	log.Printf("Sample config successfully generated at %s", samplePath)

	return nil
}

func validatePaths(schemaPath, sampleConfigPath string) error {
	if schemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}

	if sampleConfigPath == "" {
		return fmt.Errorf("sample config path cannot be empty")
	}

	return nil
}

func validateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}

	if !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("schema name %q must have .json extension", name)
	}

	return nil
}

func getSchemaReference(schemaName string) string {
	return "# yaml-language-server: $schema=" + schemaName + "\n"
}
