package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmined/photosync/internal/client/config"
	"github.com/openmined/photosync/internal/utils"
)

const envConfigPath = "PHOTOSHARE_CONFIG_PATH"

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) PHOTOSHARE_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		return envPath
	}

	candidates := []string{
		filepath.Join(home, ".photosync", "config.json"),
		filepath.Join(home, ".config", "photosync", "config.json"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}
