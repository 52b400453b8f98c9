package config

import (
	"path/filepath"
	"runtime"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	ConfigPath  string
	TextfileDir string
}

// TextfileName is the metrics file written into the textfile collector directory
const TextfileName = "snow_inventory.prom"

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			ConfigPath:  `C:\ProgramData\snow-inventory\config.yaml`,
			TextfileDir: `C:\Program Files\windows_exporter\textfile_inputs`, // windows_exporter
		}
	case "freebsd":
		return PlatformDefaults{
			ConfigPath:  "/usr/local/etc/snow-inventory/config.yaml",
			TextfileDir: "/var/tmp/node_exporter", // node_exporter port default
		}
	default:
		return PlatformDefaults{
			ConfigPath:  "/etc/snow-inventory/config.yaml",
			TextfileDir: "/var/lib/node_exporter/textfile_collector",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// UpdateConfigDefaults updates viper defaults with platform-specific values
func UpdateConfigDefaults(v interface{}) {
	type viper interface {
		SetDefault(key string, value interface{})
	}

	if viperInstance, ok := v.(viper); ok {
		defaults := GetPlatformDefaults()

		viperInstance.SetDefault("metrics.textfile", filepath.Join(defaults.TextfileDir, TextfileName))
		viperInstance.SetDefault("logging.file", "")
	}
}
