package app

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Tools-cx-app/gpu-governor/internal/features/hardware/domain"
)

// Config holds the complete service configuration. Policy tunables live
// in a separate hot-reloadable file (see internal/features/profile);
// everything here is fixed for the process lifetime.
type Config struct {
	// App configuration
	App AppConfig `mapstructure:"app"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Hardware configuration
	Hardware HardwareConfig `mapstructure:"hardware"`

	// Governor configuration
	Governor GovernorConfig `mapstructure:"governor"`
}

// AppConfig holds application configuration
type AppConfig struct {
	// Component is the name of the component
	Component string `mapstructure:"component"`

	// LogLevel is the startup log level; the policy file can change it later
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	// Listen is the status server address; loopback only by default, the
	// configuration UI is the sole intended client
	Listen string `mapstructure:"listen"`

	// ShutdownTimeout is the timeout for server shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HardwareConfig holds the device control file locations. Exact paths
// are a platform property and always come from configuration.
type HardwareConfig struct {
	// UtilizationSources is the ordered load-source fallback chain
	UtilizationSources []domain.UtilizationSource `mapstructure:"utilization_sources"`

	// FreqPaths are candidate current-frequency files, in order
	FreqPaths []string `mapstructure:"freq_paths"`

	// FreqSetPath receives the target frequency
	FreqSetPath string `mapstructure:"freq_set_path"`

	// VoltSetPath receives "freq volt" pairs; optional
	VoltSetPath string `mapstructure:"volt_set_path"`

	// ThermalZonePath is the temperature node; optional
	ThermalZonePath string `mapstructure:"thermal_zone_path"`

	// IOTimeout bounds every single control file read or write
	IOTimeout time.Duration `mapstructure:"io_timeout"`

	// ProbeBudget bounds the startup wait for control files to appear
	ProbeBudget time.Duration `mapstructure:"probe_budget"`
}

// GovernorConfig holds the control loop cadence and resources
type GovernorConfig struct {
	// OPPTablePath is the device frequency table resource
	OPPTablePath string `mapstructure:"opp_table_path"`

	// PolicyPath is the hot-reloadable policy file the UI writes
	PolicyPath string `mapstructure:"policy_path"`

	// TickInterval is the sampling/decision period
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// ConfigPollTicks is how many ticks pass between policy file polls
	ConfigPollTicks uint64 `mapstructure:"config_poll_ticks"`

	// WindowCapacity is the rolling sample window size in ticks
	WindowCapacity int `mapstructure:"window_capacity"`
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureViper(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is acceptable; defaults and env cover it.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// configureViper sets up configuration paths and types
func configureViper(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/data/adb/gpu_governor/")
	v.AddConfigPath("/etc/gpu-governor/")

	v.SetEnvPrefix("GPU_GOVERNOR")
	v.AutomaticEnv()
}

// setDefaults configures the default values. The default device paths
// cover the common Mali node layouts across driver generations; a
// platform overlay replaces them where the layout differs.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.component", "gpu-governor")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.listen", "127.0.0.1:9978")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("hardware.utilization_sources", []map[string]string{
		{"path": "/sys/kernel/debug/mali0/dvfs_utilization", "format": "busy-idle"},
		{"path": "/proc/gpufreq/gpufreq_var_dump", "format": "loading"},
		{"path": "/proc/mtk_mali/utilization", "format": "active"},
		{"path": "/sys/kernel/ged/hal/gpu_utilization", "format": "idle-field"},
		{"path": "/sys/module/ged/parameters/gpu_loading", "format": "plain"},
	})
	v.SetDefault("hardware.freq_paths", []string{
		"/sys/kernel/ged/hal/current_freqency",
		"/proc/gpufreqv2/gpufreq_status",
		"/proc/gpufreq/gpufreq_var_dump",
	})
	v.SetDefault("hardware.freq_set_path", "/proc/gpufreq/gpufreq_opp_freq")
	v.SetDefault("hardware.volt_set_path", "/proc/gpufreq/gpufreq_fixed_freq_volt")
	v.SetDefault("hardware.thermal_zone_path", "/sys/class/thermal/thermal_zone0/temp")
	v.SetDefault("hardware.io_timeout", 50*time.Millisecond)
	v.SetDefault("hardware.probe_budget", 30*time.Second)

	v.SetDefault("governor.opp_table_path", "/data/adb/gpu_governor/gpu_freq_table.toml")
	v.SetDefault("governor.policy_path", "/data/adb/gpu_governor/gpu_governor.toml")
	// 120Hz sampling cadence
	v.SetDefault("governor.tick_interval", 8*time.Millisecond)
	v.SetDefault("governor.config_poll_ticks", 125) // roughly once a second
	v.SetDefault("governor.window_capacity", 12)
}

// validateConfig validates the required configuration
func validateConfig(config *Config) error {
	if len(config.Hardware.UtilizationSources) == 0 {
		return fmt.Errorf("hardware.utilization_sources must not be empty")
	}
	for i, source := range config.Hardware.UtilizationSources {
		if source.Path == "" {
			return fmt.Errorf("hardware.utilization_sources[%d].path must not be empty", i)
		}
		switch source.Format {
		case domain.FormatPlain, domain.FormatIdle, domain.FormatIdleField,
			domain.FormatActive, domain.FormatLoading, domain.FormatBusyIdle:
		default:
			return fmt.Errorf("hardware.utilization_sources[%d] has unknown format %q", i, source.Format)
		}
	}
	if len(config.Hardware.FreqPaths) == 0 {
		return fmt.Errorf("hardware.freq_paths must not be empty")
	}
	if config.Hardware.FreqSetPath == "" {
		return fmt.Errorf("hardware.freq_set_path must not be empty")
	}
	if config.Hardware.IOTimeout <= 0 {
		return fmt.Errorf("hardware.io_timeout must be positive")
	}
	if config.Governor.OPPTablePath == "" {
		return fmt.Errorf("governor.opp_table_path must not be empty")
	}
	if config.Governor.PolicyPath == "" {
		return fmt.Errorf("governor.policy_path must not be empty")
	}
	if config.Governor.TickInterval <= 0 {
		return fmt.Errorf("governor.tick_interval must be positive")
	}
	if config.Governor.WindowCapacity < 1 {
		return fmt.Errorf("governor.window_capacity must be at least 1")
	}
	return nil
}
