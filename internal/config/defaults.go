package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultHost            = "ftp.kiubi-web.com"
	defaultPort            = 21
	defaultConnectTimeout  = "10s"
	defaultLocalRoot       = "."
	defaultRemoteRoot      = "/"
	defaultRoot            = "theme"
	defaultDebounce        = "300ms"
	defaultBatchTimeout    = "0"
	defaultCompareTime     = "atime"
	defaultShutdownTimeout = "30s"
	defaultBandwidthLimit  = "0"
	defaultMaxFileSize     = "0"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           defaultHost,
			Port:           defaultPort,
			ConnectTimeout: defaultConnectTimeout,
		},
		Sync: SyncConfig{
			LocalRoot:       defaultLocalRoot,
			RemoteRoot:      defaultRemoteRoot,
			Root:            defaultRoot,
			Debounce:        defaultDebounce,
			BatchTimeout:    defaultBatchTimeout,
			CompareTime:     defaultCompareTime,
			PreserveTimes:   true,
			ShutdownTimeout: defaultShutdownTimeout,
			BandwidthLimit:  defaultBandwidthLimit,
		},
		Pull: PullConfig{
			MaxFileSize: defaultMaxFileSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}
