package config

const (
	defaultDataDir            = "~/.local/share/stagehand"
	defaultLogDir             = "~/.local/share/stagehand/logs"
	defaultBundleDir          = "~/.local/share/stagehand/bundles"
	defaultRequestTimeout     = 30
	defaultServerStartTimeout = 30
	defaultClientStartTimeout = 300
	defaultClientEndTimeout   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Farm: Farm{
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			BundleDir: defaultBundleDir,
		},
		Adaptor: Adaptor{
			ServerStartTimeout: defaultServerStartTimeout,
			ClientStartTimeout: defaultClientStartTimeout,
			ClientEndTimeout:   defaultClientEndTimeout,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
