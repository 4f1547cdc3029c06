package config

const (
	defaultBinary        = "beet"
	defaultImportDir     = "/downloads"
	defaultLibraryDir    = "/music"
	defaultStateDir      = "~/.local/share/beetbot"
	defaultLogDir        = "~/.local/share/beetbot/logs"
	defaultImportTimeout = 300
	defaultConfigTimeout = 10
	defaultCapabilityTTL = 300
	defaultDiffStyle     = "word"
	defaultLogFormat     = ""
	defaultLogLevel      = "info"
	defaultLanguage      = "en"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Beets: Beets{
			Binary:        defaultBinary,
			ImportDir:     defaultImportDir,
			LibraryDir:    defaultLibraryDir,
			ImportTimeout: defaultImportTimeout,
			ConfigTimeout: defaultConfigTimeout,
			CapabilityTTL: defaultCapabilityTTL,
		},
		Importer: Importer{
			DiffStyle: defaultDiffStyle,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Language: defaultLanguage,
	}
}
