package constants

const (
	EnvLogLevel = "TAILWRITER_LOG_LEVEL"
	// EnvPrefix is the prefix viper uses to map environment variables onto flags
	EnvPrefix = "TAILWRITER"
	// EnvConfigDump is an undocumented variable that is used to test config precedence
	EnvConfigDump = "TAILWRITER_CONFIG_DUMP"
)
