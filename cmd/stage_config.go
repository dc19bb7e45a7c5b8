package cmd

import (
	"errors"

	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/config"
	"github.com/turbot/tailwriter/internal/constants"
)

// stageConfig loads the stage config named by --config, or builds one from --dir-template, and applies
// any overrides given as flags or TAILWRITER_ environment variables
func stageConfig() (*config.StageConfig, error) {
	var c *config.StageConfig
	if path := viper.GetString(constants.ArgConfig); path != "" {
		var err error
		c, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		dirTemplate := viper.GetString(constants.ArgDirTemplate)
		if dirTemplate == "" {
			return nil, errors.New("either --config or --dir-template must be given")
		}
		c = config.Default(dirTemplate)
	}

	override(&c.DirTemplate, constants.ArgDirTemplate)
	override(&c.TimeDriver, constants.ArgTimeDriver)
	override(&c.Format, constants.ArgFormat)
	override(&c.Compression, constants.ArgCompression)
	override(&c.UniquePrefix, constants.ArgUniquePrefix)
	if n := viper.GetInt64(constants.ArgMaxRecords); n > 0 {
		c.MaxRecords = n
	}
	if path := viper.GetString(constants.ArgErrorFile); path != "" {
		c.ErrorSink = &config.ErrorSinkConfig{Type: config.ErrorSinkFile, Path: path}
	}
	return c, nil
}

func override(field *string, key string) {
	if v := viper.GetString(key); v != "" {
		*field = v
	}
}
