package store

import (
	"encoding/json"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/viper"

	"github.com/grovekv/grove/lib/logging"
)

// --------------------------------------------------------------------------
// Environment Configuration
// --------------------------------------------------------------------------

// InitEnvConfig initializes configuration from environment variables.
// Variables are read with the GROVE_ prefix; .env and .env.local files
// are loaded first when present.
func InitEnvConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("grove")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	viper.SetDefault("log-level", "info")

	logging.Init(viper.GetString("log-level"))
}

// OptionsFromEnv reads store options from viper. Recognized variables:
//
//	GROVE_LOG_LEVEL         log level (debug, info, warn, error)
//	GROVE_AUTO_ENSURE       default stored value substituted for absent
//	                        keys, as a raw JSON document
//	GROVE_PROVIDER_OPTIONS  backend-specific options, as a JSON object
//
// A malformed provider options document is logged and skipped.
func OptionsFromEnv() []Option {
	var opts []Option
	if raw := viper.GetString("auto-ensure"); raw != "" {
		opts = append(opts, WithAutoEnsure(json.RawMessage(raw)))
	}
	if raw := viper.GetString("provider-options"); raw != "" {
		var po map[string]any
		if err := json.Unmarshal([]byte(raw), &po); err != nil {
			logger.GetLogger("store").Warningf("ignoring malformed provider options: %v", err)
		} else if len(po) > 0 {
			opts = append(opts, WithProviderOptions(po))
		}
	}
	return opts
}
