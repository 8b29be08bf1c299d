package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "MAESTRO"

// LoadConfig reads the yaml file at path, if any, overlays MAESTRO_ prefixed environment variables and
// decodes the result into config. Values already set in v, e.g. defaults or bound flags, are kept unless
// overridden.
func LoadConfig(v *viper.Viper, config interface{}, path string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError, *os.PathError:
				return errors.Wrapf(err, "config file %s not found", path)
			default:
				return errors.Wrapf(err, "error reading config file %s", path)
			}
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(config, CustomHooks...); err != nil {
		return errors.WithStack(err)
	}
	return Validate(config)
}
