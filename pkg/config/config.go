package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"mdstream.com/pkg/logger"
)

// Defaulter is implemented by config structs that seed viper before the file
// is read, so keys absent from the file still resolve.
type Defaulter interface {
	SetDefaults(v *viper.Viper)
}

// Load reads config/<service>.yaml (or ./<service>.yaml) into out.
// Env vars override file keys: for service "mdstream", MDSTREAM_SESSION_URL
// overrides session.url. A missing file is not an error when out supplies
// defaults.
func Load(service string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d, hasDefaults := out.(Defaulter)
	if hasDefaults {
		d.SetDefaults(v)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || !hasDefaults {
			return nil, err
		}
		logger.Log.Info("config file not found, using defaults", zap.String("service", service))
	} else {
		logger.Log.Info("config loaded", zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadAndWatch is Load plus hot reload of out when the file changes.
// onChange, if set, runs after each successful reload.
func LoadAndWatch(service string, out interface{}, onChange func()) (*viper.Viper, error) {
	v, err := Load(service, out)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return v, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Log.Info("config file changed", zap.String("service", service), zap.String("file", e.Name))
		if err := v.Unmarshal(out); err != nil {
			logger.Log.Error("reload config", zap.String("service", service), zap.Error(err))
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
	return v, nil
}
