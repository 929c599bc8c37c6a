package common

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/weaveworks/promrus"

	commonconfig "github.com/ngageoint/scale/internal/common/config"
	"github.com/ngageoint/scale/internal/common/logging"
)

const baseConfigFileName = "config"

// RFC3339Millis
const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// BindCommandlineArguments binds all persistent command line flags to viper so that they can be read as config.
func BindCommandlineArguments() {
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

// LoadConfig reads config.yaml from defaultPath, merges each file in overrideConfigs on top of it, applies SCALE_
// environment variables and unmarshals the result into config.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		log.Errorf("Error reading base config path=%s name=%s: %v", defaultPath, baseConfigFileName, err)
		os.Exit(-1)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		err := v.MergeInConfig()
		if err != nil {
			log.Errorf("Error reading config from %s: %v", overrideConfig, err)
			os.Exit(-1)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.SetEnvPrefix("SCALE")
	v.AutomaticEnv()

	err := v.Unmarshal(config, commonconfig.CustomHooks...)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}

	return v
}

// ConfigureLogging sets up text logging on stdout and counts log messages by level in the log_messages_total metric.
// The level may be overridden with the LOG_LEVEL environment variable.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: logTimestampFormat})
	log.SetOutput(os.Stdout)
	if hook, err := promrus.NewPrometheusHook(); err != nil {
		log.Warnf("Log messages will not be counted: %v", err)
	} else {
		log.AddHook(hook)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := logging.Configure(logging.Config{Level: level}); err != nil {
			log.Warnf("Ignoring LOG_LEVEL: %v", err)
		}
	}
}
