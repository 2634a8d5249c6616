package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/embfile/minioutil"
	"github.com/kjk/embfile/u"
	"github.com/spf13/viper"
)

// initViper returns configuration with precedence (highest to lowest):
//  1. CLI flags (bound in app.init)
//  2. EMBFILE_* environment variables
//  3. embfile.toml
//  4. defaults
//
// If configPath is given, the file must exist.
func initViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("verbose", false)
	v.SetDefault("log.dir", "")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access", "")
	v.SetDefault("minio.secret", "")
	v.SetDefault("minio.bucket", "")
	v.SetDefault("minio.region", "")
	v.SetDefault("minio.insecure", false)

	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(u.ExpandTildeInPath(configPath))
	} else {
		v.SetConfigName("embfile")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "embfile"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		// no config file is fine, unless explicitly asked for
		if configPath != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// EMBFILE_MINIO_ENDPOINT, EMBFILE_LOG_DIR etc.
	v.SetEnvPrefix("EMBFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func minioConfig(v *viper.Viper) *minioutil.Config {
	return &minioutil.Config{
		Endpoint: v.GetString("minio.endpoint"),
		Access:   v.GetString("minio.access"),
		Secret:   v.GetString("minio.secret"),
		Bucket:   v.GetString("minio.bucket"),
		Region:   v.GetString("minio.region"),
		Insecure: v.GetBool("minio.insecure"),
	}
}
