package util

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// LoadEnv reads `.env.<env>` (falling back to `.env`) from the working
// directory and exports every key that is not already set in the process
// environment. Real environment variables always win over file values.
func LoadEnv(env string) error {
	candidates := []string{".env." + env, ".env"}
	var lastErr error
	for _, name := range candidates {
		if _, err := os.Stat(name); err != nil {
			lastErr = err
			continue
		}
		v := viper.New()
		v.SetConfigFile(name)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return err
		}
		for _, key := range v.AllKeys() {
			envKey := strings.ToUpper(key)
			if _, ok := os.LookupEnv(envKey); ok {
				continue
			}
			_ = os.Setenv(envKey, v.GetString(key))
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no env file found")
	}
	return lastErr
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvOr returns def when key is unset or blank.
func GetEnvOr(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetDurationEnv accepts Go duration strings ("90s", "5m"); bare integers are
// taken as seconds.
func GetDurationEnv(key string, def time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	if n, err := cast.ToInt64E(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		return def
	}
	return d
}
