// Package config handles environment-based credential/device configuration
// and the optional YAML tuning file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AccountEnv holds the account-server (console) identity and login
// credentials, all environment-driven.
type AccountEnv struct {
	DeviceID      uint32
	SerialNumber  string
	SystemVersion uint32 // parsed from hex
	RegionID      int
	Country       string
	Language      string
	Username      string
	Password      string
}

// HandheldEnv holds the handheld-flow identity. The handheld account server
// never returns a principal id or password; both arrive out-of-band via
// environment.
type HandheldEnv struct {
	SerialNumber string
	MACAddress   string
	DeviceCert   []byte // parsed from hex
	Username     uint64
	UsernameHMAC string
	PID          uint64
	Password     string
	Region       int
	Language     int
}

// LoadAccountEnv reads and validates the account-flow environment.
// Returns an error naming every missing or malformed variable at once.
func LoadAccountEnv() (*AccountEnv, error) {
	cfg := &AccountEnv{}
	var errs []string

	cfg.DeviceID = uint32(envUint("DEVICE_ID", 10, &errs))
	cfg.SerialNumber = envRequired("SERIAL_NUMBER", &errs)
	cfg.SystemVersion = uint32(envUint("SYSTEM_VERSION", 16, &errs))
	cfg.RegionID = int(envUint("REGION_ID", 10, &errs))
	cfg.Country = envRequired("COUNTRY", &errs)
	cfg.Language = envRequired("LANGUAGE", &errs)
	cfg.Username = envRequired("NEX_USERNAME", &errs)
	cfg.Password = envRequired("NEX_PASSWORD", &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

// LoadHandheldEnv reads and validates the handheld-flow environment.
func LoadHandheldEnv() (*HandheldEnv, error) {
	cfg := &HandheldEnv{}
	var errs []string

	cfg.SerialNumber = envRequired("3DS_SERIAL_NUMBER", &errs)
	cfg.MACAddress = envRequired("3DS_MAC_ADDRESS", &errs)
	cfg.DeviceCert = envHexBytes("3DS_FCD_CERT", &errs)
	cfg.Username = envUint("3DS_USERNAME", 10, &errs)
	cfg.UsernameHMAC = envRequired("3DS_USERNAME_HMAC", &errs)
	cfg.PID = envUint("3DS_PID", 10, &errs)
	cfg.Password = envRequired("3DS_PASSWORD", &errs)
	cfg.Region = int(envUint("3DS_REGION", 10, &errs))
	cfg.Language = int(envUint("3DS_LANG", 10, &errs))

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

// --- helpers ---

func envRequired(key string, errs *[]string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*errs = append(*errs, fmt.Sprintf("%s must be set", key))
		return ""
	}
	return v
}

func envUint(key string, base int, errs *[]string) uint64 {
	v := envRequired(key, errs)
	if v == "" {
		return 0
	}
	v = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	n, err := strconv.ParseUint(v, base, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid base-%d integer %q", key, base, v))
		return 0
	}
	return n
}

func envHexBytes(key string, errs *[]string) []byte {
	v := envRequired(key, errs)
	if v == "" {
		return nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid hex %q", key, v))
		return nil
	}
	return b
}
