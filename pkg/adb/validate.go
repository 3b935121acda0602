package adb

import (
	"fmt"
	"regexp"
	"strings"
)

// deviceIDPattern accepts USB serials ("emulator-5554"), ip:port and mDNS names
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

var packageNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// ValidateDeviceID rejects identifiers that are unsafe to pass to adb
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceID) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// ValidatePackageName rejects names that are not dot-delimited identifiers
func ValidatePackageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}
