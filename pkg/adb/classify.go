package adb

import (
	"strings"

	"ApkDisguise/pkg/runner"
)

// SuccessMarker is the literal the package manager prints on success
const SuccessMarker = "Success"

// Classifier decides whether a finished tool invocation succeeded
type Classifier interface {
	Succeeded(res runner.Result) bool
}

// MarkerClassifier looks for a literal marker in stdout
type MarkerClassifier struct {
	Marker      string
	RequireExit bool // also require a zero exit status
}

// Succeeded implements Classifier
func (c MarkerClassifier) Succeeded(res runner.Result) bool {
	if c.RequireExit && !res.ExitSuccess {
		return false
	}
	return strings.Contains(res.StdoutText(), c.Marker)
}

var (
	// UninstallClassifier matches `pm uninstall`, whose exit status is unreliable
	UninstallClassifier Classifier = MarkerClassifier{Marker: SuccessMarker}
	// InstallClassifier matches `adb install`
	InstallClassifier Classifier = MarkerClassifier{Marker: SuccessMarker, RequireExit: true}
)
