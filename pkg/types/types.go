package types

// InstalledApplication represents a package installed on a device
type InstalledApplication struct {
	PackageName string `json:"packageName"`
	DisplayName string `json:"displayName"` // Derived from the last namespace segment
	Version     string `json:"version"`     // Not retrieved, always empty
	IsSystem    bool   `json:"isSystem"`
}

// Prefix sources
const (
	SourceDeviceScan  = "device_scan"
	SourceRecommended = "recommended"
)

// TrustedPrefix is a candidate two-segment namespace prefix
type TrustedPrefix struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
	Source string `json:"source"` // "device_scan" or "recommended"
}

// Stage identifies the pipeline step that produced a result
type Stage string

const (
	StageDecompile Stage = "decompile"
	StagePatch     Stage = "patch"
	StageRebuild   Stage = "rebuild"
	StageZipalign  Stage = "zipalign"
	StageSign      Stage = "sign"
	StageCleanup   Stage = "cleanup"
	StageInstall   Stage = "install"
	StageComplete  Stage = "complete"
)

// PipelineResult is the terminal record of one pipeline run
type PipelineResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	OutputPath string `json:"outputPath,omitempty"` // Most advanced artifact that exists
	Step       Stage  `json:"step,omitempty"`
	NewPackage string `json:"newPackage,omitempty"`
}

// RunRecord is a journaled pipeline run
type RunRecord struct {
	ID         string `json:"id"`
	SourceAPK  string `json:"sourceApk"`
	Prefix     string `json:"prefix"`
	NewPackage string `json:"newPackage"`
	DeviceID   string `json:"deviceId,omitempty"`
	Install    bool   `json:"install"`
	Success    bool   `json:"success"`
	Step       Stage  `json:"step,omitempty"`
	Message    string `json:"message"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"` // Set when the run aborted with a hard error
	StartTime  int64  `json:"startTime"`       // Unix milliseconds
	DurationMs int64  `json:"durationMs"`
}
