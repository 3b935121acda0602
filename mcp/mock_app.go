package mcp

import (
	"sync"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockDisguiseApp is a mock implementation of DisguiseApp for testing
type MockDisguiseApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Devices
	CheckAdbResult   bool
	GetDevicesResult []string
	GetDevicesError  error

	// Applications
	GetInstalledAppsResult    []InstalledApplication
	GetInstalledAppsError     error
	UninstallAppResult        bool
	UninstallAppError         error
	ScanTrustedPrefixesResult []TrustedPrefix
	ScanTrustedPrefixesError  error

	// Pipeline
	ProcessApkFullResult   PipelineResult
	ProcessApkFullError    error
	ResolveToolPathsResult map[string]string
	ListRunsResult         []RunRecord
	ListRunsError          error

	// Utility
	AppVersion string
}

// NewMockDisguiseApp creates a new MockDisguiseApp with sensible defaults
func NewMockDisguiseApp() *MockDisguiseApp {
	return &MockDisguiseApp{
		Calls:                  make([]MockCall, 0),
		AppVersion:             "1.0.0-test",
		CheckAdbResult:         true,
		GetDevicesResult:       []string{},
		GetInstalledAppsResult: []InstalledApplication{},
		ResolveToolPathsResult: map[string]string{},
	}
}

// recordCall records a method call
func (m *MockDisguiseApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls
func (m *MockDisguiseApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.Calls...)
}

// GetLastCall returns the last recorded call
func (m *MockDisguiseApp) GetLastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}

// WasMethodCalled checks if a method was called
func (m *MockDisguiseApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockDisguiseApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return &m.Calls[i]
		}
	}
	return nil
}

// === Devices ===

func (m *MockDisguiseApp) CheckAdb() bool {
	m.recordCall("CheckAdb")
	return m.CheckAdbResult
}

func (m *MockDisguiseApp) GetDevices() ([]string, error) {
	m.recordCall("GetDevices")
	return m.GetDevicesResult, m.GetDevicesError
}

// === Applications ===

func (m *MockDisguiseApp) GetInstalledApps(deviceID string) ([]InstalledApplication, error) {
	m.recordCall("GetInstalledApps", deviceID)
	return m.GetInstalledAppsResult, m.GetInstalledAppsError
}

func (m *MockDisguiseApp) UninstallApp(deviceID, packageName string) (bool, error) {
	m.recordCall("UninstallApp", deviceID, packageName)
	return m.UninstallAppResult, m.UninstallAppError
}

func (m *MockDisguiseApp) ScanTrustedPrefixes(deviceID string) ([]TrustedPrefix, error) {
	m.recordCall("ScanTrustedPrefixes", deviceID)
	return m.ScanTrustedPrefixesResult, m.ScanTrustedPrefixesError
}

// === Pipeline ===

func (m *MockDisguiseApp) ProcessApkFull(req DisguiseRequest) (PipelineResult, error) {
	m.recordCall("ProcessApkFull", req)
	return m.ProcessApkFullResult, m.ProcessApkFullError
}

func (m *MockDisguiseApp) ResolveToolPaths() map[string]string {
	m.recordCall("ResolveToolPaths")
	return m.ResolveToolPathsResult
}

func (m *MockDisguiseApp) ListRuns(limit int) ([]RunRecord, error) {
	m.recordCall("ListRuns", limit)
	return m.ListRunsResult, m.ListRunsError
}

// === Utility ===

func (m *MockDisguiseApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

// SampleApp returns an installed application for tests
func SampleApp(packageName, displayName string, system bool) InstalledApplication {
	return InstalledApplication{PackageName: packageName, DisplayName: displayName, IsSystem: system}
}
