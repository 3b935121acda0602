package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ==================== app_list ====================

func TestHandleAppList_Success(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.GetInstalledAppsResult = []InstalledApplication{
		SampleApp("com.example.myCoolApp", "my Cool App", false),
		SampleApp("com.android.settings", "settings", true),
	}
	server := NewMCPServer(mock)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "Found 2 all package(s)") {
		t.Errorf("unexpected header: %s", text)
	}
	if !strings.Contains(text, "my Cool App") || !strings.Contains(text, "com.android.settings (system)") {
		t.Errorf("unexpected body: %s", text)
	}

	lastCall := mock.GetLastCall()
	if lastCall.Args[0] != "device1" {
		t.Errorf("Expected device_id 'device1', got %v", lastCall.Args[0])
	}
}

func TestHandleAppList_FilterByType(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.GetInstalledAppsResult = []InstalledApplication{
		SampleApp("com.example.app", "app", false),
		SampleApp("com.android.phone", "phone", true),
	}
	server := NewMCPServer(mock)

	result, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"type":      "user",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if strings.Contains(text, "com.android.phone") {
		t.Error("system apps should be filtered out")
	}
	if !strings.Contains(text, "com.example.app") {
		t.Error("user app missing")
	}
}

func TestHandleAppList_InvalidType(t *testing.T) {
	server := NewMCPServer(NewMockDisguiseApp())
	_, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
		"type":      "vendor",
	}))
	if err == nil {
		t.Error("Expected error for unknown type")
	}
}

func TestHandleAppList_MissingDevice(t *testing.T) {
	server := NewMCPServer(NewMockDisguiseApp())
	_, err := server.handleAppList(context.Background(), makeToolRequest(map[string]interface{}{}))
	if err == nil || !strings.Contains(err.Error(), "device_id is required") {
		t.Errorf("Expected device_id error, got %v", err)
	}
}

// ==================== app_uninstall ====================

func TestHandleAppUninstall_Confirmed(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.UninstallAppResult = true
	server := NewMCPServer(mock)
	server.SetConfirmFunc(func(ctx context.Context, operation, details string) (bool, error) {
		if !strings.Contains(details, "com.example.app") {
			t.Errorf("details should name the package: %s", details)
		}
		return true, nil
	})

	result, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if getTextContent(result) != "Uninstalled com.example.app" {
		t.Errorf("unexpected text: %s", getTextContent(result))
	}
}

func TestHandleAppUninstall_Failed(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.UninstallAppResult = false
	server := NewMCPServer(mock)
	server.SetConfirmFunc(func(context.Context, string, string) (bool, error) { return true, nil })

	result, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "failed") {
		t.Errorf("unexpected text: %s", getTextContent(result))
	}
}

func TestHandleAppUninstall_Cancelled(t *testing.T) {
	mock := NewMockDisguiseApp()
	server := NewMCPServer(mock)
	server.SetConfirmFunc(func(context.Context, string, string) (bool, error) { return false, nil })

	result, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if getTextContent(result) != "Uninstall cancelled by user" {
		t.Errorf("unexpected text: %s", getTextContent(result))
	}
	if mock.WasMethodCalled("UninstallApp") {
		t.Error("UninstallApp must not run without confirmation")
	}
}

func TestHandleAppUninstall_ConfirmError(t *testing.T) {
	server := NewMCPServer(NewMockDisguiseApp())
	server.SetConfirmFunc(func(context.Context, string, string) (bool, error) {
		return false, errors.New("client does not support elicitation")
	})

	_, err := server.handleAppUninstall(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id":    "device1",
		"package_name": "com.example.app",
	}))
	if err == nil {
		t.Error("Expected confirmation error")
	}
}

func TestHandleAppUninstall_MissingArgs(t *testing.T) {
	server := NewMCPServer(NewMockDisguiseApp())

	tests := []map[string]interface{}{
		{"package_name": "com.example.app"},
		{"device_id": "device1"},
	}
	for _, args := range tests {
		if _, err := server.handleAppUninstall(context.Background(), makeToolRequest(args)); err == nil {
			t.Errorf("Expected error for args %v", args)
		}
	}
}

// ==================== prefix_scan ====================

func TestHandlePrefixScan(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.ScanTrustedPrefixesResult = []TrustedPrefix{
		{Prefix: "cn.chinapost", Count: 999, Source: "recommended"},
		{Prefix: "com.nlscan", Count: 100, Source: "recommended"},
		{Prefix: "com.tencent", Count: 4, Source: "device_scan"},
	}
	server := NewMCPServer(mock)

	result, err := server.handlePrefixScan(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	if !strings.Contains(text, "1. cn.chinapost (count 999, recommended)") {
		t.Errorf("unexpected text: %s", text)
	}
	if !strings.Contains(text, "3. com.tencent (count 4, device_scan)") {
		t.Errorf("unexpected text: %s", text)
	}
}

func TestHandlePrefixScan_Error(t *testing.T) {
	mock := NewMockDisguiseApp()
	mock.ScanTrustedPrefixesError = errors.New("device offline")
	server := NewMCPServer(mock)

	_, err := server.handlePrefixScan(context.Background(), makeToolRequest(map[string]interface{}{
		"device_id": "device1",
	}))
	if err == nil {
		t.Error("Expected error")
	}
}
