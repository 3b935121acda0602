package adb

import (
	"context"
	"errors"
	"os"
	"testing"

	"ApkDisguise/pkg/runner"
	"ApkDisguise/pkg/runner/runnertest"
)

func TestInventoryAvailable(t *testing.T) {
	fake := runnertest.New().Stdout("adb version", "Android Debug Bridge version 1.0.41\n")
	inv := NewInventory(fake, "adb", nil)
	if !inv.Available(context.Background()) {
		t.Error("expected adb to be available")
	}

	missing := runnertest.New().LaunchFail("adb version", os.ErrNotExist)
	if NewInventory(missing, "adb", nil).Available(context.Background()) {
		t.Error("launch failure should report unavailable")
	}

	failing := runnertest.New().Fail("adb version", "boom")
	if NewInventory(failing, "adb", nil).Available(context.Background()) {
		t.Error("non-zero exit should report unavailable")
	}
}

func TestInventoryListDevices(t *testing.T) {
	fake := runnertest.New().Stdout("devices -l", "List of devices attached\nabc device usb:1\ndef offline\n")
	inv := NewInventory(fake, "/opt/adb", nil)

	devices, err := inv.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0] != "abc" {
		t.Errorf("devices = %v", devices)
	}
	if calls := fake.Calls(); calls[0].Name != "/opt/adb" {
		t.Errorf("expected configured adb path, got %q", calls[0].Name)
	}
}

func TestInventoryListDevicesLaunchError(t *testing.T) {
	fake := runnertest.New().LaunchFail("devices", os.ErrPermission)
	_, err := NewInventory(fake, "adb", nil).ListDevices(context.Background())
	var le *runner.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected wrapped LaunchError, got %v", err)
	}
}

func TestInventoryListInstalledApplications(t *testing.T) {
	fake := runnertest.New().
		Stdout("pm list packages -f",
			"package:/system/app/Settings/Settings.apk=com.android.settings\n"+
				"package:/data/app/x==/base.apk=com.example.zebraScanner\n"+
				"package:/data/app/y/base.apk=org.sample.legacy_tool\n"+
				"package:/data/app/z/base.apk=net.app.Alpha\n").
		Stdout("pm list packages -s", "package:com.android.settings\n")

	apps, err := NewInventory(fake, "adb", nil).ListInstalledApplications(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("ListInstalledApplications: %v", err)
	}
	if len(apps) != 4 {
		t.Fatalf("expected 4 apps, got %d", len(apps))
	}

	wantOrder := []string{"Alpha", "legacy tool", "settings", "zebra Scanner"}
	for i, want := range wantOrder {
		if apps[i].DisplayName != want {
			t.Errorf("apps[%d].DisplayName = %q, want %q", i, apps[i].DisplayName, want)
		}
		if apps[i].Version != "" {
			t.Errorf("version should be empty, got %q", apps[i].Version)
		}
	}
	for _, app := range apps {
		if app.IsSystem != (app.PackageName == "com.android.settings") {
			t.Errorf("%s IsSystem = %v", app.PackageName, app.IsSystem)
		}
	}
	if !fake.Called("-s dev1 shell pm list packages -f") || !fake.Called("-s dev1 shell pm list packages -s") {
		t.Error("both listings should target the same device")
	}
}

func TestInventoryListInstalledApplicationsSecondLaunchFails(t *testing.T) {
	fake := runnertest.New().
		Stdout("pm list packages -f", "package:/a.apk=com.a.b\n").
		LaunchFail("pm list packages -s", os.ErrNotExist)

	_, err := NewInventory(fake, "adb", nil).ListInstalledApplications(context.Background(), "dev1")
	if err == nil {
		t.Fatal("expected error when the system listing cannot launch")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected underlying error to be preserved, got %v", err)
	}
}

func TestInventoryUninstall(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   bool
	}{
		{"success", "Success\n", true},
		{"failure", "Failure [DELETE_FAILED_INTERNAL_ERROR]\n", false},
		{"empty", "", false},
		{"lowercase is not the marker", "success\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := runnertest.New().On("pm uninstall", func(runnertest.Call) (runner.Result, error) {
				// pm exits 0 even on failure
				return runner.Result{ExitSuccess: true, Stdout: []byte(tt.stdout)}, nil
			})
			got, err := NewInventory(fake, "adb", nil).Uninstall(context.Background(), "dev1", "com.example.app")
			if err != nil {
				t.Fatalf("Uninstall: %v", err)
			}
			if got != tt.want {
				t.Errorf("Uninstall() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInventoryUninstallRejectsBadInput(t *testing.T) {
	inv := NewInventory(runnertest.New(), "adb", nil)
	if _, err := inv.Uninstall(context.Background(), "dev;reboot", "com.a.b"); err == nil {
		t.Error("expected device ID validation error")
	}
	if _, err := inv.Uninstall(context.Background(), "dev1", "com.a.b; reboot"); err == nil {
		t.Error("expected package name validation error")
	}
}

func TestInventoryInstall(t *testing.T) {
	fake := runnertest.New().Stdout("install -r -t -g", "Performing Streamed Install\nSuccess\n")
	_, ok, err := NewInventory(fake, "adb", nil).Install(context.Background(), "dev1", "/tmp/a.apk")
	if err != nil || !ok {
		t.Fatalf("Install() = %v, %v", ok, err)
	}

	exitFail := runnertest.New().On("install", func(runnertest.Call) (runner.Result, error) {
		return runner.Result{ExitSuccess: false, Stdout: []byte("Success")}, nil
	})
	_, ok, _ = NewInventory(exitFail, "adb", nil).Install(context.Background(), "dev1", "/tmp/a.apk")
	if ok {
		t.Error("install requires a zero exit status as well as the marker")
	}
}

func TestCustomClassifier(t *testing.T) {
	fake := runnertest.New().Stdout("pm uninstall", "Deleted\n")
	inv := NewInventory(fake, "adb", nil)
	inv.Uninstalled = MarkerClassifier{Marker: "Deleted"}

	ok, err := inv.Uninstall(context.Background(), "dev1", "com.a.b")
	if err != nil || !ok {
		t.Errorf("custom classifier not used: %v, %v", ok, err)
	}
}
