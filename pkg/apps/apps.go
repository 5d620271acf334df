// Package apps exposes the device's launchable applications to the model.
// Applications are enumerated once at construction into an immutable
// indexed list; the model refers to them by numeric index.
package apps

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

// App is one launchable application.
type App struct {
	Index       int    `json:"index"`
	AppName     string `json:"appName"`
	PackageName string `json:"packageName"`

	exec string
}

type appList struct {
	InstalledApps []App `json:"installedApps"`
}

// Launcher triggers the actual launch side effect. Split out so tests and
// alternative platforms can substitute the mechanism.
type Launcher interface {
	Launch(app App) error
}

// ExecLauncher launches desktop applications by running their Exec command
// line through the shell.
type ExecLauncher struct{}

// Launch starts the application without waiting for it to exit.
func (ExecLauncher) Launch(app App) error {
	if app.exec == "" {
		return fmt.Errorf("no launch command for %s", app.PackageName)
	}
	cmd := exec.Command("/bin/sh", "-c", app.exec)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", app.PackageName, err)
	}
	// Detach; the app outlives the session.
	go cmd.Wait()
	return nil
}

// Provider holds the enumerated application list and its tools.
type Provider struct {
	apps     []App
	launcher Launcher
}

// DefaultDirs returns the standard XDG application directories.
func DefaultDirs() []string {
	dirs := []string{"/usr/share/applications", "/usr/local/share/applications"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	return dirs
}

// Discover scans the given directories for desktop entries and returns a
// provider over the result. Hidden and NoDisplay entries are skipped.
func Discover(launcher Launcher, dirs ...string) *Provider {
	var found []App
	seen := make(map[string]struct{})

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".desktop") {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), ".desktop")
			if _, dup := seen[id]; dup {
				continue
			}
			app, ok := parseDesktopEntry(filepath.Join(dir, entry.Name()), id)
			if !ok {
				continue
			}
			seen[id] = struct{}{}
			found = append(found, app)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].AppName < found[j].AppName })
	for i := range found {
		found[i].Index = i
	}

	log.Info("apps: discovered launchable applications", "count", len(found))
	return &Provider{apps: found, launcher: launcher}
}

// parseDesktopEntry reads the [Desktop Entry] section of a .desktop file.
func parseDesktopEntry(path, id string) (App, bool) {
	f, err := os.Open(path)
	if err != nil {
		return App{}, false
	}
	defer f.Close()

	app := App{PackageName: id}
	inEntry := false
	isApplication := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "[Desktop Entry]":
			inEntry = true
			continue
		case strings.HasPrefix(line, "["):
			inEntry = false
			continue
		}
		if !inEntry {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Type":
			isApplication = val == "Application"
		case "Name":
			if app.AppName == "" {
				app.AppName = val
			}
		case "Exec":
			app.exec = stripFieldCodes(val)
		case "Hidden", "NoDisplay":
			if val == "true" {
				return App{}, false
			}
		}
	}

	if !isApplication || app.AppName == "" {
		return App{}, false
	}
	return app, true
}

// stripFieldCodes removes desktop-entry %-placeholders from an Exec line.
func stripFieldCodes(execLine string) string {
	fields := strings.Fields(execLine)
	kept := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "%") && len(f) == 2 {
			continue
		}
		kept = append(kept, strings.ReplaceAll(f, "%%", "%"))
	}
	return strings.Join(kept, " ")
}

// Apps returns the immutable application list.
func (p *Provider) Apps() []App {
	out := make([]App, len(p.apps))
	copy(out, p.apps)
	return out
}

// Tools returns the list_apps and launch_app capabilities.
func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{p.listTool(), p.launchTool()}
}

func (p *Provider) listTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "list_apps",
			Description: "Returns a list of the apps installed on the user's device",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{}),
		},
		Handler: func(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
			status.Set(fmt.Sprintf("%d apps currently installed", len(p.apps)))

			result, err := value.FromGo(appList{InstalledApps: p.apps})
			if err != nil {
				respond(tools.Errorf("failed to encode app list: %v", err))
				return
			}
			respond(result)
		},
	}
}

func (p *Provider) launchTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "launch_app",
			Description: "Launches an app on the device using its numeric index",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
				"index": {
					Type:        "number",
					Description: "The index of the app to launch",
				},
			}, "index"),
		},
		Handler: func(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
			raw, ok := args.Get("index")
			if !ok {
				respond(tools.Errorf("`index` must be present and of type `number`"))
				return
			}
			n, ok := raw.(value.Number)
			if !ok {
				respond(tools.Errorf("`index` must be present and of type `number`"))
				return
			}

			idx := int(n)
			if idx < 0 || idx >= len(p.apps) {
				respond(tools.Errorf("app with index %d not found", idx))
				return
			}

			app := p.apps[idx]
			status.Set(fmt.Sprintf("Launching %s", app.AppName))

			if err := p.launcher.Launch(app); err != nil {
				respond(tools.Errorf("failed to launch app: %v", err))
				return
			}
			respond(tools.Success())
		},
	}
}
