// Package template renders starter mcwarden.toml files for common server
// distributions.
package template

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Flavor is the server distribution the config launches.
type Flavor string

const (
	FlavorVanilla Flavor = "vanilla"
	FlavorPaper   Flavor = "paper"
	FlavorSpigot  Flavor = "spigot"
	FlavorFabric  Flavor = "fabric"
	FlavorForge   Flavor = "forge"
)

const DefaultHeap = "3G"

type Options struct {
	Flavor  Flavor
	Name    string
	WorkDir string
	Heap    string // JVM -Xmx/-Xms value, e.g. 4G
}

// File is the subset of the daemon config a starter file sets.
type File struct {
	Admins    []string         `toml:"admins"`
	Server    ServerSection    `toml:"server"`
	Lifecycle LifecycleSection `toml:"lifecycle"`
	Rcon      RconSection      `toml:"rcon"`
	HTTP      HTTPSection      `toml:"http"`
	Log       LogSection       `toml:"log"`
}

type ServerSection struct {
	Name            string   `toml:"name"`
	Command         string   `toml:"command"`
	WorkDir         string   `toml:"workdir"`
	StopDirective   string   `toml:"stop_directive"`
	NiceCloseWindow string   `toml:"nice_close_window"`
	Env             []string `toml:"env,omitempty"`
}

type LifecycleSection struct {
	StatusAddress    string `toml:"status_address"`
	WatchdogInterval string `toml:"watchdog_interval"`
	IdleCountdown    string `toml:"idle_countdown"`
	ConfirmWindow    string `toml:"confirm_window"`
}

type RconSection struct {
	Host string `toml:"host"`
}

type HTTPSection struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type LogSection struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ParseFlavor accepts the flavor names case-insensitively; bukkit maps to spigot.
func ParseFlavor(s string) (Flavor, error) {
	switch f := Flavor(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FlavorVanilla:
		return FlavorVanilla, nil
	case FlavorPaper, FlavorSpigot, FlavorFabric, FlavorForge:
		return f, nil
	case "bukkit":
		return FlavorSpigot, nil
	default:
		return "", fmt.Errorf("unknown flavor: %s (supported: %s)", s, strings.Join(SupportedFlavors(), ", "))
	}
}

func SupportedFlavors() []string {
	return []string{string(FlavorVanilla), string(FlavorPaper), string(FlavorSpigot), string(FlavorFabric), string(FlavorForge)}
}

// Generate builds a starter config for opts.
func Generate(opts Options) (*File, error) {
	flavor, err := ParseFlavor(string(opts.Flavor))
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = string(flavor)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "/srv/minecraft/" + opts.Name
	}
	if opts.Heap == "" {
		opts.Heap = DefaultHeap
	}

	server := ServerSection{
		Name:            opts.Name,
		WorkDir:         opts.WorkDir,
		StopDirective:   "stop",
		NiceCloseWindow: "30s",
	}
	jvm := fmt.Sprintf("java -Xmx%s -Xms%s", opts.Heap, opts.Heap)
	switch flavor {
	case FlavorVanilla:
		server.Command = jvm + " -jar server.jar nogui"
	case FlavorPaper:
		server.Command = jvm + " -XX:+UseG1GC -jar paper.jar --nogui"
		server.NiceCloseWindow = "60s"
	case FlavorSpigot:
		server.Command = jvm + " -jar spigot.jar nogui"
	case FlavorFabric:
		server.Command = jvm + " -jar fabric-server-launch.jar nogui"
	case FlavorForge:
		// Forge reads JVM flags from user_jvm_args.txt; run.sh appends $JAVA_OPTS there.
		server.Command = "sh run.sh nogui"
		server.Env = []string{"JAVA_OPTS=-Xmx" + opts.Heap + " -Xms" + opts.Heap}
		server.NiceCloseWindow = "60s"
	}

	return &File{
		Admins: []string{},
		Server: server,
		Lifecycle: LifecycleSection{
			StatusAddress:    "127.0.0.1:25565",
			WatchdogInterval: "60s",
			IdleCountdown:    "10m",
			ConfirmWindow:    "10s",
		},
		Rcon: RconSection{Host: "localhost"},
		HTTP: HTTPSection{Enabled: true, Listen: "127.0.0.1:8080"},
		Log:  LogSection{Level: "info", Format: "text"},
	}, nil
}

// TOML encodes f as a config file.
func (f *File) TOML() ([]byte, error) {
	b, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return b, nil
}
