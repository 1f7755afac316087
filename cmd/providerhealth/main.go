// Command providerhealth checks reachability of every configured VPS
// provider adapter and reports a host resource snapshot alongside it,
// per spec.md §6.8. Grounded on the teacher's declared-but-unused
// robfig/cron and shirou/gopsutil dependencies: the cron schedule
// drives --daemon mode, and gopsutil supplies the local CPU/mem/disk
// snapshot so an operator can tell "provider is down" apart from "this
// host is thrashing."
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wopr-systems/beacon-orchestrator/internal/provider"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/adapters"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/pkg/config"
)

// ProviderStatus is the outcome of probing a single configured provider.
type ProviderStatus struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	Critical  bool   `json:"critical"`
}

// HostSnapshot is the local resource usage accompanying a health check.
type HostSnapshot struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
}

// Report is the full output of one health check run.
type Report struct {
	CheckedAt time.Time        `json:"checked_at"`
	Providers []ProviderStatus `json:"providers"`
	Host      HostSnapshot     `json:"host"`
}

func main() {
	doCheck := flag.Bool("check", false, "run one health check and print the result")
	asJSON := flag.Bool("json", false, "format output as JSON")
	save := flag.String("save", "", "write the report to this path in addition to stdout")
	daemon := flag.Bool("daemon", false, "run health checks on a cron schedule instead of once")
	cronSpec := flag.String("cron", "*/5 * * * *", "cron schedule for --daemon (default: every 5 minutes)")
	install := flag.String("install", "", "write a systemd unit file to this path and exit")
	flag.Parse()

	if *install != "" {
		if err := writeSystemdUnit(*install); err != nil {
			fmt.Fprintf(os.Stderr, "providerhealth: install: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote systemd unit to %s\n", *install)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "providerhealth: load config: %v\n", err)
		os.Exit(1)
	}
	reg := registry.New(nil)
	registerProviders(reg, cfg)

	if *daemon {
		runDaemon(reg, *cronSpec, *asJSON, *save)
		return
	}

	if !*doCheck {
		fmt.Fprintln(os.Stderr, "providerhealth: pass --check, --daemon, or --install")
		os.Exit(2)
	}

	report := runCheck(reg)
	emit(report, *asJSON, *save)
	if anyCritical(report) {
		os.Exit(1)
	}
}

func registerProviders(reg *registry.Registry, cfg *config.Config) {
	hc := &http.Client{Timeout: 15 * time.Second}
	if t := strings.TrimSpace(cfg.Providers.HetznerToken); t != "" {
		reg.Register(adapters.NewHetzner(t, hc), 1)
	}
	if t := strings.TrimSpace(cfg.Providers.DigitalOceanToken); t != "" {
		reg.Register(adapters.NewDigitalOcean(t, hc), 1)
	}
	if t := strings.TrimSpace(cfg.Providers.LinodeToken); t != "" {
		reg.Register(adapters.NewLinode(t, hc), 1)
	}
	if t := strings.TrimSpace(cfg.Providers.OVHToken); t != "" {
		reg.Register(adapters.NewOVH(t, hc), 1)
	}
	if t := strings.TrimSpace(cfg.Providers.UpCloudAuth); t != "" {
		reg.Register(adapters.NewUpCloud(t, hc), 1)
	}
}

// runCheck probes every registered provider's ListPlans endpoint as a
// lightweight reachability check and snapshots local host resources.
func runCheck(reg *registry.Registry) Report {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var statuses []ProviderStatus
	for _, p := range reg.All() {
		_, err := p.ListPlans(ctx)
		st := ProviderStatus{Name: p.Name(), Reachable: err == nil}
		if err != nil && !provider.IsNotImplemented(err) {
			st.Error = err.Error()
			st.Critical = true
		}
		statuses = append(statuses, st)
	}

	return Report{
		CheckedAt: time.Now().UTC(),
		Providers: statuses,
		Host:      hostSnapshot(ctx),
	}
}

func hostSnapshot(ctx context.Context) HostSnapshot {
	var snap HostSnapshot
	if percents, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		snap.DiskPercent = du.UsedPercent
	}
	return snap
}

func anyCritical(r Report) bool {
	for _, p := range r.Providers {
		if p.Critical {
			return true
		}
	}
	return false
}

func emit(r Report, asJSON bool, savePath string) {
	var out []byte
	if asJSON {
		out, _ = json.MarshalIndent(r, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("checked_at=%s host_cpu=%.1f%% host_mem=%.1f%% host_disk=%.1f%%\n",
			r.CheckedAt.Format(time.RFC3339), r.Host.CPUPercent, r.Host.MemPercent, r.Host.DiskPercent)
		for _, p := range r.Providers {
			status := "ok"
			if !p.Reachable {
				status = "unreachable: " + p.Error
			}
			fmt.Printf("  %s: %s\n", p.Name, status)
		}
		out, _ = json.Marshal(r)
	}

	if savePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "providerhealth: save: %v\n", err)
		return
	}
	if err := os.WriteFile(savePath, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "providerhealth: save: %v\n", err)
	}
}

// runDaemon schedules runCheck on cronSpec until the process is killed.
func runDaemon(reg *registry.Registry, cronSpec string, asJSON bool, savePath string) {
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		emit(runCheck(reg), asJSON, savePath)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "providerhealth: invalid cron spec %q: %v\n", cronSpec, err)
		os.Exit(1)
	}
	c.Start()
	select {}
}

const systemdUnitTemplate = `[Unit]
Description=WOPR beacon provider health checker
After=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/providerhealth --daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

func writeSystemdUnit(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(systemdUnitTemplate), 0o644)
}
