package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/ghalamif/ProbeFlow"
)

const defaultConfig = "./data/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "scan":
		err = scanCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe-agent %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfig, "path to agent configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := probeflow.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfig, "path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := probeflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s ok: %d probes, health monitor %s\n", *cfgPath, len(cfg.Probes), onOff(cfg.Health.IsEnabled()))
	for _, p := range cfg.Probes {
		fmt.Printf("  %s  %d channels  %d Hz  source=%s  key=%s\n",
			p.Name, len(p.Channels), p.DefaultFrequencyHz, p.Source.Kind, p.FrequencyKey)
	}
	return nil
}

// scanCommand measures the spool once and prints the snapshot as JSON.
func scanCommand(args []string) error {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfig, "path to agent configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := probeflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	enabled := true
	cfg.Health.Enabled = &enabled
	cfg.Metrics.Addr = "off"

	discard := probeflow.NewCallbackSink("discard", func(probeflow.Record) error { return nil })
	agent, err := probeflow.NewAgent(cfg, probeflow.WithSink(discard))
	if err != nil {
		return err
	}
	defer agent.Shutdown(context.Background())

	snap, ok := agent.ScanNow()
	if !ok {
		return errors.New("scan did not run")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Fields())
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: *interval}
	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(client, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(families))
	for name := range families {
		if strings.HasPrefix(name, "probeflow_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", time.Now().Format(time.RFC3339))
	for _, name := range names {
		for _, m := range families[name].GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			fmt.Fprintf(&b, " %s=%g", strings.TrimPrefix(name, "probeflow_"), v)
		}
	}
	fmt.Println(b.String())
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printUsage() {
	fmt.Printf(`ProbeFlow agent

Usage:
  probe-agent <command> [flags]

Commands:
  run        Start probes, dispatcher, uploader and health monitor
  validate   Load and validate a config file without starting anything
  scan       Run one backpressure scan of the spool and print the snapshot
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  probe-agent run --config ./data/config.yaml
  probe-agent validate -c ./data/config.yaml
  probe-agent scan -c ./data/config.yaml
  probe-agent stats --url http://localhost:9100/metrics --interval 1s
`)
}
