package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/ProbeFlow"
)

// Feeds an externally sourced probe from this program and reads the
// emitted batches off a channel.
func main() {
	disabled := false
	cfg := &probeflow.Config{
		Metrics: probeflow.MetricsConfig{Addr: "off"},
		Spool:   probeflow.SpoolConfig{Dir: "./data/spool"},
		Health:  probeflow.HealthConfig{Enabled: &disabled},
		Probes: []probeflow.ProbeConfig{{
			Name:               "example.ChannelProbe",
			Channels:           []string{"VALUE"},
			DefaultFrequencyHz: 20,
			Source:             probeflow.SourceConfig{Kind: probeflow.SourceExternal},
		}},
	}

	sink, records, closeRecords := probeflow.NewChannelSink("fanout", 32)
	defer closeRecords()

	agent, err := probeflow.NewAgent(cfg, probeflow.WithSink(sink))
	if err != nil {
		log.Fatalf("build agent: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go fanoutWorker("ingest", records)
	go produce(ctx, agent, cfg.Probes[0].Name)

	if err := agent.Run(ctx); err != nil {
		log.Fatalf("agent exited: %v", err)
	}
}

func produce(ctx context.Context, agent *probeflow.Agent, probe string) {
	start := time.Now()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			elapsed := t.Sub(start)
			v := float32(math.Sin(elapsed.Seconds()))
			if _, err := agent.Publish(probe, &probeflow.RawEvent{BootNanos: elapsed.Nanoseconds(), Values: []float32{v}}); err != nil {
				log.Printf("publish: %v", err)
				return
			}
		}
	}
}

func fanoutWorker(name string, records <-chan probeflow.Record) {
	for rec := range records {
		fmt.Printf("[%s] %s %s at %s\n", name, rec.Kind(), rec.ProbeName(), time.Now().Format(time.RFC3339))
	}
}
