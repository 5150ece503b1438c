package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/ProbeFlow"
)

func main() {
	flow, err := probeflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Runs under the probe lock, so keep it quick.
	callback := func(rec probeflow.Record) error {
		switch r := rec.(type) {
		case *probeflow.Batch:
			fmt.Printf("%.3f %s samples=%d channels=%v\n", r.EmittedAt, r.Probe, r.Len(), r.Channels)
		case *probeflow.QueueSnapshot:
			fmt.Printf("%.3f health pending=%d bytes=%d clear_in=%ds\n",
				r.EmittedAt, r.PendingCount, r.PendingSizeBytes, r.EstimatedClearTimeSec)
		}
		return nil
	}

	if err := flow.Run(ctx, probeflow.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("agent exited: %v", err)
	}
}
