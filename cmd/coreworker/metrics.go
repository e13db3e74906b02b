package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/denisbrodbeck/machineid"
	echo "github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/store"
	"github.com/coreruntime/coreworker/pkg/submitter"
	"github.com/coreruntime/coreworker/pkg/utils"
)

// nodeId is a stable per-machine identity surfaced in /metrics.
func nodeId() string {
	id, err := machineid.ProtectedID("coreworker")
	if err != nil {
		return "unknown"
	}
	return id
}

// statsSnapshot is gathered concurrently from the store and submitter,
// since each is an independent, separately-locked source.
type statsSnapshot struct {
	objectCount          int
	queuedTasks          int
	cachedWorkers        int
	workerRequestPending bool
	pendingResolutions   int
}

func gatherStats(ctx context.Context, ims *store.Store, dts *submitter.Submitter, numPendingResolutions func() int) statsSnapshot {
	var snap statsSnapshot

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap.objectCount = ims.Size()
		return nil
	})
	g.Go(func() error {
		stats := dts.Statistics()
		snap.queuedTasks = stats.QueuedTasks
		snap.cachedWorkers = stats.CachedWorkers
		snap.workerRequestPending = stats.WorkerRequestPending
		return nil
	})
	g.Go(func() error {
		snap.pendingResolutions = numPendingResolutions()
		return nil
	})
	g.Wait()

	return snap
}

// serveHttp starts the /metrics HTTP endpoint.
func serveHttp(address string, ims *store.Store, dts *submitter.Submitter, numPendingResolutions func() int) {
	r := echo.New()
	r.HideBanner = true
	r.Use(utils.HttpLogger)

	r.GET("/metrics", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		snap := gatherStats(ctx, ims, dts, numPendingResolutions)

		body := fmt.Sprintf(
			"coreworker_node_id %q\n"+
				"coreworker_store_objects %d\n"+
				"coreworker_submitter_queued_tasks %d\n"+
				"coreworker_submitter_cached_workers %d\n"+
				"coreworker_submitter_worker_request_pending %d\n"+
				"coreworker_resolver_pending %d\n",
			nodeId(), snap.objectCount, snap.queuedTasks, snap.cachedWorkers,
			boolToGauge(snap.workerRequestPending), snap.pendingResolutions,
		)
		return c.String(http.StatusOK, body)
	})

	log.Info("Listening for HTTP on", address)
	if err := r.Start(address); err != nil {
		log.Fatal(err)
	}
}

func boolToGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
