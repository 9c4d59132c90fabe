// Package satlink provides an embeddable satellite telemetry pipeline.
//
// Ground station reports are submitted as pending frames, decoded against
// per-satellite YAML schemas by scheduled jobs, and written one point per
// decoded field into a time-series store. Frames that fail to decode are
// quarantined and can be reprocessed once their schema is fixed.
//
// # Basic Usage
//
//	svc, err := satlink.New(satlink.Config{
//	    DataDir: "/var/lib/satlink",
//	    Jobs: []satlink.JobConfig{
//	        {Satellite: satlink.AllSatellites, Kind: "buffer_processing", Every: time.Minute},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	frame, err := svc.Submit(ctx, satlink.Submission{...})
//
// # Jobs
//
// Three kinds of job run on a single scheduler worker, so at most one runs at
// any instant:
//
//   - scraper pulls recent frames of a satellite from the upstream network
//     into the raw bucket.
//   - buffer_processing drains pending frame table rows.
//   - raw_bucket_processing re-decodes raw bucket records inside the span
//     recorded by the time-range tracker.
//
// Scheduling a job whose id is already queued or running is a no-op; see
// [Service.Schedule].
//
// # Lifecycle States
//
// A Service can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Service.Status] to
// query the current state.
package satlink
