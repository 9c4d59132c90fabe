// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the pipeline core and the outside world.
// They define what the application needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [FrameRepository]: The relational frame table (pending/quarantined rows)
//   - [RawStore]: The raw time-series bucket with its dedup write path
//   - [ProcessedStore]: The processed time-series bucket for decoded fields
//   - [RangeRepository]: Persistence for time-range bookkeeping
//   - [Decoder]: Schema-driven payload decoding
//   - [FrameSource]: Upstream network the scraper pulls frames from
//   - [CursorRepository]: Scraper progress persistence
//   - [Recorder]: Pipeline metrics
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with SQLite,
// Pebble, HTTP, MQTT, Prometheus and zerolog.
package ports
