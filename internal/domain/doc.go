// Package domain contains the core domain entities and value objects for satlink.
//
// This package represents the innermost layer of the application. It has no
// dependencies on infrastructure concerns (SQL, time-series storage, HTTP,
// logging) and contains only pure business rules.
//
// # Entities
//
//   - [Frame]: A single radio transmission record with its processing status
//   - [DecodedFrame]: Calibrated field values produced by decoding a frame
//   - [TimeRange]: The span of newly arrived, not yet reprocessed data
//
// # Design Principles
//
// Domain entities are:
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
