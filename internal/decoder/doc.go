// Package decoder turns raw telemetry payloads into calibrated engineering values.
//
// Each satellite is described by a declarative [Schema] loaded from YAML: an
// ordered list of fixed-width fields with optional magic contents, calibration
// and a valid range. A [Decoder] walks the fields of one schema; a [Registry]
// maps satellite ids to decoders and identifies the owner of an untagged
// payload by its declared match prefix.
//
// Decoding is deterministic and stateless. Structural mismatches return a
// *domain.DecodeError so callers can quarantine the frame instead of retrying.
package decoder
