package ports

import "github.com/bft-labs/satlink/internal/domain"

// Decoder turns raw payload bytes into calibrated fields.
type Decoder interface {
	// Decode parses payload with the schema registered for satellite.
	// Structural mismatches return an error matching domain.ErrDecode.
	Decode(satellite string, payload []byte) (domain.DecodedFrame, error)

	// Identify returns the satellite whose schema claims the payload.
	Identify(payload []byte) (string, error)
}
