package internal

import (
	"encoding/base64"
	"fmt"
	"os"
)

// EncodeMeasurement renders the measurement. Without an outfile it returns the
// base64 text; otherwise the raw bytes are written to the outfile and "" is
// returned.
func EncodeMeasurement(m [MeasurementSize]byte, outfile Optional[string]) (string, error) {
	path, ok := outfile.Get()
	if !ok {
		return base64.StdEncoding.EncodeToString(m[:]), nil
	}

	if err := os.WriteFile(path, m[:], 0o644); err != nil {
		return "", inputError("outfile", fmt.Errorf("%w: %w", ErrIO, err))
	}
	return "", nil
}
