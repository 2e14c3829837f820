package internal

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeasurement() [MeasurementSize]byte {
	var m [MeasurementSize]byte
	for i := range m {
		m[i] = byte(i * 7)
	}
	return m
}

func TestEncodeMeasurementText(t *testing.T) {
	m := testMeasurement()
	out, err := EncodeMeasurement(m, None[string]())
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(out), out)
	assert.Equal(t, base64.StdEncoding.EncodeToString(m[:]), out)
}

func TestEncodeMeasurementFile(t *testing.T) {
	m := testMeasurement()
	path := filepath.Join(t.TempDir(), "measurement.bin")

	// Existing content is truncated.
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o600))

	out, err := EncodeMeasurement(m, Some(path))
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m[:], data)

	text, err := EncodeMeasurement(m, None[string]())
	require.NoError(t, err)
	assert.Equal(t, text, base64.StdEncoding.EncodeToString(data))
}

func TestEncodeMeasurementFileError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "measurement.bin")
	_, err := EncodeMeasurement(testMeasurement(), Some(path))
	require.ErrorIs(t, err, ErrIO)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "outfile", inputErr.Input)
}
