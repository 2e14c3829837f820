package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	// TIKSize is the size of the transport integrity key.
	TIKSize = 16
	// MeasurementSize is the size of the launch measurement.
	MeasurementSize = sha256.Size

	// measurementContext identifies LAUNCH_MEASURE in the HMAC input.
	measurementContext = 0x04

	// MeasurementMessageSize is the size of the HMAC input:
	// context, api major, api minor, build, policy, digest, nonce.
	MeasurementMessageSize = 1 + 1 + 1 + 1 + 4 + DigestSize + NonceSize
)

// AssembleMeasurementMessage builds the LAUNCH_MEASURE HMAC input as defined by
// the AMD SEV API specification. All fields are packed, POLICY is little-endian.
func AssembleMeasurementMessage(apiMajor, apiMinor, buildID uint8, policy uint32, digest [DigestSize]byte, nonce [NonceSize]byte) [MeasurementMessageSize]byte {
	var msg [MeasurementMessageSize]byte
	msg[0] = measurementContext
	msg[1] = apiMajor
	msg[2] = apiMinor
	msg[3] = buildID
	binary.LittleEndian.PutUint32(msg[4:8], policy)
	copy(msg[8:8+DigestSize], digest[:])
	copy(msg[8+DigestSize:], nonce[:])
	return msg
}

// SignMeasurement computes HMAC-SHA256 over the message keyed with the TIK.
func SignMeasurement(tik []byte, message []byte) ([MeasurementSize]byte, error) {
	var m [MeasurementSize]byte
	if len(tik) != TIKSize {
		return m, inputError("tik", fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(tik), TIKSize))
	}

	mac := hmac.New(sha256.New, tik)
	_, _ = mac.Write(message)
	copy(m[:], mac.Sum(nil))
	return m, nil
}
