package internal

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// NonceSize is the size of the MNONCE mixed into the measurement.
const NonceSize = 16

// DigestSource yields the launch digest of one computation. It is either an
// OverrideDigest or a DeriveDigest.
type DigestSource interface {
	launchDigest(logger *zap.Logger) ([DigestSize]byte, error)
}

// OverrideDigest supplies an already trusted launch digest. No image is
// looked at.
type OverrideDigest struct {
	Digest [DigestSize]byte
}

func (o OverrideDigest) launchDigest(logger *zap.Logger) ([DigestSize]byte, error) {
	logger.Debug("using supplied launch digest", zap.String("launch_digest", hex.EncodeToString(o.Digest[:])))
	return o.Digest, nil
}

// DeriveDigest derives the launch digest from the images.
type DeriveDigest struct {
	Firmware Optional[[]byte]
	Kernel   Optional[[]byte]
	Initrd   Optional[[]byte]
	Cmdline  Optional[string]
}

func (d DeriveDigest) launchDigest(logger *zap.Logger) ([DigestSize]byte, error) {
	ld, err := BuildLaunchDigest(d.Firmware, d.Kernel, d.Initrd, d.Cmdline)
	if err != nil {
		return ld, err
	}

	fw, _ := d.Firmware.Get()
	kernel, withHashes := d.Kernel.Get()
	initrd, _ := d.Initrd.Get()
	logger.Debug("derived launch digest",
		zap.Int("firmware_size", len(fw)),
		zap.Bool("kernel_hashes", withHashes),
		zap.Int("kernel_size", len(kernel)),
		zap.Int("initrd_size", len(initrd)),
		zap.String("launch_digest", hex.EncodeToString(ld[:])),
	)

	if withHashes {
		checkHashTableArea(logger, fw)
	}
	return ld, nil
}

// checkHashTableArea warns when the firmware carries an OVMF table that does
// not reserve room for the SEV hashes table. Such firmware boots without
// verifying the kernel hashes.
func checkHashTableArea(logger *zap.Logger, fw []byte) {
	entries, err := ParseOvmfTable(fw)
	if err != nil {
		logger.Warn("unable to parse OVMF table", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		logger.Debug("firmware has no OVMF table")
		return
	}

	area, ok, err := FindSevHashTableArea(fw)
	switch {
	case err != nil:
		logger.Warn("unable to read SEV hashes table area", zap.Error(err))
	case !ok:
		logger.Warn("firmware does not reserve an SEV hashes table, kernel hashes will not be verified by the guest")
	case int(area.Size) < PaddedSevHashTableSize:
		logger.Warn("SEV hashes table area is too small",
			zap.Uint32("size", area.Size), zap.Int("required", PaddedSevHashTableSize))
	default:
		logger.Debug("SEV hashes table area", zap.Uint32("base", area.Base), zap.Uint32("size", area.Size))
	}
}

// errDigestLength is what a launch digest of the wrong size fails with; the
// override is then an input and an encoding failure at once.
var errDigestLength = fmt.Errorf("%w: %w", ErrInputValidation, ErrEncoding)

func decodeFixedBase64(input, text string, size int, lengthErr error) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, inputError(input, fmt.Errorf("%w: %w: %v", ErrInputValidation, ErrEncoding, err))
	}
	if len(raw) != size {
		return nil, inputError(input, fmt.Errorf("%w: decoded to %d bytes, want %d", lengthErr, len(raw), size))
	}
	return raw, nil
}

// DecodeLaunchDigest decodes a base64 launch digest override.
func DecodeLaunchDigest(text string) ([DigestSize]byte, error) {
	var ld [DigestSize]byte
	raw, err := decodeFixedBase64("launch-digest", text, DigestSize, errDigestLength)
	if err != nil {
		return ld, err
	}
	copy(ld[:], raw)
	return ld, nil
}

// DecodeNonce decodes a base64 MNONCE.
func DecodeNonce(text string) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	raw, err := decodeFixedBase64("nonce", text, NonceSize, ErrInputValidation)
	if err != nil {
		return nonce, err
	}
	copy(nonce[:], raw)
	return nonce, nil
}
