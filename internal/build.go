package internal

import (
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
)

// LaunchParams contains everything one launch measurement depends on.
type LaunchParams struct {
	APIMajor uint8
	APIMinor uint8
	BuildID  uint8
	Policy   uint32
	Nonce    [NonceSize]byte
	TIK      []byte

	// Source is either an OverrideDigest or a DeriveDigest.
	Source DigestSource

	Outfile Optional[string]
}

// Measurement is the expected SEV launch measurement.
type Measurement [MeasurementSize]byte

func (m Measurement) String() string {
	return base64.StdEncoding.EncodeToString(m[:])
}

type options struct {
	logger *zap.Logger
}

// Option configures Build and Run.
type Option func(*options)

// WithLogger sets the logger used while computing the measurement.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LaunchDigest resolves the launch digest from the source.
func LaunchDigest(source DigestSource, opts ...Option) ([DigestSize]byte, error) {
	if source == nil {
		return [DigestSize]byte{}, inputError("firmware", ErrImageRead)
	}
	return source.launchDigest(newOptions(opts).logger)
}

// Build computes the launch measurement for the given parameters.
func Build(params LaunchParams, opts ...Option) (Measurement, error) {
	o := newOptions(opts)

	if len(params.TIK) != TIKSize {
		return Measurement{}, inputError("tik", fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(params.TIK), TIKSize))
	}

	ld, err := LaunchDigest(params.Source, WithLogger(o.logger))
	if err != nil {
		return Measurement{}, err
	}

	msg := AssembleMeasurementMessage(params.APIMajor, params.APIMinor, params.BuildID, params.Policy, ld, params.Nonce)
	m, err := SignMeasurement(params.TIK, msg[:])
	if err != nil {
		return Measurement{}, err
	}

	o.logger.Debug("computed launch measurement",
		zap.Uint8("api_major", params.APIMajor),
		zap.Uint8("api_minor", params.APIMinor),
		zap.Uint8("build_id", params.BuildID),
		zap.String("policy", fmt.Sprintf("0x%x", params.Policy)),
	)
	return Measurement(m), nil
}

// Run computes the launch measurement and encodes it according to
// params.Outfile.
func Run(params LaunchParams, opts ...Option) (string, error) {
	m, err := Build(params, opts...)
	if err != nil {
		return "", err
	}
	return EncodeMeasurement(m, params.Outfile)
}
