package main

import (
	"fmt"
	"strconv"

	"github.com/kvinwang/sev-mr/internal"
)

// base64Value is a pflag.Value holding fixed-length base64 data. The text is
// validated as soon as it is set.
type base64Value struct {
	decode func(string) ([]byte, error)
	text   string
	raw    []byte
}

func newNonceValue() *base64Value {
	return &base64Value{decode: func(s string) ([]byte, error) {
		nonce, err := internal.DecodeNonce(s)
		return nonce[:], err
	}}
}

func newLaunchDigestValue() *base64Value {
	return &base64Value{decode: func(s string) ([]byte, error) {
		ld, err := internal.DecodeLaunchDigest(s)
		return ld[:], err
	}}
}

func (b *base64Value) String() string {
	return b.text
}

func (b *base64Value) Set(value string) error {
	raw, err := b.decode(value)
	if err != nil {
		return err
	}
	b.text, b.raw = value, raw
	return nil
}

func (b *base64Value) Type() string {
	return "base64"
}

func (b *base64Value) present() bool {
	return b.raw != nil
}

// policyValue is the SEV guest policy, usually written in hex.
type policyValue uint32

func (p *policyValue) String() string {
	return fmt.Sprintf("0x%x", uint32(*p))
}

func (p *policyValue) Set(value string) error {
	v, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid policy: %v", err)
	}
	*p = policyValue(v)
	return nil
}

func (p *policyValue) Type() string {
	return "policy"
}
