package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvinwang/sev-mr/internal"
)

const (
	testNonce        = "wxP6tRHCFrFQWxsuqZA8QA=="
	testLaunchDigest = "xkvRAfyaSizgonxAjZIAkR8TmolUabBKQKb6KJCDDSM="
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type testFiles struct {
	dir, tik, firmware, kernel, initrd string
}

func newTestFiles(t *testing.T) testFiles {
	dir := t.TempDir()
	return testFiles{
		dir:      dir,
		tik:      writeTestFile(t, dir, "tik.bin", []byte("0123456789abcdef")),
		firmware: writeTestFile(t, dir, "OVMF.fd", bytes.Repeat([]byte{0x5a}, 4096)),
		kernel:   writeTestFile(t, dir, "vmlinuz", []byte("fake kernel")),
		initrd:   writeTestFile(t, dir, "initrd", []byte("fake initrd")),
	}
}

func (f testFiles) buildArgs(extra ...string) []string {
	return append([]string{
		"build",
		"--api-major", "0x01",
		"--api-minor", "40",
		"--build-id", "40",
		"--policy", "0x03",
		"--nonce", testNonce,
		"--tik", f.tik,
	}, extra...)
}

func TestBuildCmdLaunchDigest(t *testing.T) {
	f := newTestFiles(t)

	out, err := runCmd(t, f.buildArgs("--launch-digest", testLaunchDigest)...)
	require.NoError(t, err)
	text := strings.TrimSpace(out)

	nonce, err := internal.DecodeNonce(testNonce)
	require.NoError(t, err)
	ld, err := internal.DecodeLaunchDigest(testLaunchDigest)
	require.NoError(t, err)
	want, err := internal.Build(internal.LaunchParams{
		APIMajor: 1, APIMinor: 40, BuildID: 40, Policy: 3,
		Nonce:  nonce,
		TIK:    []byte("0123456789abcdef"),
		Source: internal.OverrideDigest{Digest: ld},
	})
	require.NoError(t, err)
	assert.Equal(t, want.String(), text)

	// Images are not read when the digest is supplied, they need not exist.
	out, err = runCmd(t, f.buildArgs("--launch-digest", testLaunchDigest,
		"--firmware", filepath.Join(f.dir, "missing.fd"),
		"--kernel", filepath.Join(f.dir, "missing-kernel"))...)
	require.NoError(t, err)
	assert.Equal(t, text, strings.TrimSpace(out))
}

func TestBuildCmdOutfile(t *testing.T) {
	f := newTestFiles(t)
	imageArgs := []string{"--firmware", f.firmware, "--kernel", f.kernel, "--initrd", f.initrd, "--cmdline", "console=ttyS0"}

	out, err := runCmd(t, f.buildArgs(imageArgs...)...)
	require.NoError(t, err)

	outfile := filepath.Join(f.dir, "measurement.bin")
	printed, err := runCmd(t, f.buildArgs(append(imageArgs, "--outfile", outfile)...)...)
	require.NoError(t, err)
	assert.Empty(t, printed)

	data, err := os.ReadFile(outfile)
	require.NoError(t, err)
	assert.Len(t, data, internal.MeasurementSize)
	assert.Equal(t, strings.TrimSpace(out), base64.StdEncoding.EncodeToString(data))
}

func TestBuildCmdErrors(t *testing.T) {
	f := newTestFiles(t)

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"no digest source", f.buildArgs()},
		{"bad nonce", append(f.buildArgs("--launch-digest", testLaunchDigest), "--nonce", "AAAA")},
		{"bad launch digest", f.buildArgs("--launch-digest", "%%%")},
		{"short tik", append(f.buildArgs("--launch-digest", testLaunchDigest), "--tik", f.kernel)},
		{"missing tik", append(f.buildArgs("--launch-digest", testLaunchDigest), "--tik", filepath.Join(f.dir, "nope"))},
		{"missing firmware", f.buildArgs("--firmware", filepath.Join(f.dir, "nope"))},
		{"initrd without kernel", f.buildArgs("--firmware", f.firmware, "--initrd", f.initrd)},
		{"bad policy", f.buildArgs("--launch-digest", testLaunchDigest, "--policy", "0xzz")},
		{"unwritable outfile", f.buildArgs("--launch-digest", testLaunchDigest, "--outfile", filepath.Join(f.dir, "no", "such", "dir"))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runCmd(t, tc.args...)
			require.Error(t, err)
			assert.Empty(t, out)
		})
	}

	_, err := runCmd(t, "build", "--tik", f.tik, "--launch-digest", testLaunchDigest)
	require.ErrorIs(t, err, internal.ErrInputValidation)
}

func TestBuildCmdConfig(t *testing.T) {
	f := newTestFiles(t)

	want, err := runCmd(t, f.buildArgs("--firmware", f.firmware, "--kernel", f.kernel, "--cmdline", "quiet")...)
	require.NoError(t, err)

	config := writeTestFile(t, f.dir, "launch.yaml", []byte(`
api_major: 0x01
api_minor: 40
build_id: 40
policy: 0x03
nonce: `+testNonce+`
tik: tik.bin
firmware: OVMF.fd
kernel: vmlinuz
cmdline: quiet
`))

	got, err := runCmd(t, "build", "--config", config)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Flags on the command line win over the config.
	got, err = runCmd(t, "build", "--config", config, "--policy", "0x01")
	require.NoError(t, err)
	assert.NotEqual(t, want, got)
}

func TestDigestCmd(t *testing.T) {
	f := newTestFiles(t)

	out, err := runCmd(t, "digest", "--firmware", f.firmware)
	require.NoError(t, err)
	fw, err := os.ReadFile(f.firmware)
	require.NoError(t, err)
	sum := sha256.Sum256(fw)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), strings.TrimSpace(out))

	// The digest printed here reproduces the measurement as an override.
	out, err = runCmd(t, "digest", "--firmware", f.firmware, "--kernel", f.kernel, "--initrd", f.initrd)
	require.NoError(t, err)
	viaDigest, err := runCmd(t, f.buildArgs("--launch-digest", strings.TrimSpace(out))...)
	require.NoError(t, err)
	viaImages, err := runCmd(t, f.buildArgs("--firmware", f.firmware, "--kernel", f.kernel, "--initrd", f.initrd)...)
	require.NoError(t, err)
	assert.Equal(t, viaImages, viaDigest)

	_, err = runCmd(t, "digest")
	require.ErrorIs(t, err, internal.ErrImageRead)
}

func TestOvmfCmd(t *testing.T) {
	f := newTestFiles(t)

	out, err := runCmd(t, "ovmf", "--firmware", f.firmware)
	require.NoError(t, err)
	assert.Equal(t, "no OVMF table found\n", out)

	_, err = runCmd(t, "ovmf")
	require.Error(t, err)
}
