package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kvinwang/sev-mr/internal"
)

// launchFlags are the flags shared by the measurement subcommands.
type launchFlags struct {
	apiMajor     uint8
	apiMinor     uint8
	buildID      uint8
	policy       policyValue
	nonce        *base64Value
	tikPath      string
	launchDigest *base64Value
	firmwarePath string
	kernelPath   string
	initrdPath   string
	cmdline      string
	outfile      string
	configPath   string
}

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sev-mr",
		Short:        "Reproduce AMD SEV guest launch measurements",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log how the measurement is computed.")

	rootCmd.AddCommand(newBuildCmd(), newDigestCmd(), newOvmfCmd())
	return rootCmd
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func addImageFlags(flags *pflag.FlagSet, lf *launchFlags) {
	flags.StringVar(&lf.firmwarePath, "firmware", "", "Path to OVMF firmware file")
	flags.StringVar(&lf.kernelPath, "kernel", "", "Path to kernel file")
	flags.StringVar(&lf.initrdPath, "initrd", "", "Path to initrd file")
	flags.StringVar(&lf.cmdline, "cmdline", "", "Kernel command line")
	flags.StringVar(&lf.configPath, "config", "", "Path to a YAML launch config; flags override its values")
}

func newBuildCmd() *cobra.Command {
	lf := &launchFlags{nonce: newNonceValue(), launchDigest: newLaunchDigestValue()}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compute the expected launch measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			params, err := lf.launchParams(cmd.Flags())
			if err != nil {
				return err
			}

			out, err := internal.Run(params, internal.WithLogger(logger))
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint8Var(&lf.apiMajor, "api-major", 0, "Platform API major version")
	flags.Uint8Var(&lf.apiMinor, "api-minor", 0, "Platform API minor version")
	flags.Uint8Var(&lf.buildID, "build-id", 0, "Platform firmware build id")
	flags.Var(&lf.policy, "policy", "Guest policy (e.g. 0x03)")
	flags.Var(lf.nonce, "nonce", "Base64 encoded 16 byte measurement nonce")
	flags.StringVar(&lf.tikPath, "tik", "", "Path to the transport integrity key")
	flags.Var(lf.launchDigest, "launch-digest", "Base64 encoded launch digest; images are not read when given")
	flags.StringVar(&lf.outfile, "outfile", "", "Write the raw measurement to this file instead of printing it")
	addImageFlags(flags, lf)

	return cmd
}

func newDigestCmd() *cobra.Command {
	lf := &launchFlags{}

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Compute the launch digest of the firmware and kernel images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := lf.loadConfig(cmd.Flags()); err != nil {
				return err
			}
			source, err := lf.deriveSource(cmd.Flags())
			if err != nil {
				return err
			}

			ld, err := internal.LaunchDigest(source, internal.WithLogger(logger))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(ld[:]))
			return nil
		},
	}
	addImageFlags(cmd.Flags(), lf)

	return cmd
}

func newOvmfCmd() *cobra.Command {
	var firmwarePath string

	cmd := &cobra.Command{
		Use:   "ovmf",
		Short: "List the OVMF footer table of a firmware image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fw, err := readFile("firmware", firmwarePath)
			if err != nil {
				return err
			}

			entries, err := internal.ParseOvmfTable(fw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no OVMF table found")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s %4d %s\n", e.GUID, len(e.Data), e.Name())
			}

			area, ok, err := internal.FindSevHashTableArea(fw)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(out, "SEV hashes table: base 0x%x size %d\n", area.Base, area.Size)
			} else {
				fmt.Fprintln(out, "SEV hashes table: not reserved")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&firmwarePath, "firmware", "", "Path to OVMF firmware file")
	cmd.MarkFlagRequired("firmware") //nolint:errcheck

	return cmd
}

func (lf *launchFlags) loadConfig(flags *pflag.FlagSet) error {
	if lf.configPath == "" {
		return nil
	}
	cfg, err := loadConfig(lf.configPath)
	if err != nil {
		return err
	}
	return cfg.apply(flags)
}

// deriveSource reads the images named on the command line.
func (lf *launchFlags) deriveSource(flags *pflag.FlagSet) (internal.DeriveDigest, error) {
	var (
		source internal.DeriveDigest
		err    error
	)
	if source.Firmware, err = readOptionalFile("firmware", lf.firmwarePath); err != nil {
		return source, err
	}
	if source.Kernel, err = readOptionalFile("kernel", lf.kernelPath); err != nil {
		return source, err
	}
	if source.Initrd, err = readOptionalFile("initrd", lf.initrdPath); err != nil {
		return source, err
	}
	if flags.Changed("cmdline") {
		source.Cmdline = internal.Some(lf.cmdline)
	}
	return source, nil
}

func (lf *launchFlags) launchParams(flags *pflag.FlagSet) (internal.LaunchParams, error) {
	var params internal.LaunchParams

	if err := lf.loadConfig(flags); err != nil {
		return params, err
	}

	if !lf.nonce.present() {
		return params, &internal.InputError{Input: "nonce", Err: fmt.Errorf("%w: required", internal.ErrInputValidation)}
	}
	if lf.tikPath == "" {
		return params, &internal.InputError{Input: "tik", Err: fmt.Errorf("%w: required", internal.ErrInputValidation)}
	}
	tik, err := readFile("tik", lf.tikPath)
	if err != nil {
		return params, err
	}

	params = internal.LaunchParams{
		APIMajor: lf.apiMajor,
		APIMinor: lf.apiMinor,
		BuildID:  lf.buildID,
		Policy:   uint32(lf.policy),
		TIK:      tik,
	}
	copy(params.Nonce[:], lf.nonce.raw)

	// A supplied launch digest wins, the images are not even read.
	if lf.launchDigest.present() {
		var o internal.OverrideDigest
		copy(o.Digest[:], lf.launchDigest.raw)
		params.Source = o
	} else {
		source, err := lf.deriveSource(flags)
		if err != nil {
			return params, err
		}
		params.Source = source
	}

	if lf.outfile != "" {
		params.Outfile = internal.Some(lf.outfile)
	}
	return params, nil
}
