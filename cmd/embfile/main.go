package main

import (
	"context"
	"os"

	"github.com/kjk/embfile/log"
	"github.com/kjk/embfile/minioutil"
	"github.com/kjk/embfile/u"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const rootLongDesc = `embfile inspects and moves embedding files.

An embedding file is a text file with a JSON META section followed by
EMBEDDING + PAYLOAD records. Files ending in .gz, .zst, .br, .bz2 or
.lz4 are decompressed on the fly.

Configuration is read from embfile.toml in the current directory or in
~/.config/embfile and from EMBFILE_* environment variables
(e.g. EMBFILE_MINIO_ENDPOINT).`

// app is state shared by all commands, set up before a command runs
type app struct {
	v *viper.Viper
}

func (a *app) init(cmd *cobra.Command, configPath string) error {
	v, err := initViper(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Root().PersistentFlags()
	u.Must(v.BindPFlag("verbose", flags.Lookup("verbose")))
	u.Must(v.BindPFlag("log.dir", flags.Lookup("log-dir")))
	a.v = v

	log.Output = cmd.ErrOrStderr()
	log.Verbose = v.GetBool("verbose")
	log.Init(&log.Config{
		Dir: u.ExpandTildeInPath(v.GetString("log.dir")),
	})
	if f := v.ConfigFileUsed(); f != "" {
		log.Verbosef("using config file '%s'\n", f)
	}
	return nil
}

func (a *app) minioClient(ctx context.Context) (*minioutil.Client, error) {
	return minioutil.New(ctx, minioConfig(a.v))
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string
	cmd := &cobra.Command{
		Use:           "embfile",
		Short:         "Inspect, validate and store embedding files",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, configPath)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Close()
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.String("log-dir", "", "Also write logs to daily files in this directory")
	flags.StringVar(&configPath, "config", "", "Path of config file (default embfile.toml)")

	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCompressCmd())
	cmd.AddCommand(newPushCmd(a))
	cmd.AddCommand(newPullCmd(a))
	cmd.AddCommand(newLsCmd(a))
	cmd.AddCommand(newRmCmd(a))
	return cmd
}

func main() {
	defer log.Close()
	if err := newRootCmd().Execute(); err != nil {
		if log.Verbose {
			log.Errorf("error: %s", err)
		} else {
			log.Logf("error: %s\n", err)
		}
		log.Close()
		os.Exit(1)
	}
}
