// Command aspectaudit counts local images per aspect group before upload
// and reports how far each group is from a whole number of batches.
package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dunamismax/derivatives/internal/aspect"
	"github.com/dunamismax/derivatives/internal/audit"
	"github.com/dunamismax/derivatives/internal/logging"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/spf13/cobra"
)

type options struct {
	batchSize int
	pattern   string
	backend   string
	binary    string
	timeout   time.Duration
	asJSON    bool
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "aspectaudit PATH_TO_PHOTOS",
		Short: "Count photos per aspect group and check batch divisibility",
		Long: `aspectaudit probes every matching image in a directory, classifies it as
portrait, square or landscape, and reports for each group how many photos to
delete or add so the group divides evenly into batches.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), opts.logLevel, "console", "")

			tool, err := raster.New(raster.Config{Backend: opts.backend, Binary: opts.binary, Timeout: opts.timeout})
			if err != nil {
				return err
			}
			defer raster.Shutdown()

			auditor, err := audit.New(tool, aspect.NewClassifier(nil), opts.batchSize, opts.pattern, logger)
			if err != nil {
				return err
			}
			report, err := auditor.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.batchSize, "batch", audit.DefaultBatchSize, "batch size each group should divide into")
	flags.StringVar(&opts.pattern, "pattern", "*.jpg", "glob of files to inspect")
	flags.StringVar(&opts.backend, "backend", raster.BackendMagick, "raster backend: magick, native or govips")
	flags.StringVar(&opts.binary, "magick-binary", "magick", "ImageMagick binary for the magick backend")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-file probe timeout")
	flags.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
