package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runOpts jobOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish the notes in a folder of images",
	Long: `Transcribe every image in the folder, refine the text into a structured draft,
verify it and publish it as a Notion page named after the folder.

With --test-mode no model is called: placeholder notes are written directly
under the configured parent page.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if runOpts.Dir == "" {
			runOpts.Dir = cfg.Extract.Dir
		}
		if runOpts.Dir == "" {
			return fmt.Errorf("no notes folder: pass --dir or set extract.dir")
		}

		stop, err := startRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer stop()

		summary, err := publishJob(cmd.Context(), cfg, runOpts)
		if err != nil {
			return err
		}
		if summary.Status != "success" {
			return fmt.Errorf("run finished with status %s", summary.Status)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Dir, "dir", "d", "", "folder containing the note images")
	runCmd.Flags().BoolVar(&runOpts.TestMode, "test-mode", false, "publish synthetic notes without calling any model")
	runCmd.Flags().StringVar(&runOpts.Destination, "destination", "", "parent page id (overrides notion.page_id)")
	runCmd.Flags().DurationVar(&runOpts.Timeout, "timeout", 15*time.Minute, "abort the run after this long (0 disables)")
	rootCmd.AddCommand(runCmd)
}
