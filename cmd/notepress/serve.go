package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/notepress/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload API",
	Long:  `Start the HTTP API. Each photo posted to /api/upload is published as its own Notion page.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		stop, err := startRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer stop()

		if err := cfg.RequireCredentials(false); err != nil {
			log.Warnf("production uploads will fail until configured: %v", err)
		}

		srv, err := server.New(server.Config{
			AccessCode:     cfg.Server.AccessCode,
			UploadDir:      cfg.Server.UploadDir,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			Version:        version,
		}, uploadPipeline)
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.ListenAddr()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "notepress API listening on %s\n  GET  /api/health\n  POST /api/upload\n", addr)
		return srv.ListenAndServe(cmd.Context(), addr, cfg.Server.ShutdownTimeout)
	},
}

// uploadPipeline publishes one upload directory. Artifacts of concurrent
// uploads go to separate subdirectories.
func uploadPipeline(ctx context.Context, dir string, testMode bool) (string, error) {
	opts := jobOptions{
		Dir:         dir,
		TestMode:    testMode,
		ArtifactDir: filepath.Join(cfg.Artifacts.OutputDir, filepath.Base(dir)),
	}
	summary, err := publishJob(ctx, cfg, opts)
	if err != nil {
		return "", err
	}

	label := "PRODUCTION MODE"
	if testMode {
		label = "TEST MODE"
	}
	if summary.Status != "success" {
		return fmt.Sprintf("Notion page published with warnings (%s, status %s)", label, summary.Status), nil
	}
	return fmt.Sprintf("Successfully created Notion page! (%s)", label), nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr or server.port)")
	rootCmd.AddCommand(serveCmd)
}
