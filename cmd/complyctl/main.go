// Command complyctl is the run engine's operator CLI: bundle registry
// sync, manual run triggering against a running complyengine, and
// offline/air-gapped replay of a previously cached run's output when
// neither Postgres nor Redis is reachable. Command tree shape (root
// command wiring, persistent flags, graceful error handling) is
// grounded on the teacher's cobra/viper command tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"compliance.evalgo.org/bundles"
	"compliance.evalgo.org/runcache"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "complyctl",
		Short: "Operator CLI for the compliance run engine",
	}

	root.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	root.PersistentFlags().String("control-plane-url", os.Getenv("CONTROLPLANE_URL"), "base URL of a running complyengine")
	root.PersistentFlags().String("api-key", os.Getenv("CONTROLPLANE_API_KEY"), "X-API-Key for the control plane")
	_ = viper.BindPFlags(root.PersistentFlags())

	root.AddCommand(newBundleSyncCmd(), newRunTriggerCmd(), newReplayCmd())
	return root
}

func newBundleSyncCmd() *cobra.Command {
	var dir, mode string
	cmd := &cobra.Command{
		Use:   "bundle-sync",
		Short: "sync regulatory bundles from a filesystem directory into the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			reg := bundles.NewRegistry(dir, db)
			upserted, deactivated, err := reg.SyncFromFilesystem(dir, bundles.SyncMode(mode))
			if err != nil {
				return fmt.Errorf("sync bundles: %w", err)
			}
			fmt.Printf("synced: %d upserted, %d deactivated\n", upserted, deactivated)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of bundle definition files")
	cmd.Flags().StringVar(&mode, "mode", "merge", "sync mode: merge or sync")
	cmd.MarkFlagRequired("dir")
	return cmd
}

func newRunTriggerCmd() *cobra.Command {
	var runID uint
	var tenantID string
	cmd := &cobra.Command{
		Use:   "run-execute",
		Short: "trigger asynchronous execution of a queued run via the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := strings.TrimRight(viper.GetString("control-plane-url"), "/")
			if baseURL == "" {
				return fmt.Errorf("--control-plane-url is required")
			}
			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
				fmt.Sprintf("%s/runs/%d/execute", baseURL, runID), nil)
			if err != nil {
				return err
			}
			req.Header.Set("X-API-Key", viper.GetString("api-key"))
			req.Header.Set("X-Tenant-ID", tenantID)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("request control plane: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("control plane returned %s", resp.Status)
			}
			fmt.Printf("run %d accepted for execution\n", runID)
			return nil
		},
	}
	cmd.Flags().UintVar(&runID, "run-id", 0, "run ID to execute")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "X-Tenant-ID for the control plane")
	cmd.MarkFlagRequired("run-id")
	cmd.MarkFlagRequired("tenant-id")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var tenantID, runHash, bboltPath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replay a previously cached run's output from the offline bbolt store",
		Long: "Used when neither Postgres nor Redis is reachable (air-gapped\n" +
			"operation): reads a run's output strictly from the process-local\n" +
			"bbolt cache populated by a prior online run, never computing or\n" +
			"writing anything.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runcache.NewStore(nil, "", bboltPath)
			if err != nil {
				return fmt.Errorf("open offline store: %w", err)
			}
			output, err := store.ReplayOffline(tenantID, runHash)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			var pretty map[string]interface{}
			if err := json.Unmarshal([]byte(output), &pretty); err == nil {
				encoded, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(encoded))
				return nil
			}
			fmt.Println(output)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant ID")
	cmd.Flags().StringVar(&runHash, "run-hash", "", "run hash")
	cmd.Flags().StringVar(&bboltPath, "bbolt-path", os.Getenv("RUNCACHE_BBOLT_PATH"), "path to the offline bbolt store")
	cmd.MarkFlagRequired("tenant-id")
	cmd.MarkFlagRequired("run-hash")
	return cmd
}

func openDB() (*gorm.DB, error) {
	dsn := viper.GetString("database-url")
	if dsn == "" {
		return nil, fmt.Errorf("--database-url is required")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}
