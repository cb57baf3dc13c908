// File: main.go

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/coder/quartz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"conference-balancer/pkg/attendance"
	"conference-balancer/pkg/bbb"
	"conference-balancer/pkg/config"
	"conference-balancer/pkg/database"
	"conference-balancer/pkg/history"
	"conference-balancer/pkg/logger"
	"conference-balancer/pkg/meetings"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/retention"
	"conference-balancer/pkg/secrets"
	"conference-balancer/pkg/server"
	"conference-balancer/pkg/usage"
)

var (
	debugFlag  bool
	configFile string
	cfg        *config.Config
	log        *zap.SugaredLogger
	clock      = quartz.NewReal()
)

var rootCmd = &cobra.Command{
	Use:   "conference-balancer",
	Short: "Load balancing and usage tracking for a pool of conferencing servers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		v := viper.GetViper()
		if err := config.Init(v, configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}

		var err error
		cfg, err = config.FromViper(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		log, err = logger.New(cfg.Log.Dir, cfg.Log.Tee, cfg.Log.Debug || debugFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
			os.Exit(1)
		}

		if config.IsSecretRef(cfg.Database.Password) {
			vault, err := secrets.NewVault()
			if err != nil {
				log.Errorw("Error creating vault client", "error", err)
				os.Exit(1)
			}
			if err := cfg.ResolveSecrets(cmd.Context(), vault); err != nil {
				log.Errorw("Error resolving secrets", "error", err)
				os.Exit(1)
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

var refreshUsageCmd = &cobra.Command{
	Use:   "refresh-usage",
	Short: "Poll every server once and update status, usage, meetings and attendance",
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		if err := refreshUsage(cmd.Context(), db, newPoller(db)); err != nil {
			log.Errorw("Error refreshing usage", "error", err)
			os.Exit(1)
		}
	},
}

var cleanupStatisticsCmd = &cobra.Command{
	Use:   "cleanup-statistics",
	Short: "Delete server and meeting statistics older than their retention period",
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		if _, err := newSweeper(db).SweepStatistics(cmd.Context()); err != nil {
			log.Errorw("Error cleaning up statistics", "error", err)
			os.Exit(1)
		}
	},
}

var cleanupAttendanceCmd = &cobra.Command{
	Use:   "cleanup-attendance",
	Short: "Delete attendance sessions older than the retention period",
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		if _, err := newSweeper(db).SweepAttendance(cmd.Context()); err != nil {
			log.Errorw("Error cleaning up attendance", "error", err)
			os.Exit(1)
		}
	},
}

var addServersCmd = &cobra.Command{
	Use:   "add-servers [file] [pool]",
	Short: "Add servers from a file to the database, optionally attaching them to a pool",
	Long: `Add servers from a file to the database.
Each line of [file] is "<base_url> <secret> [strength]".
[pool] is the name of an existing server pool the servers are added to.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		poolName := ""
		if len(args) > 1 {
			poolName = args[1]
		}

		added, err := server.AddServersFromFile(cmd.Context(), db, log, args[0], poolName)
		if err != nil {
			log.Errorw("Error adding servers", "error", err)
			os.Exit(1)
		}
		log.Infow("Servers added successfully", "count", added)
	},
}

var serverStatusCmd = &cobra.Command{
	Use:       "server-status [id] [disabled|offline|online]",
	Short:     "Disable a server or put it back into rotation",
	Example:   "server-status 3 disabled",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"disabled", "offline", "online"},
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Errorw("Invalid server id", "id", args[0], "error", err)
			os.Exit(1)
		}
		status, ok := models.ParseServerStatus(args[1])
		if !ok {
			log.Errorw("Invalid status. Must be 'disabled', 'offline' or 'online'", "status", args[1])
			os.Exit(1)
		}

		db := mustInitDB(cmd.Context())
		defer db.Close()

		poller := newPoller(db)
		srv, err := poller.SetStatus(cmd.Context(), id, status)
		if err != nil {
			log.Errorw("Error changing server status", "server", id, "error", err)
			os.Exit(1)
		}

		if srv.Status != models.StatusDisabled {
			// Bring counters back without waiting for the next cycle.
			out, err := poller.Poll(cmd.Context(), id)
			if err != nil {
				log.Errorw("Error polling server", "server", id, "error", err)
				os.Exit(1)
			}
			srv.Status = out.Status
		}
		log.Infow("Server status changed", "server", id, "status", srv.Status.String())
	},
}

var startMeetingCmd = &cobra.Command{
	Use:   "start-meeting [room-id]",
	Short: "Assign the room's next meeting to the least loaded server of its pool",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		record, _ := cmd.Flags().GetBool("record-attendance")
		starter := meetings.NewStarter(db, cfg.Attendance, clock, log)
		meeting, created, err := starter.Start(cmd.Context(), args[0], record)
		if err != nil {
			log.Errorw("Error starting meeting", "room", args[0], "error", err)
			os.Exit(1)
		}
		fmt.Printf("meeting=%s server=%d created=%t\n", meeting.ID, meeting.ServerID, created)
	},
}

var initSchemaCmd = &cobra.Command{
	Use:   "init-schema",
	Short: "Create the database tables and indexes",
	Run: func(cmd *cobra.Command, args []string) {
		db := mustInitDB(cmd.Context())
		defer db.Close()

		if err := db.InitSchema(cmd.Context()); err != nil {
			log.Errorw("Error initializing database schema", "error", err)
			os.Exit(1)
		}
		log.Infow("Database schema initialized")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml")
	startMeetingCmd.Flags().Bool("record-attendance", false, "Record attendance for the new meeting")

	rootCmd.AddCommand(refreshUsageCmd)
	rootCmd.AddCommand(cleanupStatisticsCmd)
	rootCmd.AddCommand(cleanupAttendanceCmd)
	rootCmd.AddCommand(addServersCmd)
	rootCmd.AddCommand(serverStatusCmd)
	rootCmd.AddCommand(startMeetingCmd)
	rootCmd.AddCommand(initSchemaCmd)
	rootCmd.AddCommand(serveCmd)
}

func mustInitDB(ctx context.Context) *database.DB {
	db, err := database.NewDB(ctx, cfg.Database, log)
	if err != nil {
		log.Errorw("Error initializing database", "error", err)
		os.Exit(1)
	}
	return db
}

func newPoller(db *database.DB) *usage.Poller {
	return usage.NewPoller(
		db,
		bbb.NewHTTPClient(cfg.Poll.Timeout),
		attendance.NewReconciler(cfg.Attendance, log),
		history.NewRecorder(cfg.Statistics, log),
		cfg.Poll,
		clock,
		log,
	)
}

func newSweeper(db *database.DB) *retention.Sweeper {
	return retention.NewSweeper(db, cfg.Statistics, cfg.Attendance, clock, log)
}

// refreshUsage runs one refresh cycle. While attendance logging is off,
// running meetings are first switched to not record attendance.
func refreshUsage(ctx context.Context, db *database.DB, poller *usage.Poller) error {
	if !cfg.Attendance.Enabled {
		changed, err := attendance.DisableRecording(ctx, db)
		if err != nil {
			return err
		}
		if changed > 0 {
			log.Infow("Attendance recording disabled for running meetings", "meetings", changed)
		}
	}

	_, err := poller.PollAll(ctx)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
