package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohitkumar/ticketflow/agent"
	"github.com/mohitkumar/ticketflow/analytics"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/config"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "memory", "default storage for plans, timers, instances and tickets (memory|redis)")
	cmd.Flags().String("instance-store", "", "instance storage, defaults to storage-impl (memory|redis|sqlite)")
	cmd.Flags().String("ticket-store", "", "ticket storage, defaults to storage-impl (memory|redis|postgres)")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().Int("redis-pool-size", 0, "redis connections per node, 0 keeps the client default")
	cmd.Flags().String("namespace", "ticketflow", "namespace used in storage")
	cmd.Flags().String("sqlite-path", "ticketflow.db", "sqlite database file of the instance store")
	cmd.Flags().String("postgres-dsn", "", "postgres connection string of the ticket store")
	cmd.Flags().String("node-name", "ticketflow", "name of this node in the partition ring")
	cmd.Flags().Int("partitions", 7, "number of timer and signal partitions")
	cmd.Flags().Duration("timer-poll-interval", time.Second, "interval between timer queue polls")
	cmd.Flags().Duration("audit-interval", time.Minute, "interval between audits of waiting instances")
	cmd.Flags().Duration("max-wait", 24*time.Hour, "waits longer than this are reported by the audit")
	cmd.Flags().Duration("default-timer", compiler.DEFAULT_TIMER_DURATION, "duration of timer nodes without one")
	cmd.Flags().Duration("activity-timeout", 5*time.Minute, "timeout of a single activity attempt")
	cmd.Flags().Int("activity-retries", 3, "retries of a failing activity, negative disables retries")
	cmd.Flags().Int("signal-workers", 512, "capacity of every signal worker")
	cmd.Flags().String("classifier-script", "", "javascript classification rules, built-in keyword rules when empty")
	cmd.Flags().String("analytics-file", "", "file receiving step analytics as json lines")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)
	viper.SetEnvPrefix("TICKETFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return err
			}
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.InstanceStoreType = config.StorageType(viper.GetString("instance-store"))
	c.cfg.TicketStoreType = config.StorageType(viper.GetString("ticket-store"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.PoolSize = viper.GetInt("redis-pool-size")
	c.cfg.SqliteConfig.Path = viper.GetString("sqlite-path")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.RingConfig.NodeName = viper.GetString("node-name")
	c.cfg.RingConfig.PartitionCount = viper.GetInt("partitions")
	c.cfg.TimerConfig.PollInterval = viper.GetDuration("timer-poll-interval")
	c.cfg.TimerConfig.AuditInterval = viper.GetDuration("audit-interval")
	c.cfg.TimerConfig.MaxWait = viper.GetDuration("max-wait")
	c.cfg.TimerConfig.DefaultTimer = viper.GetDuration("default-timer")
	c.cfg.ActivityConfig.Timeout = viper.GetDuration("activity-timeout")
	c.cfg.ActivityConfig.RetryCount = viper.GetInt("activity-retries")
	c.cfg.SignalWorkers = viper.GetInt("signal-workers")
	c.cfg.ClassifierScript = viper.GetString("classifier-script")
	c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: viper.GetString("analytics-file")}
	c.cfg.LogLevel = viper.GetString("log-level")
	return logger.SetLevel(c.cfg.LogLevel)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

// compileCommand prints the plan compiled from a graph file, nothing is
// registered.
func compileCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "compile <graph.json|graph.yaml>",
		Short: "Compile a workflow graph and print the execution plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := compiler.LoadGraphFile(args[0])
			if err != nil {
				return err
			}
			plan, err := compiler.Compile(name, g)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVar(&name, "name", compiler.DEFAULT_PLAN_NAME, "name of the compiled plan")
	return cmd
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:          "ticketflow",
		Short:        "Durable ticket workflow engine",
		PreRunE:      cli.setupConfig,
		RunE:         cli.run,
		SilenceUsage: true,
	}
	cmd.AddCommand(compileCommand())

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
