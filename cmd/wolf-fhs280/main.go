package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wolf-fhs280/config"
	"wolf-fhs280/internal/api"
	"wolf-fhs280/internal/collector"
	"wolf-fhs280/internal/heatpump"
	"wolf-fhs280/internal/metrics"
	"wolf-fhs280/internal/modbus"
	"wolf-fhs280/internal/mqtt"
	"wolf-fhs280/internal/storage"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wolf-fhs280",
		Short: "Wolf FHS 280 heat pump bridge",
		Long:  "Poll and control a Wolf FHS 280 domestic hot water heat pump via Modbus",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(writeCmd())
	rootCmd.AddCommand(syncClockCmd())
	rootCmd.AddCommand(fieldsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// openDevice builds the hub and poller for the configured heat pump.
func openDevice(cfg *config.Config) (*modbus.Hub, *heatpump.Poller, error) {
	hc, err := cfg.ResolveHub()
	if err != nil {
		return nil, nil, err
	}

	hub := modbus.NewHub(modbus.HubConfig{
		Name:                 hc.Name,
		URL:                  hc.URL,
		Timeout:              hc.Timeout,
		SingleRegisterWrites: hc.SingleRegisterWrites,
	})
	regs := heatpump.FHS280(cfg.Device.SetpointMax)
	return hub, heatpump.NewPoller(regs, hub.Unit(cfg.Device.SlaveID)), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge service",
		Long:  "Start the collector, API server, and MQTT bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hub, poller, err := openDevice(cfg)
			if err != nil {
				return err
			}
			log.Printf("Using modbus hub %s (%s), slave %d", hub.Name(), hub.URL(), cfg.Device.SlaveID)

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			log.Printf("Database opened at %s", cfg.Database.Path)

			m := metrics.New(cfg.Device.Name)

			collCfg := collector.CollectorConfig{
				Poller:       poller,
				Hub:          hub,
				Database:     db,
				Metrics:      m,
				Interval:     cfg.Collector.Interval,
				RefreshDelay: cfg.Collector.RefreshDelay,
				Enabled:      cfg.Collector.Enabled,
			}

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:          cfg.MQTT.Broker,
				ClientID:        cfg.MQTT.ClientID,
				Username:        cfg.MQTT.Username,
				Password:        cfg.MQTT.Password,
				TopicPrefix:     cfg.MQTT.TopicPrefix,
				DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
				DeviceName:      cfg.Device.Name,
				Enabled:         cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
				publisher = nil
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				collCfg.Publisher = publisher
			}

			coll := collector.NewCollector(collCfg)

			if collCfg.Publisher != nil {
				entities := heatpump.Entities(poller.Map())
				if err := publisher.PublishHomeAssistantDiscovery(entities); err != nil {
					log.Printf("Warning: MQTT discovery failed: %v", err)
				}
				if err := publisher.Subscribe(entities, coll); err != nil {
					log.Printf("Warning: MQTT subscribe failed: %v", err)
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := coll.Start(ctx); err != nil {
					log.Printf("Collector error: %v", err)
				}
			}()

			go pruneHistory(ctx, db, cfg.Database.Retention)

			var server *api.Server
			if cfg.API.Enabled {
				serverCfg := api.ServerConfig{
					Port:      cfg.API.Port,
					Collector: coll,
					Database:  db,
					Config:    cfg,
				}
				if cfg.API.Metrics {
					serverCfg.Metrics = m
				}
				server = api.NewServer(serverCfg)

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("Wolf FHS280 bridge started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")
			cancel()

			if server != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				server.Stop(shutdownCtx)
				done()
			}
			if publisher != nil {
				publisher.Close()
			}
			coll.Stop()

			return nil
		},
	}
}

// pruneHistory drops readings older than retention once an hour.
func pruneHistory(ctx context.Context, db *storage.Database, retention time.Duration) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanOldReadings(retention)
			if err != nil {
				log.Printf("Error cleaning old readings: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("Removed %d readings older than %s", n, retention)
			}
		}
	}
}

func readCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read all fields once from the heat pump",
		Long:  "Connect to the heat pump, run one poll cycle and print the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hub, poller, err := openDevice(cfg)
			if err != nil {
				return err
			}
			defer hub.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Device.Timeout+5*time.Second)
			defer cancel()

			res, err := poller.PollOnce(ctx)
			if err != nil {
				return fmt.Errorf("failed to read data: %w", err)
			}
			for _, derr := range res.DecodeErrors {
				fmt.Fprintf(os.Stderr, "warning: %v\n", derr)
			}

			return printSnapshot(os.Stdout, res.Snapshot, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json|yaml)")
	return cmd
}

func printSnapshot(w io.Writer, snap *heatpump.Snapshot, format string) error {
	doc := struct {
		Timestamp time.Time                 `json:"timestamp" yaml:"timestamp"`
		Values    map[string]heatpump.Value `json:"values" yaml:"values"`
	}{snap.At, snap.Values()}
	return encode(w, doc, format)
}

func encode(w io.Writer, v interface{}, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json":
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connection to the heat pump",
		Long:  "Open a connection and read the setpoint register",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hc, err := cfg.ResolveHub()
			if err != nil {
				return err
			}

			fmt.Printf("Testing connection to %s (slave %d)...\n", hc.URL, cfg.Device.SlaveID)

			value, err := modbus.Probe(cmd.Context(), modbus.HubConfig{
				Name:    hc.Name,
				URL:     hc.URL,
				Timeout: hc.Timeout,
			}, cfg.Device.SlaveID)
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			fmt.Printf("  Setpoint register: %d °C\n", int16(value))
			return nil
		},
	}
}

// withCollector polls once and hands a collector to fn for a single command.
func withCollector(cmd *cobra.Command, fn func(ctx context.Context, c *collector.Collector) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub, poller, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	coll := collector.NewCollector(collector.CollectorConfig{
		Poller:   poller,
		Database: db,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*cfg.Device.Timeout+5*time.Second)
	defer cancel()

	// The bound of the setpoint comes from the device, so read it first.
	if _, err := coll.CollectOnce(ctx); err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	return fn(ctx, coll)
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <field> <value>",
		Short: "Write one field",
		Long:  "Validate and write one field. Values: numbers, on/off, option labels, HH:MM",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollector(cmd, func(ctx context.Context, c *collector.Collector) error {
				res, err := c.WriteText(ctx, collector.SourceCLI, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s = %s (register %d, words %v)\n", res.Field, res.Value, res.Address, res.Words)
				return nil
			})
		},
	}
}

func syncClockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-clock",
		Short: "Set the device clock to the local time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollector(cmd, func(ctx context.Context, c *collector.Collector) error {
				res, err := c.SyncClock(ctx, collector.SourceCLI)
				if err != nil {
					return err
				}
				fmt.Printf("Device clock set to %s\n", res.Value)
				return nil
			})
		},
	}
}

func fieldsCmd() *cobra.Command {
	var format string
	var setpointMax float64

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the register map as entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return encode(os.Stdout, heatpump.Entities(heatpump.FHS280(setpointMax)), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (json|yaml)")
	cmd.Flags().Float64Var(&setpointMax, "setpoint-max", heatpump.DefaultSetpointMax, "setpoint maximum")
	return cmd
}
