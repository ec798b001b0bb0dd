package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/catalog"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
)

var (
	configPath string
	verbose    bool
	offBar     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fabatc",
	Short: "Automatic tool changer panel for FabMo engines",
	Long: `fabatc keeps the tool changer's slot records in step with a FabMo engine.

It loads tools through the engine's tool change and measure macros (C71, C72),
records measured bit lengths and writes the tool table back to the engine
configuration after every change.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the panel API, events and static files",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools on and off the bar",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := setupRegistry(cmd)
		if err != nil {
			return err
		}
		snap := reg.Snapshot()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, snap.Description)
		for _, v := range append(snap.Slots, snap.OffBar...) {
			mark := " "
			if v.Loaded {
				mark = "*"
			}
			fmt.Fprintln(out, mark, v)
		}
		return nil
	},
}

var changeCmd = &cobra.Command{
	Use:   "change <slot>",
	Short: "Load the tool in a bar slot, measuring it if its length is unknown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[0])
		}
		reg, err := setupRegistry(cmd)
		if err != nil {
			return err
		}
		if offBar {
			return reg.SelectOffBar(n - 1)
		}
		err = reg.ChangeTool(cmd.Context(), n-1)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reg.DescribeCurrentTool())
		return nil
	},
}

var measureCmd = &cobra.Command{
	Use:   "measure <slot>",
	Short: "Run the measure routine for a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[0])
		}
		reg, err := setupRegistry(cmd)
		if err != nil {
			return err
		}
		return reg.RequestMeasurement(cmd.Context(), n-1, offBar)
	},
}

var routineCmd = &cobra.Command{
	Use:       "routine <zero|home|measure-all|plate-offset|calibrate>",
	Short:     "Run a fixed machine routine",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"zero", "home", "measure-all", "plate-offset", "calibrate"},
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := machine.ParseRoutine(args[0])
		if err != nil {
			return err
		}
		svc, err := setup(cmd)
		if err != nil {
			return err
		}
		return svc.m.RunRoutine(cmd.Context(), r)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "fabatc.yaml", "Configuration file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.String("engine", "", "FabMo engine URL")
	pf.String("persist-url", "", "URL the tool table is written to (default <engine>/config/opensbp.json)")
	pf.Duration("poll-interval", 0, "Engine status poll interval while a program runs")
	pf.Duration("start-grace", 0, "How long a submitted program may stay idle before it is considered done")
	pf.String("status-policy", "", "How STATUS is derived: loaded or legacy")
	pf.String("catalog", "", "Bit catalog file or URL (default <dir>/bit_information.json)")
	pf.String("dir", "", "Data directory")
	pf.Bool("simulate", false, "Use an in-memory machine instead of the engine")
	pf.String("sim-config", "", "Configuration file used by the simulator")

	serveCmd.Flags().String("addr", "", "Address to bind the server to")
	changeCmd.Flags().BoolVar(&offBar, "off-bar", false, "Slot is an off-bar tool number")
	measureCmd.Flags().BoolVar(&offBar, "off-bar", false, "Slot is an off-bar tool number")

	rootCmd.AddCommand(serveCmd, toolsCmd, changeCmd, measureCmd, routineCmd)
}

func loadCommandConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}
	cfg.applyFlags(cmd.Flags())
	return cfg, nil
}

func setup(cmd *cobra.Command) (*service, error) {
	cfg, err := loadCommandConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newService(cmd.Context(), cfg, logger)
}

func setupRegistry(cmd *cobra.Command) (*atc.Registry, error) {
	svc, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	return svc.Registry(cmd.Context())
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg, err := svc.Registry(ctx)
	if err != nil {
		logger.Error("tool configuration unavailable, tool routes disabled until reload", zap.Error(err))
	}
	a := newAPI(reg, svc.m, cfg.Dir, logger.Named("api"))
	a.reload = svc.Registry
	poll := cfg.Engine.PollInterval
	if poll < time.Second {
		poll = time.Second
	}
	apiCtx, cancel := context.WithCancel(context.Background())
	a.start(apiCtx, poll)
	if src := cfg.catalogSource(); !catalog.IsURL(src) {
		err = catalog.Watch(apiCtx, src, logger.Named("catalog"), func(bits []string) {
			svc.SetBits(bits)
			if cur := a.current(); cur != nil {
				cur.SetBits(bits)
			}
		})
		if err != nil {
			logger.Warn("bit catalog will not be reloaded", zap.String("source", src), zap.Error(err))
		}
	}
	defer func() {
		cancel()
		a.Close()
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: withRequestLog(logger, a)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("dir", cfg.Dir), zap.Bool("simulate", cfg.Simulate))
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func withRequestLog(log *zap.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Debug("request", zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.String("remote", req.RemoteAddr))
		h.ServeHTTP(w, req)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
