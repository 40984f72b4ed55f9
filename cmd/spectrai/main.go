package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/menta2k/spectrai"
	"github.com/menta2k/spectrai/internal/config"
	"github.com/menta2k/spectrai/internal/logging"
	"github.com/menta2k/spectrai/internal/utils"
)

// app carries the state shared by all subcommands
type app struct {
	v          *viper.Viper
	cfgFile    string
	projectDir string
	lenient    bool

	cfg *config.Config
	log *logrus.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.NewViper(), in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		if spectrai.IsUserError(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		}
		os.Exit(1)
	}
}

// rootCommand creates the root command with all subcommands attached
func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spectrai",
		Short:         "Annotate spectrogram images with YOLO bounding boxes",
		Version:       spectrai.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	if err := a.setupFlags(rootCmd); err != nil {
		// flag names are static; a failure here is a programming error
		panic(err)
	}

	rootCmd.AddCommand(
		a.initCommand(),
		a.lsCommand(),
		a.showCommand(),
		a.boxesCommand(),
		a.detectCommand(),
		a.renderCommand(),
		a.labelCommand(),
		a.replCommand(),
	)
	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func (a *app) setupFlags(rootCmd *cobra.Command) error {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml or json, default "+config.GetConfigPath()+")")
	pf.StringVarP(&a.projectDir, "project", "p", ".", "project directory")

	pf.String("log-level", a.v.GetString("logging.level"), "log level: debug, info, warn, error")
	pf.String("log-file", a.v.GetString("logging.file"), "also write logs to this rotating file")
	pf.String("backend", a.v.GetString("detection.backend"), "detector backend: yolo, ollama or llamacpp")
	pf.String("url", a.v.GetString("detection.url"), "detector server URL (ollama, llamacpp)")
	pf.String("model", a.v.GetString("detection.model"), "model name or file; defaults to the project's model")
	pf.Duration("timeout", a.v.GetDuration("detection.timeout"), "detection timeout, 0 for none")
	pf.Bool("autosave", a.v.GetBool("session.auto_save"), "save edits when moving to another image")
	pf.BoolVar(&a.lenient, "lenient", false, "list annotation files without an image instead of failing")

	bindings := map[string]string{
		"logging.level":     "log-level",
		"logging.file":      "log-file",
		"detection.backend": "backend",
		"detection.url":     "url",
		"detection.model":   "model",
		"detection.timeout": "timeout",
		"session.auto_save": "autosave",
	}
	for key, flag := range bindings {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// initialize loads .env files and configuration, then builds the logger
func (a *app) initialize() error {
	if err := config.LoadDotEnv(".env", filepath.Join(a.projectDir, ".env")); err != nil {
		return err
	}

	cfgFile := a.cfgFile
	if cfgFile == "" && utils.FileExists(config.GetConfigPath()) {
		cfgFile = config.GetConfigPath()
	}
	cfg, err := config.Load(a.v, cfgFile)
	if err != nil {
		return err
	}
	if a.lenient {
		cfg.Session.StrictPairing = false
	}
	a.cfg = cfg

	log, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		NoColors:   cfg.Logging.NoColors,
		Caller:     cfg.Logging.Caller,
	}, a.errOut)
	if err != nil {
		return err
	}
	a.log = log
	a.log.WithFields(logrus.Fields{"project": a.projectDir, "config": cfgFile}).Debug("configuration loaded")
	return nil
}
