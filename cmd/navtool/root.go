package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"navtile/manager"
)

var (
	cfgPath string
	cfg     *manager.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "navtool",
	Short:         "build, inspect and query navigation mesh caches",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath != "" {
			c, err := manager.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			cfg = c
		} else {
			cfg = manager.DefaultConfig()
		}
		log = newLogger(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "hjson configuration file")
	rootCmd.AddCommand(buildCmd, infoCmd, pathCmd)
}

func newLogger(lc manager.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if lc.Console || lc.File == "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level))
	}
	if lc.File != "" {
		roller := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(roller),
			level))
	}
	return zap.New(zapcore.NewTee(cores...))
}
