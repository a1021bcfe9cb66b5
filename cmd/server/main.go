package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/config"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/server"
)

var (
	Version   = "0.9.1"
	BuildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mpp-solar poller v%s (build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, fallback, err := config.LoadConfigOrDefault(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if fallback {
		fmt.Printf("%s not found, using default config\n", *configFile)
	}

	log := setupLogger(cfg.Log)
	log.Infof("mpp-solar poller v%s starting", Version)
	log.Infof("config file: %s", *configFile)

	p, err := server.NewPoller(context.Background(), cfg, log)
	if err != nil {
		log.Fatalf("create poller: %v", err)
	}

	if err := p.Start(); err != nil {
		log.Fatalf("poller exited: %v", err)
	}
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("open log file: %v, falling back to stdout", err)
		}
	}

	return log
}
