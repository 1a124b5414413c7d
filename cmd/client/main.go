package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"hoots/pkg/api"
	"hoots/pkg/app"
	"hoots/pkg/config"
	"hoots/pkg/identity"
)

func main() {
	var (
		configPath  string
		apiURL      string
		logLevel    string
		sessionFile string
		kafkaAddr   string
		kafkaTopic  string
		kafkaBatch  int
	)

	flag.StringVar(&configPath, "conf", "", "Path to TOML config file.")
	flag.StringVar(&apiURL, "api", "", "Hoots backend base URL.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&sessionFile, "session", "", "File the session token is kept in.")
	flag.StringVar(&kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'.")
	flag.StringVar(&kafkaTopic, "topic", "", "Kafka topic.")
	flag.IntVar(&kafkaBatch, "batch", 0, "Kafka batch size.")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[client] %v", err)
	}

	// Override config with flags if set
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if sessionFile != "" {
		cfg.SessionFile = sessionFile
	}
	if kafkaAddr != "" {
		cfg.KafkaAddr = kafkaAddr
	}
	if kafkaTopic != "" {
		cfg.KafkaTopic = kafkaTopic
	}
	if kafkaBatch != 0 {
		cfg.KafkaBatch = kafkaBatch
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultPath("session")
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = defaultPath("history")
	}

	if !cfg.IsValid() {
		log.Fatalf("[client] invalid config: %+v", cfg)
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}

	var opts []api.Option
	if cfg.KafkaAddr != "" && cfg.KafkaTopic != "" {
		kafkaWriter := &kafka.Writer{
			Addr:      kafka.TCP(cfg.KafkaAddr),
			Topic:     cfg.KafkaTopic,
			BatchSize: cfg.KafkaBatch,
		}
		defer kafkaWriter.Close()

		if err := createTopic(kafkaWriter.Addr.String(), kafkaWriter.Topic); err != nil {
			log.Warnf("[client] failed to create Kafka topic: %v", err)
		}
		opts = append(opts, api.WithLogWriter(kafkaWriter))
	} else {
		log.Debug("[client] kafka was not configured, request logs will not be sent to Kafka")
	}

	session := identity.New(identity.FileSessions{Path: cfg.SessionFile})
	client, err := api.New(cfg.API(), session, opts...)
	if err != nil {
		log.Fatalf("[client] failed to create API client: %v", err)
	}
	a := app.New(session, client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Warnf("[client] failed to load hoots for the restored session: %v", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("[client] failed to initialize readline: %v", err)
	}
	defer rl.Close()
	log.SetOutput(rl.Stderr())

	cli := NewCLI(a, rl, rl.Stdout())
	if err := cli.open(ctx, "/"); err != nil {
		fmt.Fprintln(cli.Out, "Error:", err)
	}

	for {
		err := cli.Run(ctx)
		switch {
		case err == nil:
		case errors.Is(err, readline.ErrInterrupt):
			fmt.Fprintln(cli.Out, "Use 'exit' to quit.")
		case errors.Is(err, io.EOF), errors.Is(err, errExit):
			return
		default:
			fmt.Fprintln(cli.Out, "Error:", err)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// defaultPath places name under the user's config directory.
func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "hoots", name)
}

func createTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
