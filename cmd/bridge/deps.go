package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cuongbtq/beanstalk-bridge/internal/config"
	"github.com/cuongbtq/beanstalk-bridge/internal/history"
	"github.com/cuongbtq/beanstalk-bridge/internal/pipeline"
	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
	"github.com/cuongbtq/beanstalk-bridge/shared/logger"
	"github.com/cuongbtq/beanstalk-bridge/shared/postgresql"
	"github.com/cuongbtq/beanstalk-bridge/shared/rabbitmq"
)

// deps holds the clients shared by the commands. Fields are nil when the
// matching config section is disabled.
type deps struct {
	logger   *logger.Logger
	db       *postgresql.Client
	rabbit   *rabbitmq.Client
	registry *prometheus.Registry
	runner   *pipeline.Runner
	storage  *history.Storage
}

func (d *deps) Close() {
	if d.rabbit != nil {
		d.rabbit.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
	if d.logger != nil {
		d.logger.Close()
	}
}

// initDeps connects everything the task runner needs
func initDeps(ctx context.Context, cfg *config.Config) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.logger, err = initLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var recorder pipeline.Recorder
	if cfg.Database.Enabled {
		d.db, err = initPostgreSQL(&cfg.Database, d.logger.Component("postgresql"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err = history.Migrate(ctx, d.db.GetDB()); err != nil {
			return nil, err
		}
		d.storage = history.NewStorage(d.db.GetDB())
		recorder = d.storage
		d.logger.Info("Database connection established")
	}

	var publisher pipeline.Publisher
	if cfg.RabbitMQ.Enabled {
		d.rabbit, err = initRabbitMQ(&cfg.RabbitMQ, d.logger.Component("rabbitmq"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		publisher = d.rabbit
		d.logger.Info("RabbitMQ connection established")
	}

	d.runner, err = pipeline.NewRunner(pipeline.RunnerConfig{
		Tasks: cfg.Tasks,
		Dial: queue.NewBeanstalkdDialer(d.logger.Component("beanstalkd"), queue.DialOptions{
			DialTimeout:   cfg.Beanstalkd.DialTimeout,
			RetryAttempts: cfg.Beanstalkd.RetryAttempts,
			RetryInterval: cfg.Beanstalkd.RetryInterval,
		}),
		Publisher: publisher,
		Recorder:  recorder,
		Metrics:   queue.NewMetrics(d.registry),
		Logger:    d.logger.Component("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   timeFormat,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client used by the mirror output
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
