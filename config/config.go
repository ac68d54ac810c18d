package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Nystya/txgroup/repository/exception"
)

const (
	LedgerMemory   = "memory"
	LedgerWAL      = "wal"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

type Config struct {
	Port      string
	AdminAddr string
	LogLevel  string
	PeerList  []string

	Ledger      string
	WalConfig   *exception.WriteAheadLogConfig
	RedisAddr   string
	PostgresDSN string

	KafkaBrokers string
	KafkaTopic   string

	NotifyTimeout time.Duration
	NotifyWorkers int
}

// Load parses args (without the program name).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("txgroup", flag.ContinueOnError)

	myPort := fs.String("port", "5000", "my port")
	adminAddr := fs.String("admin-addr", ":8080", "admin and metrics http address")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	peers := fs.String("peers", "", "participants' addresses")

	ledger := fs.String("ledger", LedgerWAL, "exception ledger backend: memory, wal, redis or postgres")
	walDir := fs.String("wal-dir", "./resources", "exception log directory")
	walMaxKB := fs.Int64("wal-max-kb", 100, "exception log segment size in KB")
	redisAddr := fs.String("redis-addr", "127.0.0.1:6379", "redis address for the redis ledger")
	postgresDSN := fs.String("postgres-dsn", "", "postgres dsn for the postgres ledger")

	kafkaBrokers := fs.String("kafka-brokers", "", "comma separated kafka brokers; empty disables escalation")
	kafkaTopic := fs.String("kafka-topic", "txgroup.compensation", "topic for compensation events")

	notifyTimeout := fs.Duration("notify-timeout", 5*time.Second, "timeout of one unit notification")
	notifyWorkers := fs.Int("notify-workers", 1, "concurrent notifications per group")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch *ledger {
	case LedgerMemory, LedgerWAL, LedgerRedis:
	case LedgerPostgres:
		if *postgresDSN == "" {
			return nil, fmt.Errorf("ledger %q needs -postgres-dsn", *ledger)
		}
	default:
		return nil, fmt.Errorf("unknown ledger %q", *ledger)
	}

	if *notifyWorkers < 1 {
		return nil, fmt.Errorf("notify-workers must be at least 1, got %d", *notifyWorkers)
	}

	peerList := strings.Split(*peers, ",")

	if peerList[0] == "" {
		peerList = make([]string, 0)
	}

	return &Config{
		Port:      *myPort,
		AdminAddr: *adminAddr,
		LogLevel:  *logLevel,
		PeerList:  peerList,
		Ledger:    *ledger,
		WalConfig: &exception.WriteAheadLogConfig{
			Dir:         *walDir,
			MaxFileSize: *walMaxKB,
			Prefix:      *myPort,
		},
		RedisAddr:     *redisAddr,
		PostgresDSN:   *postgresDSN,
		KafkaBrokers:  *kafkaBrokers,
		KafkaTopic:    *kafkaTopic,
		NotifyTimeout: *notifyTimeout,
		NotifyWorkers: *notifyWorkers,
	}, nil
}

func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	return cfg
}
