package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all runtime configuration. Values come from environment
// variables with defaults suitable for local development.
type Settings struct {
	ServerAddr string

	CommandsFile string

	GatewayMode        string // "cli" or "mock"
	GatewayCLI         string
	ExecTimeout        time.Duration
	PollInterval       time.Duration
	StalenessWindow    time.Duration

	KafkaEnabled     bool
	KafkaBrokers     []string
	EventsTopic      string
	TargetStateTopic string
	StateFeedGroupID string
}

const (
	DefaultServerAddr       = ":8080"
	DefaultCommandsFile     = "commands.yaml"
	DefaultGatewayCLI       = "labgrid-client"
	DefaultKafkaBrokers     = "localhost:9092"
	DefaultEventsTopic      = "dut_dashboard_events"
	DefaultTargetStateTopic = "dut_target_states"
	DefaultStateFeedGroupID = "dut-dashboard-state-feed"
)

// Load reads settings from the environment.
func Load() Settings {
	return Settings{
		ServerAddr:       getenv("SERVER_ADDR", DefaultServerAddr),
		CommandsFile:     getenv("COMMANDS_FILE", DefaultCommandsFile),
		GatewayMode:      getenv("GATEWAY_MODE", "cli"),
		GatewayCLI:       getenv("GATEWAY_CLI", DefaultGatewayCLI),
		ExecTimeout:      time.Duration(getenvInt("EXEC_TIMEOUT_SECONDS", 30)) * time.Second,
		PollInterval:     time.Duration(getenvInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		StalenessWindow:  time.Duration(getenvInt("STALENESS_MINUTES", 60)) * time.Minute,
		KafkaEnabled:     getenv("KAFKA_ENABLED", "") == "true",
		KafkaBrokers:     strings.Split(getenv("KAFKA_BROKERS", DefaultKafkaBrokers), ","),
		EventsTopic:      getenv("DASHBOARD_EVENTS_TOPIC", DefaultEventsTopic),
		TargetStateTopic: getenv("TARGET_STATE_TOPIC", DefaultTargetStateTopic),
		StateFeedGroupID: getenv("STATE_FEED_GROUP_ID", DefaultStateFeedGroupID),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
