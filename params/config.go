package params

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// Admin is the only identity allowed to register tradable assets.
	Admin common.Address
	// NativeSymbol is the reserved quote-asset symbol.
	NativeSymbol string
}

type Node struct {
	ListenAddr string // REST/WebSocket listen address
	DBPath     string // Pebble database directory
	LogFile    string
}

type Stream struct {
	// KafkaBrokers empty = fill streaming disabled.
	KafkaBrokers []string
	KafkaTopic   string
}

type Config struct {
	Exchange Exchange
	Node     Node
	Stream   Stream
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Admin:        common.Address{},
			NativeSymbol: "ETH",
		},
		Node: Node{
			ListenAddr: ":8080",
			DBPath:     "./data/ledger.db",
			LogFile:    "data/node.log",
		},
		Stream: Stream{
			KafkaBrokers: nil,
			KafkaTopic:   "spotdex.fills",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if admin := os.Getenv("ADMIN_ADDRESS"); admin != "" && common.IsHexAddress(admin) {
		cfg.Exchange.Admin = common.HexToAddress(admin)
	}
	if sym := os.Getenv("NATIVE_SYMBOL"); sym != "" {
		cfg.Exchange.NativeSymbol = sym
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Node.ListenAddr = addr
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Node.DBPath = dbPath
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}

	// Brokers from comma-separated list, e.g. "localhost:9092,localhost:9093"
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Stream.KafkaBrokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Stream.KafkaTopic = topic
	}

	return cfg
}
