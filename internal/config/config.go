package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Document  DocumentConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type ModelConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

type DocumentConfig struct {
	Path string
}

type RetrievalConfig struct {
	ChunkSize int
	TopK      int
}

type SessionConfig struct {
	// DataDir selects the SQLite-backed session store when non-empty.
	// Empty means in-memory sessions that die with the process.
	DataDir string
	TTL     time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Document: DocumentConfig{
			Path: "data/handbook.pdf",
		},
		Retrieval: RetrievalConfig{
			ChunkSize: 800,
			TopK:      3,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win over
// .env entries. Load fails when any required model variable is missing, so
// the process refuses to start half-configured.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	cfg.Model.Endpoint = strings.TrimRight(getenv("DOCCHAT_MODEL_ENDPOINT"), "/")
	cfg.Model.APIKey = getenv("DOCCHAT_MODEL_API_KEY")
	cfg.Model.Deployment = getenv("DOCCHAT_MODEL_DEPLOYMENT")
	cfg.Model.APIVersion = getenv("DOCCHAT_MODEL_API_VERSION")

	if v := getenv("DOCCHAT_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid DOCCHAT_SERVER_PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := getenv("DOCCHAT_DOC_PATH"); v != "" {
		cfg.Document.Path = v
	}
	if v := getenv("DOCCHAT_CHUNK_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return Config{}, fmt.Errorf("invalid DOCCHAT_CHUNK_SIZE %q", v)
		}
		cfg.Retrieval.ChunkSize = size
	}
	if v := getenv("DOCCHAT_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k <= 0 {
			return Config{}, fmt.Errorf("invalid DOCCHAT_TOP_K %q", v)
		}
		cfg.Retrieval.TopK = k
	}
	if v := getenv("DOCCHAT_DATA_DIR"); v != "" {
		cfg.Session.DataDir = v
	}
	if v := getenv("DOCCHAT_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl < 0 {
			return Config{}, fmt.Errorf("invalid DOCCHAT_SESSION_TTL %q", v)
		}
		cfg.Session.TTL = ttl
	}
	if v := getenv("DOCCHAT_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitOrigins(v)
	}
	if v := getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if missing := missingRequired(cfg); len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func missingRequired(cfg Config) []string {
	var missing []string
	if cfg.Model.Endpoint == "" {
		missing = append(missing, "DOCCHAT_MODEL_ENDPOINT")
	}
	if cfg.Model.APIKey == "" {
		missing = append(missing, "DOCCHAT_MODEL_API_KEY")
	}
	if cfg.Model.Deployment == "" {
		missing = append(missing, "DOCCHAT_MODEL_DEPLOYMENT")
	}
	if cfg.Model.APIVersion == "" {
		missing = append(missing, "DOCCHAT_MODEL_API_VERSION")
	}
	return missing
}

func splitOrigins(v string) []string {
	parts := strings.Split(v, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimRight(p, "/"))
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
