package configuration

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	UsersCollection         string `json:"usersCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type UploadConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Uploads      UploadConfig `json:"uploads"`

	// secret material comes from the environment, never the config file
	JWTSecret     string `json:"-"`
	MessageSecret string `json:"-"`
}

// LoadConfig reads the JSON config file and overlays secrets from the
// environment. A .env file is honored when present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.JWTSecret = os.Getenv("KEJANI_JWT_SECRET")
	config.MessageSecret = os.Getenv("KEJANI_MESSAGE_SECRET")

	if config.JWTSecret == "" {
		return nil, errors.New("KEJANI_JWT_SECRET must be set")
	}
	if config.MessageSecret == "" {
		return nil, errors.New("KEJANI_MESSAGE_SECRET must be set")
	}

	return &config, nil
}

// ConfigPath returns the config file location, overridable via env.
func ConfigPath() string {
	if path := os.Getenv("KEJANI_CONFIG"); path != "" {
		return path
	}
	return "config.json"
}
