package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transports for the inbound push channel
const (
	TransportSSE       = "sse"
	TransportWebsocket = "websocket"
)

// Playback backends
const (
	PlayerMalgo = "malgo"
	PlayerSox   = "sox"
)

// Config holds all client configuration
type Config struct {
	ServerURL          string
	Transport          string // "sse" or "websocket"
	AudioMode          bool
	FlushInterval      time.Duration
	ReconnectDelay     time.Duration
	CaptureDir         string
	AutoGreet          string // Sent once per connection when non-empty
	AutoGreetDelay     time.Duration
	InputDevice        string
	OutputDevice       string
	Player             string // "malgo" or "sox"
	MicSampleRate      int
	PlaybackSampleRate int
	MaxBufferSize      int // Maximum bytes held by the frame buffer and capture accumulator
	SendQueueSize      int
	LogLevel           string
	LogPath            string
}

// RelayConfig holds the companion relay server configuration
type RelayConfig struct {
	Port              int
	RedisURL          string
	RedisPassword     string
	MaxSessions       int
	SessionTimeout    time.Duration
	GeminiAPIKey      string
	AllowedOrigins    []string
	KeepAlivePeriod   time.Duration
	MaxBufferSize     int
	SilenceRMS        float64
	SilenceChunks     int
	MinUtteranceBytes int
	LogLevel          string
	LogPath           string
}

// LoadConfig loads client configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		ServerURL:          "http://localhost:8000",
		Transport:          TransportSSE,
		FlushInterval:      200 * time.Millisecond,
		ReconnectDelay:     5 * time.Second,
		CaptureDir:         ".",
		AutoGreetDelay:     time.Second,
		Player:             PlayerMalgo,
		MicSampleRate:      16000,
		PlaybackSampleRate: 24000,
		MaxBufferSize:      5 * 1024 * 1024, // 5MB default
		SendQueueSize:      256,
		LogLevel:           "info",
	}

	if serverURL := os.Getenv("SERVER_URL"); serverURL != "" {
		config.ServerURL = strings.TrimRight(serverURL, "/")
	}

	if transport := os.Getenv("TRANSPORT"); transport != "" {
		switch transport {
		case TransportSSE, TransportWebsocket:
			config.Transport = transport
		default:
			return nil, fmt.Errorf("invalid TRANSPORT: must be 'sse' or 'websocket'")
		}
	}

	if audioMode := os.Getenv("AUDIO_MODE"); audioMode != "" {
		b, err := strconv.ParseBool(audioMode)
		if err != nil {
			return nil, fmt.Errorf("invalid AUDIO_MODE: %w", err)
		}
		config.AudioMode = b
	}

	if err := durationMillis("FLUSH_INTERVAL_MS", &config.FlushInterval); err != nil {
		return nil, err
	}
	if err := durationMillis("RECONNECT_DELAY_MS", &config.ReconnectDelay); err != nil {
		return nil, err
	}
	if err := durationMillis("AUTO_GREET_DELAY_MS", &config.AutoGreetDelay); err != nil {
		return nil, err
	}

	if dir := os.Getenv("CAPTURE_DIR"); dir != "" {
		config.CaptureDir = dir
	}

	config.AutoGreet = os.Getenv("AUTO_GREET")
	config.InputDevice = os.Getenv("INPUT_DEVICE")
	config.OutputDevice = os.Getenv("OUTPUT_DEVICE")

	if player := os.Getenv("PLAYER"); player != "" {
		switch player {
		case PlayerMalgo, PlayerSox:
			config.Player = player
		default:
			return nil, fmt.Errorf("invalid PLAYER: must be 'malgo' or 'sox'")
		}
	}

	if err := positiveInt("MIC_SAMPLE_RATE", &config.MicSampleRate); err != nil {
		return nil, err
	}
	if err := positiveInt("PLAYBACK_SAMPLE_RATE", &config.PlaybackSampleRate); err != nil {
		return nil, err
	}
	if err := positiveInt("MAX_BUFFER_SIZE", &config.MaxBufferSize); err != nil {
		return nil, err
	}
	if err := positiveInt("SEND_QUEUE_SIZE", &config.SendQueueSize); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	config.LogPath = os.Getenv("LOG_PATH")

	return config, nil
}

// LoadRelayConfig loads relay configuration from environment variables with defaults
func LoadRelayConfig() (*RelayConfig, error) {
	_ = godotenv.Load()

	config := &RelayConfig{
		Port:              8000,
		RedisURL:          "localhost:6379",
		MaxSessions:       100,
		SessionTimeout:    30 * time.Minute,
		AllowedOrigins:    []string{"*"},
		KeepAlivePeriod:   30 * time.Second,
		MaxBufferSize:     5 * 1024 * 1024,
		SilenceRMS:        800,
		SilenceChunks:     3,
		MinUtteranceBytes: 30000,
		LogLevel:          "info",
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	if err := positiveInt("PORT", &config.Port); err != nil {
		return nil, err
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	if err := positiveInt("MAX_SESSIONS", &config.MaxSessions); err != nil {
		return nil, err
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		if k <= 0 {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: must be positive")
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	if err := positiveInt("MAX_BUFFER_SIZE", &config.MaxBufferSize); err != nil {
		return nil, err
	}

	if rms := os.Getenv("SILENCE_RMS"); rms != "" {
		r, err := strconv.ParseFloat(rms, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SILENCE_RMS: %w", err)
		}
		config.SilenceRMS = r
	}

	if err := positiveInt("SILENCE_CHUNKS", &config.SilenceChunks); err != nil {
		return nil, err
	}
	if err := positiveInt("MIN_UTTERANCE_BYTES", &config.MinUtteranceBytes); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	config.LogPath = os.Getenv("LOG_PATH")

	return config, nil
}

func positiveInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return fmt.Errorf("invalid %s: must be positive", name)
	}
	*dst = n
	return nil
}

func durationMillis(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if ms <= 0 {
		return fmt.Errorf("invalid %s: must be positive", name)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
