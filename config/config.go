package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Media    MediaConfig
	Chat     ChatConfig
	VideoGen VideoGenConfig
	Speech   SpeechConfig
	Redis    RedisConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	ShutdownTimeout    int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// MediaConfig holds on-disk layout and external tool locations.
type MediaConfig struct {
	DataDir     string
	FFmpegPath  string
	FFprobePath string
	MaxUploadMB int
}

// UploadedVideosDir is where uploaded and saved generated videos live.
func (m MediaConfig) UploadedVideosDir() string { return filepath.Join(m.DataDir, "uploaded_videos") }

// UploadedAudioDir is where uploaded music and synthesized voiceovers live.
func (m MediaConfig) UploadedAudioDir() string { return filepath.Join(m.DataDir, "uploaded_audio") }

// EditedVideosDir is where edit job outputs are written.
func (m MediaConfig) EditedVideosDir() string { return filepath.Join(m.DataDir, "edited_videos") }

// ChatConfig points at an OpenAI-compatible chat completion endpoint.
type ChatConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
}

// VideoGenConfig holds credentials for the video generation backends.
type VideoGenConfig struct {
	RunwayAPIKey   string
	LumaAPIKey     string
	ReplicateToken string
	DefaultModel   string // runwayml, luma or replicate
}

// SpeechConfig holds ElevenLabs settings.
type SpeechConfig struct {
	APIKey  string
	VoiceID string
}

// RedisConfig holds Redis connection settings. Empty Addr disables publishing.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the bucket edited reels are published to.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ReelsBucket          string
	PresignExpireMinutes int
	Endpoint             string // optional S3-compatible endpoint
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 60),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 600),
			ShutdownTimeout:    getEnvInt("SHUTDOWN_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Media: MediaConfig{
			DataDir:     getEnv("DATA_DIR", "."),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 512),
		},
		Chat: ChatConfig{
			APIKey:     getEnv("LLAMA_NEMOTRON", ""),
			BaseURL:    getEnv("CHAT_BASE_URL", "https://integrate.api.nvidia.com/v1"),
			Model:      getEnv("CHAT_MODEL", "nvidia/llama-3.3-nemotron-super-49b-v1"),
			TimeoutSec: getEnvInt("CHAT_TIMEOUT_SEC", 120),
		},
		VideoGen: VideoGenConfig{
			RunwayAPIKey:   getEnv("RUNWAY_API_KEY", ""),
			LumaAPIKey:     getEnv("LUMA_API_KEY", ""),
			ReplicateToken: getEnv("REPLICATE_API_TOKEN", ""),
			DefaultModel:   strings.ToLower(getEnv("DEFAULT_VIDEO_MODEL", "runwayml")),
		},
		Speech: SpeechConfig{
			APIKey:  getEnv("ELEVEN_API_KEY", ""),
			VoiceID: getEnv("ELEVEN_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ReelsBucket:          getEnv("AWS_S3_REELS_BUCKET", "reels-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
		},
	}
	return cfg, nil
}

// PublishingEnabled reports whether edited reels should be queued for S3 upload.
func (c *Config) PublishingEnabled() bool {
	return c.Redis.Addr != "" && c.AWS.Region != ""
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// SplitTrim splits a comma-separated setting, dropping blanks.
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
