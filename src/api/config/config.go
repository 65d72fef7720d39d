package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	MySQLDSN    string
	RedisURL    string
	JWTSecret   string
	Port        string
	UploadDir   string
	EnableSSL   bool
	SSLCert     string
	SSLKey      string
	MsgRate     int   // messages per minute per user
	MaxFileSize int64 // bytes, per uploaded file
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	_ = godotenv.Load()

	rate, _ := strconv.Atoi(getenv("MSG_RATE", "60"))
	maxFile, _ := strconv.ParseInt(getenv("MAX_FILE_SIZE", "26214400"), 10, 64)
	return Config{
		MySQLDSN:    getenv("MYSQL_DSN", "casecomms:casecomms@tcp(localhost:3306)/casecomms?parseTime=true"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   getenv("JWT_SECRET", ""),
		Port:        getenv("PORT", "8080"),
		UploadDir:   getenv("UPLOAD_DIR", "./uploads"),
		EnableSSL:   os.Getenv("ENABLE_SSL") == "true",
		SSLCert:     os.Getenv("SSL_CERT"),
		SSLKey:      os.Getenv("SSL_KEY"),
		MsgRate:     rate,
		MaxFileSize: maxFile,
	}
}
