package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	PublicURL    string

	// Параметры движка рейтинга.
	EloInitial     int
	EloMin         int
	EloMax         int
	KFactorByMatch map[string]int // importance -> K

	// Окно, в течение которого утверждённый результат можно оспорить.
	DisputeWindow time.Duration

	// Порядок тай-брейков таблицы лидеров, применяется после очков и рейтинга.
	LeaderboardTiebreakers []string

	// Получатели тревог о нарушении целостности.
	AlertEmails []string

	// SMTP для сервиса уведомлений.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Cloudflare R2 для файлов-доказательств.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load() // Отсутствие .env не считаем фатальным

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	eloInitial, err := intEnv("ELO_INITIAL", 1500)
	if err != nil {
		return nil, err
	}
	eloMin, err := intEnv("ELO_MIN", 100)
	if err != nil {
		return nil, err
	}
	eloMax, err := intEnv("ELO_MAX", 3000)
	if err != nil {
		return nil, err
	}
	if eloMin >= eloMax {
		return nil, fmt.Errorf("ELO_MIN (%d) must be less than ELO_MAX (%d)", eloMin, eloMax)
	}
	if eloInitial < eloMin || eloInitial > eloMax {
		return nil, fmt.Errorf("ELO_INITIAL (%d) must be within [%d, %d]", eloInitial, eloMin, eloMax)
	}

	kRegular, err := intEnv("ELO_K_REGULAR", 32)
	if err != nil {
		return nil, err
	}
	kPlayoff, err := intEnv("ELO_K_PLAYOFF", 40)
	if err != nil {
		return nil, err
	}
	kChampionship, err := intEnv("ELO_K_CHAMPIONSHIP", 48)
	if err != nil {
		return nil, err
	}

	disputeWindow := 48 * time.Hour
	if raw := os.Getenv("DISPUTE_WINDOW"); raw != "" {
		disputeWindow, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPUTE_WINDOW environment variable: %w", err)
		}
	}

	tiebreakers := []string{"head_to_head", "win_pct", "elo"}
	if raw := os.Getenv("LEADERBOARD_TIEBREAKERS"); raw != "" {
		tiebreakers = nil
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tiebreakers = append(tiebreakers, t)
			}
		}
	}

	var alertEmails []string
	if raw := os.Getenv("ALERT_EMAILS"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				alertEmails = append(alertEmails, e)
			}
		}
	}

	smtpPort, err := intEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,
		PublicURL:    os.Getenv("PUBLIC_URL"),

		EloInitial: eloInitial,
		EloMin:     eloMin,
		EloMax:     eloMax,
		KFactorByMatch: map[string]int{
			"regular":      kRegular,
			"playoff":      kPlayoff,
			"championship": kChampionship,
		},

		DisputeWindow:          disputeWindow,
		LeaderboardTiebreakers: tiebreakers,
		AlertEmails:            alertEmails,

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: smtpPort,
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		SMTPFrom: os.Getenv("SMTP_FROM"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
