package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	HTTP    HTTPConfig
	Mail    MailConfig
	OCR     OCRConfig
	Storage StorageConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// MailConfig configuración del buzón de ingesta (Gmail API).
// La consulta por defecto restringe a mensajes con adjunto o de remitentes
// bancarios; los remitentes confiables marcan evidencia bank-notification.
type MailConfig struct {
	Account         string // buzón por defecto para la ingesta
	Query           string // consulta Gmail (ej. "has:attachment newer_than:30d")
	CredentialsJSON string // credenciales de service account (JSON inline)
	CredentialsFile string // o ruta al archivo de credenciales
	TrustedSenders  []string
	MaxParallel     int // mensajes procesados en paralelo por corrida
}

// OCRConfig configuración del motor OCR (Google Cloud Vision).
type OCRConfig struct {
	CredentialsJSON string
	CredentialsFile string
}

// StorageConfig configuración del almacenamiento durable de comprobantes (S3).
type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // vacío = AWS; con valor = compatible S3 (MinIO)
	AccessKey string
	SecretKey string
	Prefix    string // prefijo de llaves (ej. "slips/")
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, MAIL_ACCOUNT, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "recaudo-api"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "recaudo"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "recaudo-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Mail: MailConfig{
			Account:         getString(v, "MAIL_ACCOUNT", ""),
			Query:           getString(v, "MAIL_QUERY", "has:attachment newer_than:30d"),
			CredentialsJSON: getString(v, "GOOGLE_CREDENTIALS", ""),
			CredentialsFile: getString(v, "GOOGLE_APPLICATION_CREDENTIALS", ""),
			TrustedSenders:  getStringSlice(v, "MAIL_TRUSTED_SENDERS"),
			MaxParallel:     getInt(v, "MAIL_MAX_PARALLEL", 4),
		},
		OCR: OCRConfig{
			CredentialsJSON: getString(v, "GOOGLE_CREDENTIALS", ""),
			CredentialsFile: getString(v, "GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Storage: StorageConfig{
			Bucket:    getString(v, "STORAGE_BUCKET", ""),
			Region:    getString(v, "STORAGE_REGION", "us-east-1"),
			Endpoint:  getString(v, "STORAGE_ENDPOINT", ""),
			AccessKey: getString(v, "STORAGE_ACCESS_KEY", ""),
			SecretKey: getString(v, "STORAGE_SECRET_KEY", ""),
			Prefix:    getString(v, "STORAGE_PREFIX", "slips/"),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

// getStringSlice acepta lista separada por comas en la env var.
func getStringSlice(v *viper.Viper, key string) []string {
	raw := v.GetString(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
