package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/decisiontrace-backend/internal/platform/envutil"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type Config struct {
	DSN            string        `yaml:"-"`
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"-"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Migrate        bool          `yaml:"migrate"`
}

func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           "5432",
		User:           "postgres",
		Name:           "decisiontrace",
		ConnectTimeout: 5 * time.Second,
	}
}

// ApplyEnv overlays POSTGRES_* environment variables. POSTGRES_DSN wins over the parts.
func (c Config) ApplyEnv() Config {
	c.DSN = envutil.String("POSTGRES_DSN", c.DSN)
	c.Host = envutil.String("POSTGRES_HOST", c.Host)
	c.Port = envutil.String("POSTGRES_PORT", c.Port)
	c.User = envutil.String("POSTGRES_USER", c.User)
	c.Password = envutil.String("POSTGRES_PASSWORD", c.Password)
	c.Name = envutil.String("POSTGRES_NAME", c.Name)
	c.ConnectTimeout = envutil.Duration("POSTGRES_CONNECT_TIMEOUT", c.ConnectTimeout)
	c.Migrate = envutil.Bool("POSTGRES_MIGRATE", c.Migrate)
	return c
}

func (c Config) dsn() string {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(ctx context.Context, logg *logger.Logger, cfg Config) (*PostgresService, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	serviceLog := logg.With("service", "PostgresService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres handle: %w", err)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresService{db: db, log: serviceLog}
	if cfg.Migrate {
		if err := EnsureEmbeddingSchema(db); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		serviceLog.Info("Embedding schema ensured")
	}
	return s, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
