package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MySQLConfig holds configuration for a MySQL testcontainer.
type MySQLConfig struct {
	Image          string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultMySQLConfig returns sane defaults for the queue gateway's test
// suite: a throwaway database and root-equivalent credentials scoped to
// the container's lifetime.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Image:          "mysql:8.0",
		Username:       "qsbot",
		Password:       "qsbot",
		Database:       "qsbot_test",
		StartupTimeout: 90 * time.Second,
	}
}

// SetupMySQL starts a MySQL container and returns a DSN suitable for
// gorm.io/driver/mysql, plus a cleanup function.
func SetupMySQL(ctx context.Context, t *testing.T, config *MySQLConfig) (string, ContainerCleanup, error) {
	if config == nil {
		defaultConfig := DefaultMySQLConfig()
		config = &defaultConfig
	}

	req := testcontainers.ContainerRequest{
		Image:        config.Image,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": config.Password,
			"MYSQL_USER":          config.Username,
			"MYSQL_PASSWORD":      config.Password,
			"MYSQL_DATABASE":      config.Database,
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(config.StartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get mapped port: %w", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		config.Username, config.Password, host, port.Port(), config.Database)

	cleanup := createCleanupFunc(ctx, container, "MySQL")
	return dsn, cleanup, nil
}
