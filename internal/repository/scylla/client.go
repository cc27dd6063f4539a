package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/util"
)

// Client owns the cluster session used by the activity repository.
type Client struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &Client{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

func (c *Client) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}

func (c *Client) HealthCheck() error {
	if c.Session == nil {
		return fmt.Errorf("scylla session not initialized")
	}
	if err := c.Session.Query("SELECT release_version FROM system.local").Exec(); err != nil {
		return fmt.Errorf("scylla health query failed: %w", err)
	}
	return nil
}
