// Package milvus persists answer vectors for similarity search.
package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// ClientFactory is the signature for creating a Milvus SDK client.
type ClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

// newMilvusClient is a variable to allow mocking in tests.
var newMilvusClient ClientFactory = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeInternal, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

// Client manages a Milvus connection with a periodic health probe.
type Client struct {
	milvusClient client.Client
	cfg          config.MilvusConfig
	logger       logging.Logger
	healthy      atomic.Bool
	cancel       context.CancelFunc
	mu           sync.RWMutex
}

// NewClient connects and starts the health probe.
func NewClient(cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address required")
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("milvus")

	ctx, cancel := context.WithCancel(context.Background())
	mc, err := connect(ctx, cfg)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create milvus client")
	}

	c := &Client{
		milvusClient: mc,
		cfg:          cfg,
		logger:       logger,
		cancel:       cancel,
	}

	if err := c.CheckHealth(ctx); err != nil {
		c.Close()
		return nil, ErrConnectionFailed
	}
	go c.healthLoop(ctx)

	logger.Info("Milvus client connected", logging.String("address", cfg.Addr))
	return c, nil
}

func connect(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return newMilvusClient(connectCtx, client.Config{
		Address:     cfg.Addr,
		DBName:      cfg.DBName,
		DialOptions: dialOpts,
	})
}

// CheckHealth probes the cluster and records the result.
func (c *Client) CheckHealth(ctx context.Context) error {
	c.mu.RLock()
	mc := c.milvusClient
	c.mu.RUnlock()

	if mc == nil {
		return ErrConnectionFailed
	}
	if _, err := mc.CheckHealth(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("Milvus health check failed", logging.Err(err))
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the last probed state.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// SDK returns the underlying Milvus client.
func (c *Client) SDK() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.milvusClient
}

// Close stops the health probe and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.milvusClient != nil {
		_ = c.milvusClient.Close()
	}
	c.logger.Info("Milvus client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.CheckHealth(ctx); err != nil {
				failures++
			} else {
				failures = 0
			}
			if failures >= 3 {
				c.logger.Warn("Milvus consecutive failures, attempting reconnect")
				if err := c.reconnect(ctx); err != nil {
					c.logger.Error("Milvus reconnect failed", logging.Err(err))
				} else {
					failures = 0
				}
			}
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.milvusClient != nil {
		_ = c.milvusClient.Close()
	}
	mc, err := connect(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.milvusClient = mc
	c.logger.Warn("Milvus client reconnected")
	return nil
}
