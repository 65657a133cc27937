package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// Store implements the memory, session, and feature persistence contracts
// plus distributed locking on a single Redis connection.
type Store struct {
	client *redis.Client
}

// New creates a Store connected per the given options, verifying the
// connection with a ping.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of the
// client's lifecycle; Close still closes it.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Key layout. Every key carries the aegis: prefix so one Redis database can
// be shared with other tenants.
const (
	memPrefix      = "aegis:mem:"
	hashPrefix     = "aegis:hash:"
	votesPrefix    = "aegis:votes:"
	voteCntPrefix  = "aegis:votecounts:"
	voteIdemPrefix = "aegis:voteidem:"
	refsPrefix     = "aegis:refs:"
	sessionPrefix  = "aegis:session:"
	featurePrefix  = "aegis:feature:"
	lockPrefix     = "aegis:lock:"

	expiryKey = "aegis:expiry"
)

func memKey(projectID, id string) string {
	return memPrefix + projectID + ":" + id
}

func hashKey(dedupKey string) string {
	return hashPrefix + dedupKey
}

func votesKey(projectID, memoryID string) string {
	return votesPrefix + projectID + ":" + memoryID
}

func voteCountKey(projectID, memoryID string) string {
	return voteCntPrefix + projectID + ":" + memoryID
}

func voteIdemKey(projectID, idemKey string) string {
	return voteIdemPrefix + projectID + ":" + idemKey
}

func refsKey(projectID, targetID string) string {
	return refsPrefix + projectID + ":" + targetID
}

func sessionKey(projectID, sessionID string) string {
	return sessionPrefix + projectID + ":" + sessionID
}

func featureKey(projectID, namespace, featureID string) string {
	return featurePrefix + projectID + ":" + namespace + ":" + featureID
}
