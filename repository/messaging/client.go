package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Nystya/txgroup/domain"
	"github.com/golang/protobuf/ptypes/empty"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RPCClient is the transport boundary: one synchronous request to the
// process addressed by remoteKey.
type RPCClient interface {
	Request(ctx context.Context, remoteKey string, msg *MessageDto) (*MessageDto, error)
}

// Resolver maps a remote key to a dial target.
type Resolver func(remoteKey string) (string, error)

func IdentityResolver(remoteKey string) (string, error) {
	if remoteKey == "" {
		return "", errors.New("empty remote key")
	}

	return remoteKey, nil
}

type GRPCClientConfig struct {
	Timeout  time.Duration
	Resolver Resolver
	DialOpts []grpc.DialOption

	// breaker opens after this many consecutive failures per remote key
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type peer struct {
	conn    *grpc.ClientConn
	breaker *gobreaker.CircuitBreaker
}

// GRPCClient keeps one connection and one circuit breaker per remote key.
type GRPCClient struct {
	config *GRPCClientConfig
	logger *zap.Logger

	peers map[string]*peer
	lock  *sync.Mutex
}

func NewGRPCClient(config *GRPCClientConfig, logger *zap.Logger) *GRPCClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.Resolver == nil {
		config.Resolver = IdentityResolver
	}

	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}

	return &GRPCClient{
		config: config,
		logger: logger,
		peers:  make(map[string]*peer),
		lock:   &sync.Mutex{},
	}
}

func (c *GRPCClient) peer(remoteKey string) (*peer, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if p, ok := c.peers[remoteKey]; ok {
		return p, nil
	}

	target, err := c.config.Resolver(remoteKey)
	if err != nil {
		return nil, err
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.config.DialOpts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	c.logger.Info("connected to participant", zap.String("remote_key", remoteKey), zap.String("target", target))

	p := &peer{
		conn: conn,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    remoteKey,
			Timeout: c.config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.config.BreakerFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				c.logger.Warn("participant breaker changed state",
					zap.String("remote_key", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
	}
	c.peers[remoteKey] = p

	return p, nil
}

func (c *GRPCClient) Request(ctx context.Context, remoteKey string, msg *MessageDto) (*MessageDto, error) {
	data, err := encode(msg)
	if err != nil {
		return nil, err
	}

	p, err := c.peer(remoteKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := p.breaker.Execute(func() (interface{}, error) {
		out := new(wrapperspb.BytesValue)
		if err := p.conn.Invoke(ctx, requestMethod, wrapperspb.Bytes(data), out); err != nil {
			return nil, err
		}

		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return decode(out.(*wrapperspb.BytesValue).GetValue())
}

func (c *GRPCClient) Ping(ctx context.Context, remoteKey string) error {
	p, err := c.peer(remoteKey)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	return p.conn.Invoke(ctx, pingMethod, &empty.Empty{}, &empty.Empty{})
}

func (c *GRPCClient) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	var errs []error
	for key, p := range c.peers {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}

		delete(c.peers, key)
	}

	return errors.Join(errs...)
}

// NotifyClient sends a unit notification and classifies the response.
type NotifyClient struct {
	rpc RPCClient
}

func NewNotifyClient(rpc RPCClient) *NotifyClient {
	return &NotifyClient{rpc: rpc}
}

func (n *NotifyClient) Notify(ctx context.Context, remoteKey string, params domain.NotifyUnitParams) domain.NotificationOutcome {
	msg, err := NotifyUnit(params)
	if err != nil {
		return domain.TransportFailure(domain.CommunicationFailure{RemoteKey: remoteKey, Err: err})
	}

	resp, err := n.rpc.Request(ctx, remoteKey, msg)
	if err != nil {
		return domain.TransportFailure(domain.CommunicationFailure{RemoteKey: remoteKey, Err: err})
	}

	if StatusOK(resp) {
		return domain.Ack()
	}

	if resp == nil {
		return domain.TransportFailure(domain.CommunicationFailure{RemoteKey: remoteKey, Err: errors.New("empty response")})
	}

	cause, err := DecodeCause(resp.Data)
	if err != nil {
		return domain.TransportFailure(domain.CommunicationFailure{RemoteKey: remoteKey, Err: err})
	}

	return domain.Rejected(cause)
}
