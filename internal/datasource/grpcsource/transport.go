// Package grpcsource implements fetchsource.DataSource over a gRPC batch
// endpoint, using dynamicpb to build and read request/response messages
// from their descriptors rather than generated stubs: the method, and the
// shape of its batch request and response, are runtime values, so one
// DataSource implementation drives any service exposing a batch RPC.
package grpcsource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Transport keeps one connection pool per endpoint (holding up to
// maxConnsPerEndpoint idle *grpc.ClientConn values and dialing a new one
// when none is idle) and invokes a method by descriptor, constructing its
// response with dynamicpb.
type Transport struct {
	dialOptions []grpc.DialOption

	mu     sync.RWMutex
	pools  map[string]*connPool
	closed atomic.Bool
}

// NewTransport builds a Transport. With no dialOptions, it dials
// insecurely, which is adequate for the service-mesh-internal gRPC this
// engine expects to sit behind.
func NewTransport(dialOptions ...grpc.DialOption) *Transport {
	if len(dialOptions) == 0 {
		dialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{dialOptions: dialOptions, pools: make(map[string]*connPool)}
}

// Call invokes method against endpoint with request, returning a message
// built from method's output descriptor.
func (t *Transport) Call(ctx context.Context, endpoint string, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	if t.closed.Load() {
		return nil, fmt.Errorf("grpcsource: transport closed")
	}
	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer t.returnConn(endpoint, cc)

	fullMethod := fmt.Sprintf("/%s/%s", method.Parent().FullName(), method.Name())
	resp := dynamicpb.NewMessage(method.Output())
	if err := cc.Invoke(ctx, fullMethod, request, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close tears down every pooled connection.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.dialOptions)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}

const maxConnsPerEndpoint = 2

type connPool struct {
	endpoint    string
	dialOptions []grpc.DialOption
	conns       chan *grpc.ClientConn
	closed      atomic.Bool
}

func newConnPool(endpoint string, dialOptions []grpc.DialOption) *connPool {
	return &connPool{endpoint: endpoint, dialOptions: dialOptions, conns: make(chan *grpc.ClientConn, maxConnsPerEndpoint)}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpcsource: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, p.endpoint, p.dialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}
