package grpcsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func dialOpts() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

func TestConnPoolReusesAReturnedConnection(t *testing.T) {
	pool := newConnPool("passthrough:///test", dialOpts())
	defer pool.close()

	cc1, err := pool.get(context.Background())
	require.NoError(t, err)
	pool.put(cc1)

	cc2, err := pool.get(context.Background())
	require.NoError(t, err)
	require.Same(t, cc1, cc2)
}

func TestConnPoolGetAfterCloseFails(t *testing.T) {
	pool := newConnPool("passthrough:///test", dialOpts())
	pool.close()

	_, err := pool.get(context.Background())
	require.Error(t, err)
}

func TestTransportGetConnCreatesOnePoolPerEndpoint(t *testing.T) {
	tr := NewTransport(dialOpts()...)
	defer tr.Close()

	cc, err := tr.getConn(context.Background(), "passthrough:///a")
	require.NoError(t, err)
	tr.returnConn("passthrough:///a", cc)

	tr.mu.RLock()
	n := len(tr.pools)
	tr.mu.RUnlock()
	require.Equal(t, 1, n)
}

func TestTransportCallAfterCloseFails(t *testing.T) {
	tr := NewTransport(dialOpts()...)
	require.NoError(t, tr.Close())

	_, err := tr.Call(context.Background(), "passthrough:///a", nil, nil)
	require.Error(t, err)
}
