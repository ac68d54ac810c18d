package controller

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Nystya/txgroup/domain"
	"github.com/Nystya/txgroup/repository/exception"
	"github.com/Nystya/txgroup/repository/messaging"
	"github.com/Nystya/txgroup/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type capturingParticipant struct {
	lock     sync.Mutex
	received []domain.NotifyUnitParams
	reject   map[string]error
}

func (c *capturingParticipant) ApplyOutcome(_ context.Context, params domain.NotifyUnitParams) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.received = append(c.received, params)

	return c.reject[params.UnitID]
}

func (c *capturingParticipant) UnitState(string, string) domain.State {
	return domain.StateUnknown
}

func dialer(t *testing.T, participant service.Participant) *messaging.GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	messaging.RegisterNotifyServer(server, NewNotifyServer(participant, nil))

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	client := messaging.NewGRPCClient(&messaging.GRPCClientConfig{
		Timeout: time.Second,
		Resolver: func(string) (string, error) {
			return "passthrough:///bufnet", nil
		},
		DialOpts: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}, nil)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNotifyServerReconstructsParams(t *testing.T) {
	participant := &capturingParticipant{}
	client := dialer(t, participant)

	params := domain.NotifyUnitParams{GroupID: "g", UnitID: "u", UnitType: "t", State: domain.StateCommitted}

	outcome := messaging.NewNotifyClient(client).Notify(context.Background(), "r1", params)
	assert.Equal(t, domain.OutcomeAck, outcome.Kind)

	require.Len(t, participant.received, 1)
	assert.Equal(t, params, participant.received[0])
}

func TestNotifyServerRejectsWithCause(t *testing.T) {
	participant := &capturingParticipant{reject: map[string]error{
		"u": &domain.FailureCause{Code: "E42", Message: "insufficient stock", Detail: map[string]string{"sku": "a"}},
	}}
	client := dialer(t, participant)

	params := domain.NotifyUnitParams{GroupID: "g", UnitID: "u", UnitType: "t", State: domain.StateRolledBack}

	outcome := messaging.NewNotifyClient(client).Notify(context.Background(), "r1", params)
	require.Equal(t, domain.OutcomeRejected, outcome.Kind)
	assert.Equal(t, &domain.FailureCause{Code: "E42", Message: "insufficient stock", Detail: map[string]string{"sku": "a"}}, outcome.Cause)
}

func TestNotifyServerUnsupportedAction(t *testing.T) {
	server := NewNotifyServer(&capturingParticipant{}, nil)

	_, err := server.Request(context.Background(), &messaging.MessageDto{Action: "join-group"})
	assert.Error(t, err)
}

func TestCoordinatorEndToEnd(t *testing.T) {
	participant := service.NewUnitParticipant(map[string]service.UnitHandler{
		"db": &failingUnitHandler{failOn: "u2"},
	}, nil)
	client := dialer(t, participant)
	ledger := exception.NewMemoryStore()

	manager := service.NewSimpleTransactionManager(service.ManagerDeps{
		Ledger:        ledger,
		Client:        messaging.NewNotifyClient(client),
		NotifyWorkers: 2,
	})
	ctx := context.Background()

	require.NoError(t, manager.Begin(ctx, "g1"))
	for _, unitID := range []string{"u1", "u2", "u3"} {
		require.NoError(t, manager.Join(ctx, "g1", service.TransactionUnit{UnitID: unitID, UnitType: "db", MessageContextID: "node-a"}))
	}

	require.NoError(t, manager.Commit(ctx, "g1"))

	assert.Equal(t, domain.StateCommitted, participant.UnitState("g1", "u1"))
	assert.Equal(t, domain.StateUnknown, participant.UnitState("g1", "u2"))
	assert.Equal(t, domain.StateCommitted, participant.UnitState("g1", "u3"))

	records, err := ledger.Exceptions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u2", records[0].UnitID)
	assert.Equal(t, domain.ExceptionBusiness, records[0].Kind)

	require.NoError(t, manager.Close(ctx, "g1"))
	assert.Equal(t, domain.StateCommitted, manager.TransactionState(ctx, "g1"))
}

type failingUnitHandler struct {
	failOn string
}

func (f *failingUnitHandler) Commit(_ context.Context, _ string, unitID string) error {
	if unitID == f.failOn {
		return &domain.FailureCause{Code: "E1", Message: "cannot commit"}
	}

	return nil
}

func (f *failingUnitHandler) Rollback(context.Context, string, string) error {
	return nil
}
