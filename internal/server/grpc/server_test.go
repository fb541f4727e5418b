package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	pb "github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/safeshare/internal/server/services"
	"github.com/dmitrijs2005/safeshare/internal/server/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.EndpointAddrGRPC = "127.0.0.1:0"
	return cfg
}

func newTestServer(cfg *config.Config, seq ...string) *GRPCServer {
	svc := services.NewSessionService(sessions.NewMemoryRepository(), cfg, logging.Discard())
	if len(seq) > 0 {
		svc.WithCodeGenerator(services.SequenceCodes(seq...))
	}
	coord := signaling.NewCoordinator(svc, signaling.NewHub(), logging.Discard())
	return NewGRPCServer(cfg, logging.Discard(), coord)
}

// startBufconn serves s over an in-memory listener and returns a client.
func startBufconn(t *testing.T, s *GRPCServer) pb.SignalingClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cc.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	return pb.NewSignalingClient(cc)
}

func openStream(t *testing.T, client pb.SignalingClient, ctx context.Context) pb.Signaling_ConnectClient {
	t.Helper()
	stream, err := client.Connect(ctx)
	require.NoError(t, err)
	return stream
}

func sendEnv(t *testing.T, stream pb.Signaling_ConnectClient, event string, id uint64, payload any) {
	t.Helper()
	env, err := pb.NewEnvelope(event, id, payload)
	require.NoError(t, err)
	frame, err := pb.Frame(env)
	require.NoError(t, err)
	require.NoError(t, stream.Send(frame))
}

func recvEnv(t *testing.T, stream pb.Signaling_ConnectClient) *pb.Envelope {
	t.Helper()
	frame, err := stream.Recv()
	require.NoError(t, err)
	env, err := pb.Unframe(frame)
	require.NoError(t, err)
	return env
}

func recvAck(t *testing.T, stream pb.Signaling_ConnectClient, id uint64) pb.Ack {
	t.Helper()
	env := recvEnv(t, stream)
	require.Equal(t, pb.EventAck, env.Event)
	require.Equal(t, id, env.ID)
	var ack pb.Ack
	require.NoError(t, env.Decode(&ack))
	return ack
}

var meta = pb.FileMetadata{Name: "a.txt", SizeBytes: 128000, MimeType: "text/plain"}

func TestConnect_Handshake(t *testing.T) {
	client := startBufconn(t, newTestServer(testConfig(), "AB12CD"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sender := openStream(t, client, ctx)
	sendEnv(t, sender, pb.EventCreateTransfer, 1, pb.CreateTransfer{SenderID: "s1", FileMetadata: meta})
	ack := recvAck(t, sender, 1)
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, "AB12CD", ack.Code)

	sendEnv(t, sender, pb.EventSendOffer, 0, pb.SendOffer{Code: "AB12CD", SenderID: "s1", Offer: json.RawMessage(`{"sdp":"o"}`)})

	receiver := openStream(t, client, ctx)
	sendEnv(t, receiver, pb.EventJoinTransfer, 7, pb.JoinTransfer{Code: "AB12CD", ReceiverID: "r1"})
	ack = recvAck(t, receiver, 7)
	require.True(t, ack.Success, ack.Message)
	require.NotNil(t, ack.Session)
	assert.JSONEq(t, `{"sdp":"o"}`, string(ack.Session.Offer))

	env := recvEnv(t, sender)
	assert.Equal(t, pb.EventReceiverJoined, env.Event)

	sendEnv(t, receiver, pb.EventSendAnswer, 0, pb.SendAnswer{Code: "AB12CD", ReceiverID: "r1", Answer: json.RawMessage(`{"sdp":"a"}`)})
	env = recvEnv(t, sender)
	assert.Equal(t, pb.EventAnswerReceived, env.Event)

	sendEnv(t, sender, pb.EventTransferCompleted, 0, pb.TransferCompleted{Code: "AB12CD"})
	env = recvEnv(t, receiver)
	assert.Equal(t, pb.EventTransferFinalized, env.Event)

	require.NoError(t, sender.CloseSend())
	require.NoError(t, receiver.CloseSend())
}

func TestConnect_MalformedFrameIsDropped(t *testing.T) {
	client := startBufconn(t, newTestServer(testConfig(), "AB12CD"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream := openStream(t, client, ctx)
	require.NoError(t, stream.Send(wrapperspb.Bytes([]byte("not json"))))

	sendEnv(t, stream, pb.EventCreateTransfer, 2, pb.CreateTransfer{SenderID: "s1", FileMetadata: meta})
	ack := recvAck(t, stream, 2)
	assert.True(t, ack.Success)
}

func TestConnect_OriginPolicy(t *testing.T) {
	client := startBufconn(t, newTestServer(testConfig(), "AB12CD"))

	t.Run("foreign origin rejected", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = metadata.AppendToOutgoingContext(ctx, common.OriginHeaderName, "http://evil.example")

		stream := openStream(t, client, ctx)
		_, err := stream.Recv()
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("allowed origin accepted", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = metadata.AppendToOutgoingContext(ctx, common.OriginHeaderName, "http://localhost:3000")

		stream := openStream(t, client, ctx)
		sendEnv(t, stream, pb.EventCreateTransfer, 1, pb.CreateTransfer{SenderID: "s1", FileMetadata: meta})
		assert.True(t, recvAck(t, stream, 1).Success)
	})
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.EndpointAddrGRPC = "127.0.0.1:99999"
	srv := newTestServer(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, srv.Run(ctx))
}
