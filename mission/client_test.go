package mission_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/chunk"
	"pkt.systems/robotrpc/client"
	"pkt.systems/robotrpc/mission"
	"pkt.systems/robotrpc/status"
	"pkt.systems/robotrpc/wire"
)

// fakeRobot is an in-memory mission service. It accepts every lease it is
// shown unless revoked names the resource, and reports the accepted lease
// with its root epoch advanced by one.
type fakeRobot struct {
	loaded   *mission.LoadMissionRequest
	revoked  string
	state    mission.State
	answered map[int64]int64
}

const questionID = 11

func (r *fakeRobot) questions() []mission.Question {
	if r.loaded == nil {
		return nil
	}
	if _, done := r.answered[questionID]; done {
		return nil
	}
	return []mission.Question{{
		ID:     questionID,
		Source: "dock",
		Text:   "Dock occupied. Wait?",
		Options: []mission.AnswerOption{
			{Answer: 1, Text: "wait"},
			{Answer: 2, Text: "skip"},
		},
	}}
}

func (r *fakeRobot) answer(req *mission.AnswerQuestionRequest) *mission.AnswerQuestionResponse {
	if req.QuestionID != questionID || r.loaded == nil {
		return &mission.AnswerQuestionResponse{Status: mission.AnswerStatusInvalidQuestionID}
	}
	if _, done := r.answered[questionID]; done {
		return &mission.AnswerQuestionResponse{Status: mission.AnswerStatusAlreadyAnswered}
	}
	if req.Code != 1 && req.Code != 2 {
		return &mission.AnswerQuestionResponse{Status: mission.AnswerStatusInvalidCode}
	}
	if r.answered == nil {
		r.answered = make(map[int64]int64)
	}
	r.answered[questionID] = req.Code
	return &mission.AnswerQuestionResponse{Status: mission.AnswerStatusOK}
}

func (r *fakeRobot) tree() *mission.GetMissionResponse {
	if r.loaded == nil {
		return &mission.GetMissionResponse{}
	}
	return &mission.GetMissionResponse{ID: 7, Mission: r.loaded.Mission, Info: r.info()}
}

func (r *fakeRobot) results(leases []api.Lease) []api.LeaseUseResult {
	out := make([]api.LeaseUseResult, 0, len(leases))
	for _, l := range leases {
		out = append(out, r.result(l))
	}
	return out
}

func (r *fakeRobot) result(l api.Lease) api.LeaseUseResult {
	attempted := l.Clone()
	if l.Resource == r.revoked {
		return api.LeaseUseResult{Status: api.LeaseUseRevoked, Owner: "other-client", AttemptedLease: &attempted}
	}
	latest := l.Clone()
	latest.Sequence[0]++
	return api.LeaseUseResult{Status: api.LeaseUseOK, AttemptedLease: &attempted, LatestKnownLease: &latest}
}

func (r *fakeRobot) load(req *mission.LoadMissionRequest) *mission.LoadMissionResponse {
	resp := &mission.LoadMissionResponse{LeaseUseResults: r.results(req.Leases)}
	if bytes.Contains(req.Mission, []byte("syntax error")) {
		resp.Status = mission.LoadStatusCompileError
		resp.FailedNodes = []string{"root"}
		return resp
	}
	r.loaded = req
	r.state = mission.StatePaused
	resp.Status = mission.LoadStatusOK
	resp.Info = r.info()
	return resp
}

func (r *fakeRobot) info() *mission.Info {
	if r.loaded == nil {
		return nil
	}
	return &mission.Info{ID: 7, Name: r.loaded.Name, NodeCount: int64(len(r.loaded.Mission))}
}

func recvChunks(stream grpc.ServerStream, dst wire.Message) error {
	s := chunk.NewStream()
	for {
		dc := new(api.DataChunk)
		if err := stream.RecvMsg(dc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if _, err := s.Push(dc); err != nil {
			return grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
	}
	if err := s.Reassembler().Close(); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return s.Reassembler().Unmarshal(dst)
}

func sendChunks(stream grpc.ServerStream, msg wire.Message, size int) error {
	chunks, err := chunk.Encode(msg, size)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := stream.SendMsg(c.Wire()); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRobot) serve(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	switch method {
	case mission.MethodLoadMission:
		var req mission.LoadMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(r.load(&req))
	case mission.MethodLoadMissionAsChunks:
		var req mission.LoadMissionRequest
		if err := recvChunks(stream, &req); err != nil {
			return err
		}
		return stream.SendMsg(r.load(&req))
	case mission.MethodLoadMissionAsChunks2:
		var req mission.LoadMissionRequest
		if err := recvChunks(stream, &req); err != nil {
			return err
		}
		return sendChunks(stream, r.load(&req), 16)
	case mission.MethodPlayMission:
		var req mission.PlayMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		resp := &mission.PlayMissionResponse{Status: mission.PlayStatusNoMission, LeaseUseResults: r.results(req.Leases)}
		if r.loaded != nil {
			resp.Status = mission.PlayStatusOK
			r.state = mission.StateRunning
		}
		return stream.SendMsg(resp)
	case mission.MethodPauseMission:
		var req mission.PauseMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		resp := &mission.PauseMissionResponse{Status: mission.PauseStatusOK}
		if req.Lease != nil {
			res := r.result(*req.Lease)
			resp.LeaseUseResult = &res
		}
		r.state = mission.StatePaused
		return stream.SendMsg(resp)
	case mission.MethodRestartMission:
		var req mission.RestartMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(&mission.RestartMissionResponse{Status: mission.RestartStatusOK, LeaseUseResults: r.results(req.Leases)})
	case mission.MethodGetState:
		var req mission.GetStateRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(&mission.GetStateResponse{State: r.state, TickCounter: 12, Questions: r.questions()})
	case mission.MethodGetInfo:
		var req mission.GetInfoRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(&mission.GetInfoResponse{Info: r.info()})
	case mission.MethodGetInfoAsChunks:
		var req mission.GetInfoRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return sendChunks(stream, &mission.GetInfoResponse{Info: r.info()}, 3)
	case mission.MethodGetMission:
		var req mission.GetMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(r.tree())
	case mission.MethodGetMissionAsChunks:
		var req mission.GetMissionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return sendChunks(stream, r.tree(), 7)
	case mission.MethodAnswerQuestion:
		var req mission.AnswerQuestionRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(r.answer(&req))
	}
	return grpcstatus.Errorf(codes.Unimplemented, "unknown method %s", method)
}

func newMissionClient(t *testing.T, robot *fakeRobot, opts ...client.Option) (*mission.Client, *client.Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnknownServiceHandler(robot.serve))
	go func() {
		_ = gs.Serve(lis)
	}()
	conn, err := grpc.NewClient("passthrough:///robot",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})
	rpc := client.New(conn, opts...)
	if err := rpc.Wallet().Add(api.Lease{Resource: mission.DefaultResource, Sequence: []uint64{3}}); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return mission.New(rpc), rpc
}

func bodyEpoch(t *testing.T, rpc *client.Client) uint64 {
	t.Helper()
	l, err := rpc.Wallet().Get(mission.DefaultResource)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return l.Epoch()
}

func TestLoadPlayPauseFlow(t *testing.T) {
	robot := &fakeRobot{}
	mc, rpc := newMissionClient(t, robot)
	ctx := context.Background()

	if _, err := mc.PlayMission(ctx, &mission.PlayMissionRequest{}); !errors.Is(err, status.DomainStatusFailure) {
		t.Fatalf("expected NO_MISSION failure, got %v", err)
	}

	loaded, err := mc.LoadMission(ctx, &mission.LoadMissionRequest{Name: "patrol", Mission: []byte("walk;scan;dock")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Info == nil || loaded.Info.Name != "patrol" {
		t.Fatalf("unexpected info %+v", loaded.Info)
	}

	if _, err := mc.PlayMission(ctx, &mission.PlayMissionRequest{}); err != nil {
		t.Fatalf("play: %v", err)
	}
	state, err := mc.GetState(ctx, nil)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.State != mission.StateRunning {
		t.Fatalf("expected running, got %s", state.State)
	}

	if _, err := mc.PauseMission(ctx, &mission.PauseMissionRequest{}, ""); err != nil {
		t.Fatalf("pause: %v", err)
	}
	// play(NO_MISSION), load, play and pause each advanced the body lease.
	if epoch := bodyEpoch(t, rpc); epoch != 7 {
		t.Fatalf("expected body lease at epoch 7, got %d", epoch)
	}
}

func TestPlayNoMissionCarriesCode(t *testing.T) {
	mc, _ := newMissionClient(t, &fakeRobot{})
	resp, err := mc.PlayMission(context.Background(), &mission.PlayMissionRequest{})
	var se *status.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *status.Error, got %v", err)
	}
	if se.Domain != "PlayMissionResponse_Status" || se.Code != int32(mission.PlayStatusNoMission) || se.Detail != "STATUS_NO_MISSION" {
		t.Fatalf("unexpected error %+v", se)
	}
	if resp == nil || resp.Status != mission.PlayStatusNoMission {
		t.Fatalf("expected response alongside failure, got %+v", resp)
	}
}

func TestLoadMissionAsChunks(t *testing.T) {
	robot := &fakeRobot{}
	mc, _ := newMissionClient(t, robot, client.WithChunkSize(10))
	tree := bytes.Repeat([]byte("node;"), 200)

	resp, err := mc.LoadMissionAsChunks(context.Background(), &mission.LoadMissionRequest{Name: "long", Mission: tree})
	if err != nil {
		t.Fatalf("load as chunks: %v", err)
	}
	if resp.Info.NodeCount != int64(len(tree)) {
		t.Fatalf("robot saw %d bytes, want %d", resp.Info.NodeCount, len(tree))
	}
	if !bytes.Equal(robot.loaded.Mission, tree) {
		t.Fatal("robot stored a different mission")
	}
}

func TestLoadMissionAsChunksCompileError(t *testing.T) {
	mc, _ := newMissionClient(t, &fakeRobot{}, client.WithChunkSize(4))
	resp, err := mc.LoadMissionAsChunks(context.Background(), &mission.LoadMissionRequest{Mission: []byte("syntax error here")})
	if !errors.Is(err, status.DomainStatusFailure) {
		t.Fatalf("expected domain failure, got %v", err)
	}
	if resp == nil || resp.Status != mission.LoadStatusCompileError || len(resp.FailedNodes) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestLoadMissionAsChunks2(t *testing.T) {
	robot := &fakeRobot{}
	mc, rpc := newMissionClient(t, robot, client.WithChunkSize(8), client.WithChunkChecksums(true))

	resp, err := mc.LoadMissionAsChunks2Async(context.Background(), &mission.LoadMissionRequest{Name: "bidi", Mission: []byte("walk;walk;walk;scan")}).
		Wait(context.Background())
	if err != nil {
		t.Fatalf("load as chunks2: %v", err)
	}
	if resp.Status != mission.LoadStatusOK || resp.Info.Name != "bidi" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if epoch := bodyEpoch(t, rpc); epoch != 4 {
		t.Fatalf("expected epoch 4, got %d", epoch)
	}
}

func TestPauseRevoked(t *testing.T) {
	robot := &fakeRobot{revoked: mission.DefaultResource}
	mc, rpc := newMissionClient(t, robot)
	resp, err := mc.PauseMission(context.Background(), &mission.PauseMissionRequest{}, mission.DefaultResource)
	if !errors.Is(err, status.LeaseNotOwned) {
		t.Fatalf("expected LeaseNotOwned, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}
	if epoch := bodyEpoch(t, rpc); epoch != 3 {
		t.Fatalf("revoked lease must leave wallet untouched, got %d", epoch)
	}
}

func TestRestartNeedsLease(t *testing.T) {
	mc, _ := newMissionClient(t, &fakeRobot{})
	_, err := mc.RestartMission(context.Background(), &mission.RestartMissionRequest{}, "arm")
	if !errors.Is(err, status.LeaseUnavailable) {
		t.Fatalf("expected LeaseUnavailable for unleased resource, got %v", err)
	}
	if _, err := mc.RestartMission(context.Background(), &mission.RestartMissionRequest{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestGetInfoVariants(t *testing.T) {
	robot := &fakeRobot{}
	mc, _ := newMissionClient(t, robot)
	ctx := context.Background()

	empty, err := mc.GetInfo(ctx)
	if err != nil {
		t.Fatalf("get info: %v", err)
	}
	if empty.Info != nil {
		t.Fatalf("expected no mission info, got %+v", empty.Info)
	}
	if _, err := mc.LoadMission(ctx, &mission.LoadMissionRequest{Name: "inspection", Mission: []byte("scan")}); err != nil {
		t.Fatalf("load: %v", err)
	}
	info, err := mc.GetInfoAsChunks(ctx)
	if err != nil {
		t.Fatalf("get info as chunks: %v", err)
	}
	if info.Info == nil || info.Info.Name != "inspection" || info.Info.ID != 7 {
		t.Fatalf("unexpected info %+v", info.Info)
	}
}

func TestNilRequestsActAsEmpty(t *testing.T) {
	robot := &fakeRobot{}
	mc, rpc := newMissionClient(t, robot, client.WithChunkSize(4))
	ctx := context.Background()

	calls := []struct {
		name string
		run  func() error
	}{
		{"LoadMission", func() error { _, err := mc.LoadMission(ctx, nil); return err }},
		{"LoadMissionAsChunks", func() error { _, err := mc.LoadMissionAsChunks(ctx, nil); return err }},
		{"LoadMissionAsChunks2", func() error { _, err := mc.LoadMissionAsChunks2(ctx, nil); return err }},
		{"PlayMission", func() error { _, err := mc.PlayMission(ctx, nil); return err }},
		{"PauseMission", func() error { _, err := mc.PauseMission(ctx, nil, ""); return err }},
		{"RestartMission", func() error { _, err := mc.RestartMission(ctx, nil); return err }},
		{"GetState", func() error { _, err := mc.GetState(ctx, nil); return err }},
		{"GetMission", func() error { _, err := mc.GetMission(ctx, nil); return err }},
		{"GetMissionAsChunks", func() error { _, err := mc.GetMissionAsChunks(ctx, nil); return err }},
	}
	for _, c := range calls {
		if err := c.run(); err != nil {
			t.Fatalf("%s(nil): %v", c.name, err)
		}
	}
	// Six leased calls each advanced the body lease once.
	if epoch := bodyEpoch(t, rpc); epoch != 9 {
		t.Fatalf("expected body lease at epoch 9, got %d", epoch)
	}
	if _, err := mc.AnswerQuestion(ctx, nil); !errors.Is(err, status.DomainStatusFailure) {
		t.Fatalf("expected invalid question failure, got %v", err)
	}
}

func TestNilRequestLeaseAccessors(t *testing.T) {
	t.Parallel()

	var play *mission.PlayMissionRequest
	if play.GetLeases() != nil {
		t.Fatal("nil request reported leases")
	}
	play.SetLeases([]api.Lease{{Resource: "body", Sequence: []uint64{1}}})
	var pause *mission.PauseMissionRequest
	if pause.GetLease() != nil {
		t.Fatal("nil request reported a lease")
	}
	pause.SetLease(&api.Lease{Resource: "body", Sequence: []uint64{1}})
}

func TestGetMissionVariants(t *testing.T) {
	robot := &fakeRobot{}
	mc, _ := newMissionClient(t, robot)
	ctx := context.Background()

	empty, err := mc.GetMission(ctx, &mission.GetMissionRequest{})
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if len(empty.Mission) != 0 || empty.Info != nil {
		t.Fatalf("expected no mission, got %+v", empty)
	}
	tree := bytes.Repeat([]byte("walk;scan;"), 30)
	if _, err := mc.LoadMission(ctx, &mission.LoadMissionRequest{Name: "loop", Mission: tree}); err != nil {
		t.Fatalf("load: %v", err)
	}
	for name, get := range map[string]func(context.Context, *mission.GetMissionRequest) (*mission.GetMissionResponse, error){
		"unary":   mc.GetMission,
		"chunked": mc.GetMissionAsChunks,
	} {
		resp, err := get(ctx, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if resp.ID != 7 || !bytes.Equal(resp.Mission, tree) || resp.Info == nil || resp.Info.Name != "loop" {
			t.Fatalf("%s: unexpected response id=%d info=%+v", name, resp.ID, resp.Info)
		}
	}
}

func TestAnswerQuestion(t *testing.T) {
	robot := &fakeRobot{}
	mc, rpc := newMissionClient(t, robot)
	ctx := context.Background()

	if _, err := mc.LoadMission(ctx, &mission.LoadMissionRequest{Name: "dock", Mission: []byte("dock")}); err != nil {
		t.Fatalf("load: %v", err)
	}
	state, err := mc.GetState(ctx, nil)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Questions) != 1 || state.Questions[0].ID != questionID || len(state.Questions[0].Options) != 2 {
		t.Fatalf("unexpected questions %+v", state.Questions)
	}
	before := bodyEpoch(t, rpc)

	resp, err := mc.AnswerQuestion(ctx, &mission.AnswerQuestionRequest{QuestionID: questionID, Code: 9})
	var se *status.Error
	if !errors.As(err, &se) || se.Detail != "STATUS_INVALID_CODE" {
		t.Fatalf("expected invalid code failure, got %v", err)
	}
	if resp == nil || resp.Status != mission.AnswerStatusInvalidCode {
		t.Fatalf("expected response alongside failure, got %+v", resp)
	}
	if _, err := mc.AnswerQuestionAsync(ctx, &mission.AnswerQuestionRequest{QuestionID: questionID, Code: 1}).Wait(ctx); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := mc.AnswerQuestion(ctx, &mission.AnswerQuestionRequest{QuestionID: questionID, Code: 2}); !errors.Is(err, status.DomainStatusFailure) {
		t.Fatalf("expected already answered failure, got %v", err)
	}
	if robot.answered[questionID] != 1 {
		t.Fatalf("robot recorded answer %d", robot.answered[questionID])
	}
	if after := bodyEpoch(t, rpc); after != before {
		t.Fatalf("answering moved the body lease from %d to %d", before, after)
	}
	state, err = mc.GetState(ctx, nil)
	if err != nil || len(state.Questions) != 0 {
		t.Fatalf("expected no open questions, got %+v %v", state, err)
	}
}

func TestStatusNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code status.Code
		name string
	}{
		{mission.LoadStatusCompileError, "STATUS_COMPILE_ERROR"},
		{mission.LoadStatusValidateError, "STATUS_VALIDATE_ERROR"},
		{mission.PlayStatusNoMission, "STATUS_NO_MISSION"},
		{mission.PauseStatusOK, "STATUS_OK"},
		{mission.RestartStatusValidateError, "STATUS_VALIDATE_ERROR"},
		{mission.RestartStatus(9), "STATUS_9"},
		{mission.AnswerStatusAlreadyAnswered, "STATUS_ALREADY_ANSWERED"},
		{mission.AnswerStatusInvalidQuestionID, "STATUS_INVALID_QUESTION_ID"},
	}
	for _, tc := range cases {
		if tc.code.String() != tc.name {
			t.Fatalf("expected %s, got %s", tc.name, tc.code.String())
		}
	}
	if !mission.LoadStatusOK.OK() || mission.LoadStatusUnknown.OK() {
		t.Fatal("unexpected OK evaluation")
	}
	if mission.StatePaused.String() != "paused" || mission.State(42).String() != "state(42)" {
		t.Fatal("unexpected state names")
	}
}
