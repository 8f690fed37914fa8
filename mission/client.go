// Package mission is the robotrpc client for the robot's mission service. It
// loads, starts, pauses and restarts missions, reads their state and answers
// the questions they ask, with leases stamped and reconciled by the dispatch
// layer.
package mission

import (
	"context"
	"time"

	"pkt.systems/robotrpc/client"
	"pkt.systems/robotrpc/status"
)

const (
	// ServiceName is the directory name of the mission service.
	ServiceName = "robot-mission"
	// ServiceType is the fully qualified gRPC service.
	ServiceType = "robotrpc.mission.MissionService"
	// DefaultResource is the resource leased when a call names none.
	DefaultResource = "body"
)

const methodPrefix = "/" + ServiceType + "/"

// Full gRPC method names.
const (
	MethodLoadMission          = methodPrefix + "LoadMission"
	MethodLoadMissionAsChunks  = methodPrefix + "LoadMissionAsChunks"
	MethodLoadMissionAsChunks2 = methodPrefix + "LoadMissionAsChunks2"
	MethodPlayMission          = methodPrefix + "PlayMission"
	MethodPauseMission         = methodPrefix + "PauseMission"
	MethodRestartMission       = methodPrefix + "RestartMission"
	MethodGetState             = methodPrefix + "GetState"
	MethodGetInfo              = methodPrefix + "GetInfo"
	MethodGetInfoAsChunks      = methodPrefix + "GetInfoAsChunks"
	MethodGetMission           = methodPrefix + "GetMission"
	MethodGetMissionAsChunks   = methodPrefix + "GetMissionAsChunks"
	MethodAnswerQuestion       = methodPrefix + "AnswerQuestion"
)

// Client talks to the mission service.
type Client struct {
	rpc     *client.Client
	timeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout sets the timeout of every mission call, overriding the
// dispatch client's default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New returns a mission client dispatching through rpc.
func New(rpc *client.Client, opts ...Option) *Client {
	c := &Client{rpc: rpc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(method string) client.Call {
	return client.Call{Method: method, Timeout: c.timeout}
}

func (c *Client) leased(method string, resources []string) client.Call {
	call := c.call(method)
	call.Resources = resources
	if len(call.Resources) == 0 {
		call.Resources = []string{DefaultResource}
	}
	return call
}

// orEmpty substitutes a zero request for nil, so a nil request behaves like
// an empty one.
func orEmpty[T any](req *T) *T {
	if req == nil {
		return new(T)
	}
	return req
}

func loadCode(r *LoadMissionResponse) status.Code       { return r.Status }
func playCode(r *PlayMissionResponse) status.Code       { return r.Status }
func pauseCode(r *PauseMissionResponse) status.Code     { return r.Status }
func restartCode(r *RestartMissionResponse) status.Code { return r.Status }
func answerCode(r *AnswerQuestionResponse) status.Code  { return r.Status }

// LoadMissionAsync uploads a mission in a single message.
func (c *Client) LoadMissionAsync(ctx context.Context, req *LoadMissionRequest, resources ...string) *client.Future[*LoadMissionResponse] {
	req = orEmpty(req)
	return client.Unary(ctx, c.rpc, c.leased(MethodLoadMission, resources), req, loadCode)
}

// LoadMission is the blocking form of LoadMissionAsync.
func (c *Client) LoadMission(ctx context.Context, req *LoadMissionRequest, resources ...string) (*LoadMissionResponse, error) {
	return c.LoadMissionAsync(ctx, req, resources...).Wait(ctx)
}

// LoadMissionAsChunksAsync uploads a mission as a stream of chunks and
// receives a single response.
func (c *Client) LoadMissionAsChunksAsync(ctx context.Context, req *LoadMissionRequest, resources ...string) *client.Future[*LoadMissionResponse] {
	req = orEmpty(req)
	return client.RequestStream(ctx, c.rpc, c.leased(MethodLoadMissionAsChunks, resources), req, loadCode)
}

// LoadMissionAsChunks is the blocking form of LoadMissionAsChunksAsync.
func (c *Client) LoadMissionAsChunks(ctx context.Context, req *LoadMissionRequest, resources ...string) (*LoadMissionResponse, error) {
	return c.LoadMissionAsChunksAsync(ctx, req, resources...).Wait(ctx)
}

// LoadMissionAsChunks2Async uploads a mission as a stream of chunks and
// receives the response as a stream of chunks.
func (c *Client) LoadMissionAsChunks2Async(ctx context.Context, req *LoadMissionRequest, resources ...string) *client.Future[*LoadMissionResponse] {
	req = orEmpty(req)
	return client.BidiStream(ctx, c.rpc, c.leased(MethodLoadMissionAsChunks2, resources), req, loadCode)
}

// LoadMissionAsChunks2 is the blocking form of LoadMissionAsChunks2Async.
func (c *Client) LoadMissionAsChunks2(ctx context.Context, req *LoadMissionRequest, resources ...string) (*LoadMissionResponse, error) {
	return c.LoadMissionAsChunks2Async(ctx, req, resources...).Wait(ctx)
}

// PlayMissionAsync starts or resumes the loaded mission.
func (c *Client) PlayMissionAsync(ctx context.Context, req *PlayMissionRequest, resources ...string) *client.Future[*PlayMissionResponse] {
	req = orEmpty(req)
	return client.Unary(ctx, c.rpc, c.leased(MethodPlayMission, resources), req, playCode)
}

// PlayMission is the blocking form of PlayMissionAsync.
func (c *Client) PlayMission(ctx context.Context, req *PlayMissionRequest, resources ...string) (*PlayMissionResponse, error) {
	return c.PlayMissionAsync(ctx, req, resources...).Wait(ctx)
}

// PauseMissionAsync pauses the running mission. The request carries the
// lease for one resource; an empty resource means DefaultResource.
func (c *Client) PauseMissionAsync(ctx context.Context, req *PauseMissionRequest, resource string) *client.Future[*PauseMissionResponse] {
	req = orEmpty(req)
	var resources []string
	if resource != "" {
		resources = []string{resource}
	}
	return client.Unary(ctx, c.rpc, c.leased(MethodPauseMission, resources), req, pauseCode)
}

// PauseMission is the blocking form of PauseMissionAsync.
func (c *Client) PauseMission(ctx context.Context, req *PauseMissionRequest, resource string) (*PauseMissionResponse, error) {
	return c.PauseMissionAsync(ctx, req, resource).Wait(ctx)
}

// RestartMissionAsync restarts the loaded mission.
func (c *Client) RestartMissionAsync(ctx context.Context, req *RestartMissionRequest, resources ...string) *client.Future[*RestartMissionResponse] {
	req = orEmpty(req)
	return client.Unary(ctx, c.rpc, c.leased(MethodRestartMission, resources), req, restartCode)
}

// RestartMission is the blocking form of RestartMissionAsync.
func (c *Client) RestartMission(ctx context.Context, req *RestartMissionRequest, resources ...string) (*RestartMissionResponse, error) {
	return c.RestartMissionAsync(ctx, req, resources...).Wait(ctx)
}

// GetStateAsync reads the mission state. A nil request asks for the default
// history.
func (c *Client) GetStateAsync(ctx context.Context, req *GetStateRequest) *client.Future[*GetStateResponse] {
	req = orEmpty(req)
	return client.Unary[GetStateResponse](ctx, c.rpc, c.call(MethodGetState), req, nil)
}

// GetState is the blocking form of GetStateAsync.
func (c *Client) GetState(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error) {
	return c.GetStateAsync(ctx, req).Wait(ctx)
}

// GetInfoAsync describes the loaded mission.
func (c *Client) GetInfoAsync(ctx context.Context) *client.Future[*GetInfoResponse] {
	return client.Unary[GetInfoResponse](ctx, c.rpc, c.call(MethodGetInfo), &GetInfoRequest{}, nil)
}

// GetInfo is the blocking form of GetInfoAsync.
func (c *Client) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	return c.GetInfoAsync(ctx).Wait(ctx)
}

// GetInfoAsChunksAsync describes the loaded mission, receiving the answer as
// a stream of chunks.
func (c *Client) GetInfoAsChunksAsync(ctx context.Context) *client.Future[*GetInfoResponse] {
	return client.ResponseStream[GetInfoResponse](ctx, c.rpc, c.call(MethodGetInfoAsChunks), &GetInfoRequest{}, nil)
}

// GetInfoAsChunks is the blocking form of GetInfoAsChunksAsync.
func (c *Client) GetInfoAsChunks(ctx context.Context) (*GetInfoResponse, error) {
	return c.GetInfoAsChunksAsync(ctx).Wait(ctx)
}

// GetMissionAsync fetches the loaded mission tree.
func (c *Client) GetMissionAsync(ctx context.Context, req *GetMissionRequest) *client.Future[*GetMissionResponse] {
	return client.Unary[GetMissionResponse](ctx, c.rpc, c.call(MethodGetMission), orEmpty(req), nil)
}

// GetMission is the blocking form of GetMissionAsync.
func (c *Client) GetMission(ctx context.Context, req *GetMissionRequest) (*GetMissionResponse, error) {
	return c.GetMissionAsync(ctx, req).Wait(ctx)
}

// GetMissionAsChunksAsync fetches the loaded mission tree as a stream of
// chunks. Large trees exceed the gRPC message limit otherwise.
func (c *Client) GetMissionAsChunksAsync(ctx context.Context, req *GetMissionRequest) *client.Future[*GetMissionResponse] {
	return client.ResponseStream[GetMissionResponse](ctx, c.rpc, c.call(MethodGetMissionAsChunks), orEmpty(req), nil)
}

// GetMissionAsChunks is the blocking form of GetMissionAsChunksAsync.
func (c *Client) GetMissionAsChunks(ctx context.Context, req *GetMissionRequest) (*GetMissionResponse, error) {
	return c.GetMissionAsChunksAsync(ctx, req).Wait(ctx)
}

// AnswerQuestionAsync answers a question posed by the running mission. The
// call carries no lease.
func (c *Client) AnswerQuestionAsync(ctx context.Context, req *AnswerQuestionRequest) *client.Future[*AnswerQuestionResponse] {
	return client.Unary(ctx, c.rpc, c.call(MethodAnswerQuestion), orEmpty(req), answerCode)
}

// AnswerQuestion is the blocking form of AnswerQuestionAsync.
func (c *Client) AnswerQuestion(ctx context.Context, req *AnswerQuestionRequest) (*AnswerQuestionResponse, error) {
	return c.AnswerQuestionAsync(ctx, req).Wait(ctx)
}
