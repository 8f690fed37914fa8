package mission

import (
	"slices"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/wire"
)

// Info describes a loaded mission.
type Info struct {
	ID        int64
	Name      string
	NodeCount int64
}

func (m *Info) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(m.ID))
	b = wire.AppendString(b, 2, m.Name)
	b = wire.AppendVarint(b, 3, uint64(m.NodeCount))
	return b, nil
}

func (m *Info) UnmarshalWire(data []byte) error {
	*m = Info{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			m.ID = int64(f.Varint)
		case 2:
			m.Name = string(f.Bytes)
		case 3:
			m.NodeCount = int64(f.Varint)
		}
		return nil
	})
}

func decodeInfo(f wire.Field) (*Info, error) {
	var info Info
	if err := info.UnmarshalWire(f.Bytes); err != nil {
		return nil, err
	}
	return &info, nil
}

func appendInfo(b []byte, info *Info) ([]byte, error) {
	if info == nil {
		return b, nil
	}
	return wire.AppendMessage(b, 1, info)
}

// LoadMissionRequest uploads a compiled mission.
type LoadMissionRequest struct {
	Name string
	// Mission is the serialized mission tree. It can be large, which is what
	// the chunked load variants are for.
	Mission []byte
	Leases  []api.Lease
}

func (r *LoadMissionRequest) GetLeases() []api.Lease {
	if r == nil {
		return nil
	}
	return r.Leases
}

func (r *LoadMissionRequest) SetLeases(ls []api.Lease) {
	if r != nil {
		r.Leases = ls
	}
}

func (r *LoadMissionRequest) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, r.Name)
	b = wire.AppendBytes(b, 2, r.Mission)
	return api.AppendLeases(b, 3, r.Leases)
}

func (r *LoadMissionRequest) UnmarshalWire(data []byte) error {
	*r = LoadMissionRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.Name = string(f.Bytes)
		case 2:
			r.Mission = slices.Clone(f.Bytes)
		case 3:
			l, err := api.DecodeLease(f)
			if err != nil {
				return err
			}
			r.Leases = append(r.Leases, *l)
		}
		return nil
	})
}

// LoadMissionResponse reports the outcome of a load.
type LoadMissionResponse struct {
	Status          LoadStatus
	LeaseUseResults []api.LeaseUseResult
	Info            *Info
	// FailedNodes names the nodes that failed to compile or validate.
	FailedNodes []string
}

func (r *LoadMissionResponse) GetLeaseUseResults() []api.LeaseUseResult { return r.LeaseUseResults }

func (r *LoadMissionResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(r.Status))
	b, err := api.AppendLeaseUseResults(b, 2, r.LeaseUseResults)
	if err != nil {
		return nil, err
	}
	if r.Info != nil {
		if b, err = wire.AppendMessage(b, 3, r.Info); err != nil {
			return nil, err
		}
	}
	for _, n := range r.FailedNodes {
		b = wire.AppendString(b, 4, n)
	}
	return b, nil
}

func (r *LoadMissionResponse) UnmarshalWire(data []byte) error {
	*r = LoadMissionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Status = LoadStatus(int32(f.Varint))
		case 2:
			var res *api.LeaseUseResult
			if res, err = api.DecodeLeaseUseResult(f); err == nil {
				r.LeaseUseResults = append(r.LeaseUseResults, *res)
			}
		case 3:
			r.Info, err = decodeInfo(f)
		case 4:
			r.FailedNodes = append(r.FailedNodes, string(f.Bytes))
		}
		return err
	})
}

// PlayMissionRequest starts or resumes the loaded mission.
type PlayMissionRequest struct {
	// PauseTimeUnixNano is the time after which the robot pauses the mission
	// unless another play request extends it. Zero means never.
	PauseTimeUnixNano int64
	Leases            []api.Lease
}

func (r *PlayMissionRequest) GetLeases() []api.Lease {
	if r == nil {
		return nil
	}
	return r.Leases
}

func (r *PlayMissionRequest) SetLeases(ls []api.Lease) {
	if r != nil {
		r.Leases = ls
	}
}

func (r *PlayMissionRequest) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.PauseTimeUnixNano))
	return api.AppendLeases(b, 2, r.Leases)
}

func (r *PlayMissionRequest) UnmarshalWire(data []byte) error {
	*r = PlayMissionRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.PauseTimeUnixNano = int64(f.Varint)
		case 2:
			l, err := api.DecodeLease(f)
			if err != nil {
				return err
			}
			r.Leases = append(r.Leases, *l)
		}
		return nil
	})
}

// PlayMissionResponse reports the outcome of a play request.
type PlayMissionResponse struct {
	Status          PlayStatus
	LeaseUseResults []api.LeaseUseResult
}

func (r *PlayMissionResponse) GetLeaseUseResults() []api.LeaseUseResult { return r.LeaseUseResults }

func (r *PlayMissionResponse) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.Status))
	return api.AppendLeaseUseResults(b, 2, r.LeaseUseResults)
}

func (r *PlayMissionResponse) UnmarshalWire(data []byte) error {
	*r = PlayMissionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.Status = PlayStatus(int32(f.Varint))
		case 2:
			res, err := api.DecodeLeaseUseResult(f)
			if err != nil {
				return err
			}
			r.LeaseUseResults = append(r.LeaseUseResults, *res)
		}
		return nil
	})
}

// PauseMissionRequest pauses the running mission. It carries one lease.
type PauseMissionRequest struct {
	Lease *api.Lease
}

func (r *PauseMissionRequest) GetLease() *api.Lease {
	if r == nil {
		return nil
	}
	return r.Lease
}

func (r *PauseMissionRequest) SetLease(l *api.Lease) {
	if r != nil {
		r.Lease = l
	}
}

func (r *PauseMissionRequest) MarshalWire() ([]byte, error) {
	return api.AppendLease(nil, 1, r.Lease)
}

func (r *PauseMissionRequest) UnmarshalWire(data []byte) error {
	*r = PauseMissionRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		if f.Num == 1 {
			r.Lease, err = api.DecodeLease(f)
		}
		return err
	})
}

// PauseMissionResponse reports the outcome of a pause request.
type PauseMissionResponse struct {
	Status         PauseStatus
	LeaseUseResult *api.LeaseUseResult
}

func (r *PauseMissionResponse) GetLeaseUseResult() *api.LeaseUseResult { return r.LeaseUseResult }

func (r *PauseMissionResponse) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.Status))
	return api.AppendLeaseUseResult(b, 2, r.LeaseUseResult)
}

func (r *PauseMissionResponse) UnmarshalWire(data []byte) error {
	*r = PauseMissionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Status = PauseStatus(int32(f.Varint))
		case 2:
			r.LeaseUseResult, err = api.DecodeLeaseUseResult(f)
		}
		return err
	})
}

// RestartMissionRequest restarts the loaded mission from the beginning.
type RestartMissionRequest struct {
	PauseTimeUnixNano int64
	Leases            []api.Lease
}

func (r *RestartMissionRequest) GetLeases() []api.Lease {
	if r == nil {
		return nil
	}
	return r.Leases
}

func (r *RestartMissionRequest) SetLeases(ls []api.Lease) {
	if r != nil {
		r.Leases = ls
	}
}

func (r *RestartMissionRequest) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.PauseTimeUnixNano))
	return api.AppendLeases(b, 2, r.Leases)
}

func (r *RestartMissionRequest) UnmarshalWire(data []byte) error {
	*r = RestartMissionRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.PauseTimeUnixNano = int64(f.Varint)
		case 2:
			l, err := api.DecodeLease(f)
			if err != nil {
				return err
			}
			r.Leases = append(r.Leases, *l)
		}
		return nil
	})
}

// RestartMissionResponse reports the outcome of a restart request.
type RestartMissionResponse struct {
	Status          RestartStatus
	LeaseUseResults []api.LeaseUseResult
	FailedNodes     []string
}

func (r *RestartMissionResponse) GetLeaseUseResults() []api.LeaseUseResult {
	return r.LeaseUseResults
}

func (r *RestartMissionResponse) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.Status))
	b, err := api.AppendLeaseUseResults(b, 2, r.LeaseUseResults)
	if err != nil {
		return nil, err
	}
	for _, n := range r.FailedNodes {
		b = wire.AppendString(b, 3, n)
	}
	return b, nil
}

func (r *RestartMissionResponse) UnmarshalWire(data []byte) error {
	*r = RestartMissionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.Status = RestartStatus(int32(f.Varint))
		case 2:
			res, err := api.DecodeLeaseUseResult(f)
			if err != nil {
				return err
			}
			r.LeaseUseResults = append(r.LeaseUseResults, *res)
		case 3:
			r.FailedNodes = append(r.FailedNodes, string(f.Bytes))
		}
		return nil
	})
}

// GetStateRequest asks for the current mission state.
type GetStateRequest struct {
	// HistoryPastTicks bounds how many past ticks of node history to return.
	HistoryPastTicks int64
}

func (r *GetStateRequest) MarshalWire() ([]byte, error) {
	return wire.AppendVarint(nil, 1, uint64(r.HistoryPastTicks)), nil
}

func (r *GetStateRequest) UnmarshalWire(data []byte) error {
	*r = GetStateRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		if f.Num == 1 {
			r.HistoryPastTicks = int64(f.Varint)
		}
		return nil
	})
}

// GetStateResponse carries the mission state.
type GetStateResponse struct {
	State       State
	TickCounter int64
	Error       string
	// Questions are the prompts the mission is waiting on.
	Questions []Question
}

func (r *GetStateResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(r.State))
	b = wire.AppendVarint(b, 2, uint64(r.TickCounter))
	b = wire.AppendString(b, 3, r.Error)
	for i := range r.Questions {
		var err error
		if b, err = wire.AppendMessage(b, 4, &r.Questions[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *GetStateResponse) UnmarshalWire(data []byte) error {
	*r = GetStateResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.State = State(int32(f.Varint))
		case 2:
			r.TickCounter = int64(f.Varint)
		case 3:
			r.Error = string(f.Bytes)
		case 4:
			var q Question
			if err := q.UnmarshalWire(f.Bytes); err != nil {
				return err
			}
			r.Questions = append(r.Questions, q)
		}
		return nil
	})
}

// GetInfoRequest asks for the description of the loaded mission.
type GetInfoRequest struct{}

func (r *GetInfoRequest) MarshalWire() ([]byte, error) { return nil, nil }
func (r *GetInfoRequest) UnmarshalWire([]byte) error   { return nil }

// GetInfoResponse describes the loaded mission, if any.
type GetInfoResponse struct {
	Info *Info
}

func (r *GetInfoResponse) MarshalWire() ([]byte, error) {
	return appendInfo(nil, r.Info)
}

func (r *GetInfoResponse) UnmarshalWire(data []byte) error {
	*r = GetInfoResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		if f.Num == 1 {
			r.Info, err = decodeInfo(f)
		}
		return err
	})
}

// GetMissionRequest asks for the loaded mission tree.
type GetMissionRequest struct{}

func (r *GetMissionRequest) MarshalWire() ([]byte, error) { return nil, nil }
func (r *GetMissionRequest) UnmarshalWire([]byte) error   { return nil }

// GetMissionResponse carries the loaded mission tree as it was compiled by
// the robot. Mission is empty when nothing is loaded.
type GetMissionResponse struct {
	ID      int64
	Mission []byte
	Info    *Info
}

func (r *GetMissionResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(r.ID))
	b = wire.AppendBytes(b, 2, r.Mission)
	if r.Info != nil {
		return wire.AppendMessage(b, 3, r.Info)
	}
	return b, nil
}

func (r *GetMissionResponse) UnmarshalWire(data []byte) error {
	*r = GetMissionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			r.ID = int64(f.Varint)
		case 2:
			r.Mission = slices.Clone(f.Bytes)
		case 3:
			r.Info, err = decodeInfo(f)
		}
		return err
	})
}

// AnswerOption is one acceptable answer to a Question.
type AnswerOption struct {
	Answer int64
	Text   string
}

func (o *AnswerOption) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(o.Answer))
	return wire.AppendString(b, 2, o.Text), nil
}

func (o *AnswerOption) UnmarshalWire(data []byte) error {
	*o = AnswerOption{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			o.Answer = int64(f.Varint)
		case 2:
			o.Text = string(f.Bytes)
		}
		return nil
	})
}

// Question is a prompt raised by a running mission, waiting for an
// operator to pick one of its options.
type Question struct {
	ID      int64
	Source  string
	Text    string
	Options []AnswerOption
}

func (q *Question) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(q.ID))
	b = wire.AppendString(b, 2, q.Source)
	b = wire.AppendString(b, 3, q.Text)
	for i := range q.Options {
		var err error
		if b, err = wire.AppendMessage(b, 4, &q.Options[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (q *Question) UnmarshalWire(data []byte) error {
	*q = Question{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			q.ID = int64(f.Varint)
		case 2:
			q.Source = string(f.Bytes)
		case 3:
			q.Text = string(f.Bytes)
		case 4:
			var o AnswerOption
			if err := o.UnmarshalWire(f.Bytes); err != nil {
				return err
			}
			q.Options = append(q.Options, o)
		}
		return nil
	})
}

// AnswerQuestionRequest picks the option with code Code for question
// QuestionID.
type AnswerQuestionRequest struct {
	QuestionID int64
	Code       int64
}

func (r *AnswerQuestionRequest) MarshalWire() ([]byte, error) {
	b := wire.AppendVarint(nil, 1, uint64(r.QuestionID))
	return wire.AppendVarint(b, 2, uint64(r.Code)), nil
}

func (r *AnswerQuestionRequest) UnmarshalWire(data []byte) error {
	*r = AnswerQuestionRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.QuestionID = int64(f.Varint)
		case 2:
			r.Code = int64(f.Varint)
		}
		return nil
	})
}

// AnswerQuestionResponse reports whether the answer was taken.
type AnswerQuestionResponse struct {
	Status AnswerStatus
}

func (r *AnswerQuestionResponse) MarshalWire() ([]byte, error) {
	return wire.AppendVarint(nil, 1, uint64(r.Status)), nil
}

func (r *AnswerQuestionResponse) UnmarshalWire(data []byte) error {
	*r = AnswerQuestionResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		if f.Num == 1 {
			r.Status = AnswerStatus(int32(f.Varint))
		}
		return nil
	})
}
