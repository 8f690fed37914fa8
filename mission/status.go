package mission

import "fmt"

// LoadStatus is the result code of LoadMission and its chunked variants.
type LoadStatus int32

const (
	LoadStatusUnknown       LoadStatus = 0
	LoadStatusOK            LoadStatus = 1
	LoadStatusCompileError  LoadStatus = 2
	LoadStatusValidateError LoadStatus = 3
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStatusUnknown:
		return "STATUS_UNKNOWN"
	case LoadStatusOK:
		return "STATUS_OK"
	case LoadStatusCompileError:
		return "STATUS_COMPILE_ERROR"
	case LoadStatusValidateError:
		return "STATUS_VALIDATE_ERROR"
	}
	return fmt.Sprintf("STATUS_%d", int32(s))
}

func (s LoadStatus) Domain() string { return "LoadMissionResponse_Status" }
func (s LoadStatus) Value() int32   { return int32(s) }
func (s LoadStatus) OK() bool       { return s == LoadStatusOK }

// PlayStatus is the result code of PlayMission.
type PlayStatus int32

const (
	PlayStatusUnknown   PlayStatus = 0
	PlayStatusOK        PlayStatus = 1
	PlayStatusNoMission PlayStatus = 2
)

func (s PlayStatus) String() string { return noMissionName(int32(s)) }
func (s PlayStatus) Domain() string { return "PlayMissionResponse_Status" }
func (s PlayStatus) Value() int32   { return int32(s) }
func (s PlayStatus) OK() bool       { return s == PlayStatusOK }

// PauseStatus is the result code of PauseMission.
type PauseStatus int32

const (
	PauseStatusUnknown   PauseStatus = 0
	PauseStatusOK        PauseStatus = 1
	PauseStatusNoMission PauseStatus = 2
)

func (s PauseStatus) String() string { return noMissionName(int32(s)) }
func (s PauseStatus) Domain() string { return "PauseMissionResponse_Status" }
func (s PauseStatus) Value() int32   { return int32(s) }
func (s PauseStatus) OK() bool       { return s == PauseStatusOK }

// RestartStatus is the result code of RestartMission.
type RestartStatus int32

const (
	RestartStatusUnknown       RestartStatus = 0
	RestartStatusOK            RestartStatus = 1
	RestartStatusNoMission     RestartStatus = 2
	RestartStatusValidateError RestartStatus = 3
)

func (s RestartStatus) String() string {
	if s == RestartStatusValidateError {
		return "STATUS_VALIDATE_ERROR"
	}
	return noMissionName(int32(s))
}
func (s RestartStatus) Domain() string { return "RestartMissionResponse_Status" }
func (s RestartStatus) Value() int32   { return int32(s) }
func (s RestartStatus) OK() bool       { return s == RestartStatusOK }

// AnswerStatus is the result code of AnswerQuestion.
type AnswerStatus int32

const (
	AnswerStatusUnknown           AnswerStatus = 0
	AnswerStatusOK                AnswerStatus = 1
	AnswerStatusInvalidQuestionID AnswerStatus = 2
	AnswerStatusInvalidCode       AnswerStatus = 3
	AnswerStatusAlreadyAnswered   AnswerStatus = 4
)

func (s AnswerStatus) String() string {
	switch s {
	case AnswerStatusUnknown:
		return "STATUS_UNKNOWN"
	case AnswerStatusOK:
		return "STATUS_OK"
	case AnswerStatusInvalidQuestionID:
		return "STATUS_INVALID_QUESTION_ID"
	case AnswerStatusInvalidCode:
		return "STATUS_INVALID_CODE"
	case AnswerStatusAlreadyAnswered:
		return "STATUS_ALREADY_ANSWERED"
	}
	return fmt.Sprintf("STATUS_%d", int32(s))
}

func (s AnswerStatus) Domain() string { return "AnswerQuestionResponse_Status" }
func (s AnswerStatus) Value() int32   { return int32(s) }
func (s AnswerStatus) OK() bool       { return s == AnswerStatusOK }

func noMissionName(v int32) string {
	switch v {
	case 0:
		return "STATUS_UNKNOWN"
	case 1:
		return "STATUS_OK"
	case 2:
		return "STATUS_NO_MISSION"
	}
	return fmt.Sprintf("STATUS_%d", v)
}

// State is the execution state of the loaded mission.
type State int32

const (
	StateUnknown State = iota
	StateNone
	StateRunning
	StateFailure
	StatePaused
	StateSuccess
	StateError
	StateStopped
)

var stateNames = [...]string{
	StateUnknown: "unknown",
	StateNone:    "none",
	StateRunning: "running",
	StateFailure: "failure",
	StatePaused:  "paused",
	StateSuccess: "success",
	StateError:   "error",
	StateStopped: "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
