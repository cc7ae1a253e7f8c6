package api

import "time"

// MsgType is a message type for streaming proctor events
type MsgType string

// Streaming message type constants
const (
	SessionStartMsg    MsgType = "session_start"
	AgreementMsg       MsgType = "agreement"
	ControlAcquiredMsg MsgType = "control_acquired"
	ViolationMsg       MsgType = "violation"
	RunStartMsg        MsgType = "run_start"
	RunFinishMsg       MsgType = "run_finish"
	InputWaitMsg       MsgType = "input_wait"
	ChunkFlushMsg      MsgType = "chunk_flush"
	TerminatedMsg      MsgType = "terminated"
	CompletedMsg       MsgType = "completed"
)

// Output size constraints for streamed run results
const (
	MaxRunOutputHeight = 40
	MaxRunOutputWidth  = 80
)

// Header is the common header for all streaming proctor messages
type Header struct {
	SessionUuid string  `json:"session_uuid"`
	MsgType     MsgType `json:"msg_type"`
}

// SessionStart message sent when a session enters the running state
type SessionStart struct {
	Header
	ExerciseID  string `json:"exercise_id"`
	StartedTime string `json:"started_time"`
}

// Agreement message sent when the learner accepts or declines the terms
type Agreement struct {
	Header
	Accepted bool `json:"accepted"`
}

// ControlAcquired message sent when a required control is obtained
type ControlAcquired struct {
	Header
	Control string `json:"control"`
}

// Violation message sent for every policy violation event
type Violation struct {
	Header
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Count  int    `json:"count"`
}

// RunStart message sent when an execution begins
type RunStart struct {
	Header
	Language string `json:"language"`
}

// RunFinish message sent when an execution completes
type RunFinish struct {
	Header
	Result *ExecRes `json:"result"`
}

// InputWait message sent when the terminal enters or leaves the
// waiting-for-input state
type InputWait struct {
	Header
	Waiting bool `json:"waiting"`
}

// ChunkFlush message sent when the recorder flushes an encoder chunk
type ChunkFlush struct {
	Header
	Seq   int `json:"seq"`
	Bytes int `json:"bytes"`
}

// Terminated message sent when the session is forcibly closed
type Terminated struct {
	Header
	Reason string `json:"reason"`
}

// Completed message sent when the session finishes normally
type Completed struct {
	Header
	Reason string `json:"reason"`
}

// NewHeader creates a common message header
func NewHeader(sessionUuid string, msgType MsgType) Header {
	return Header{
		SessionUuid: sessionUuid,
		MsgType:     msgType,
	}
}

func NewSessionStart(sessionUuid, exerciseID string) SessionStart {
	return SessionStart{
		Header:      NewHeader(sessionUuid, SessionStartMsg),
		ExerciseID:  exerciseID,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewAgreement(sessionUuid string, accepted bool) Agreement {
	return Agreement{
		Header:   NewHeader(sessionUuid, AgreementMsg),
		Accepted: accepted,
	}
}

func NewControlAcquired(sessionUuid, control string) ControlAcquired {
	return ControlAcquired{
		Header:  NewHeader(sessionUuid, ControlAcquiredMsg),
		Control: control,
	}
}

func NewViolation(sessionUuid, kind, detail string, count int) Violation {
	return Violation{
		Header: NewHeader(sessionUuid, ViolationMsg),
		Kind:   kind,
		Detail: detail,
		Count:  count,
	}
}

func NewRunStart(sessionUuid, language string) RunStart {
	return RunStart{
		Header:   NewHeader(sessionUuid, RunStartMsg),
		Language: language,
	}
}

func NewRunFinish(sessionUuid string, result *ExecRes) RunFinish {
	return RunFinish{
		Header: NewHeader(sessionUuid, RunFinishMsg),
		Result: result,
	}
}

func NewInputWait(sessionUuid string, waiting bool) InputWait {
	return InputWait{
		Header:  NewHeader(sessionUuid, InputWaitMsg),
		Waiting: waiting,
	}
}

func NewChunkFlush(sessionUuid string, seq, bytes int) ChunkFlush {
	return ChunkFlush{
		Header: NewHeader(sessionUuid, ChunkFlushMsg),
		Seq:    seq,
		Bytes:  bytes,
	}
}

func NewTerminated(sessionUuid, reason string) Terminated {
	return Terminated{
		Header: NewHeader(sessionUuid, TerminatedMsg),
		Reason: reason,
	}
}

func NewCompleted(sessionUuid, reason string) Completed {
	return Completed{
		Header: NewHeader(sessionUuid, CompletedMsg),
		Reason: reason,
	}
}
