// Package wire encodes the messages exchanged with browser clients. The
// layout follows proto/outbreak.proto and is written with protowire so the
// server needs no generated code.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"outbreak/internal/sim"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("wire: malformed message")

// Frame is the per-frame state pushed to clients.
type Frame struct {
	RunID      uint64           `json:"runId"`
	Tick       int64            `json:"tick"`
	Mode       string           `json:"mode"`
	Compliance float64          `json:"compliance"`
	Agents     []sim.AgentState `json:"agents"`
	Counts     sim.Counts       `json:"counts"`
	Speed      float64          `json:"speed"`
}

// Action is what a Control message asks for.
type Action uint8

const (
	ActionUnspecified Action = iota
	ActionNewSim
	ActionSetSpeed
)

func (a Action) String() string {
	switch a {
	case ActionUnspecified:
		return "unspecified"
	case ActionNewSim:
		return "new-sim"
	case ActionSetSpeed:
		return "set-speed"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Control is a client request.
type Control struct {
	Action     Action
	Mode       string
	Compliance float64
	Speed      float64
}

const (
	agentX      protowire.Number = 1
	agentY      protowire.Number = 2
	agentStatus protowire.Number = 3

	countsHealthy   protowire.Number = 1
	countsSick      protowire.Number = 2
	countsRecovered protowire.Number = 3

	frameRunID      protowire.Number = 1
	frameTick       protowire.Number = 2
	frameMode       protowire.Number = 3
	frameCompliance protowire.Number = 4
	frameAgents     protowire.Number = 5
	frameCounts     protowire.Number = 6
	frameSpeed      protowire.Number = 7

	controlAction     protowire.Number = 1
	controlMode       protowire.Number = 2
	controlCompliance protowire.Number = 3
	controlSpeed      protowire.Number = 4
)

// MarshalFrame encodes f.
func MarshalFrame(f Frame) []byte {
	b := make([]byte, 0, 32+len(f.Agents)*24)
	b = appendVarint(b, frameRunID, f.RunID)
	b = appendVarint(b, frameTick, uint64(f.Tick))
	b = appendString(b, frameMode, f.Mode)
	b = appendDouble(b, frameCompliance, f.Compliance)

	var scratch []byte
	for _, a := range f.Agents {
		scratch = scratch[:0]
		scratch = appendDouble(scratch, agentX, a.X)
		scratch = appendDouble(scratch, agentY, a.Y)
		scratch = appendVarint(scratch, agentStatus, uint64(a.Status))
		b = protowire.AppendTag(b, frameAgents, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}

	scratch = scratch[:0]
	scratch = appendVarint(scratch, countsHealthy, uint64(f.Counts.Healthy))
	scratch = appendVarint(scratch, countsSick, uint64(f.Counts.Sick))
	scratch = appendVarint(scratch, countsRecovered, uint64(f.Counts.Recovered))
	b = protowire.AppendTag(b, frameCounts, protowire.BytesType)
	b = protowire.AppendBytes(b, scratch)

	b = appendDouble(b, frameSpeed, f.Speed)
	return b
}

// UnmarshalFrame decodes a Frame. Unknown fields are skipped.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == frameRunID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.RunID = v
			return n, nil
		case num == frameTick && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Tick = int64(v)
			return n, nil
		case num == frameMode && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			f.Mode = v
			return n, nil
		case num == frameCompliance && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			f.Compliance = math.Float64frombits(v)
			return n, nil
		case num == frameSpeed && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			f.Speed = math.Float64frombits(v)
			return n, nil
		case num == frameAgents && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			a, err := unmarshalAgent(v)
			if err != nil {
				return 0, err
			}
			f.Agents = append(f.Agents, a)
			return n, nil
		case num == frameCounts && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			c, err := unmarshalCounts(v)
			if err != nil {
				return 0, err
			}
			f.Counts = c
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

func unmarshalAgent(b []byte) (sim.AgentState, error) {
	var a sim.AgentState
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == agentX && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			a.X = math.Float64frombits(v)
			return n, nil
		case num == agentY && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			a.Y = math.Float64frombits(v)
			return n, nil
		case num == agentStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 && v > uint64(sim.Recovered) {
				return 0, fmt.Errorf("%w: unknown status %d", ErrMalformed, v)
			}
			a.Status = sim.Status(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return a, err
}

func unmarshalCounts(b []byte) (sim.Counts, error) {
	var c sim.Counts
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeVarint(b)
		switch num {
		case countsHealthy:
			c.Healthy = int(v)
		case countsSick:
			c.Sick = int(v)
		case countsRecovered:
			c.Recovered = int(v)
		}
		return n, nil
	})
	return c, err
}

// MarshalControl encodes c.
func MarshalControl(c Control) []byte {
	var b []byte
	b = appendVarint(b, controlAction, uint64(c.Action))
	b = appendString(b, controlMode, c.Mode)
	b = appendDouble(b, controlCompliance, c.Compliance)
	b = appendDouble(b, controlSpeed, c.Speed)
	return b
}

// UnmarshalControl decodes a Control. Unknown fields are skipped.
func UnmarshalControl(b []byte) (Control, error) {
	var c Control
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == controlAction && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 && v > uint64(ActionSetSpeed) {
				return 0, fmt.Errorf("%w: unknown action %d", ErrMalformed, v)
			}
			c.Action = Action(v)
			return n, nil
		case num == controlMode && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			c.Mode = v
			return n, nil
		case num == controlCompliance && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			c.Compliance = math.Float64frombits(v)
			return n, nil
		case num == controlSpeed && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			c.Speed = math.Float64frombits(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Control{}, err
	}
	return c, nil
}

// walk iterates the fields of one message. field consumes the value that
// follows a tag and returns its length, negative on a protowire error.
func walk(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
