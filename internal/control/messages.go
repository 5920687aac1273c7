// Package control implements the TCP command channel: line-delimited JSON
// messages between viewer and server, and the server-side handler that
// turns mouse/key messages into injected input.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lanshare/lanshare/internal/input"
)

// Type is the "type" tag of a control message
type Type string

const (
	TypeMouse    Type = "mouse"
	TypeKey      Type = "key"
	TypeRegister Type = "register"
	TypeStream   Type = "stream"
)

// MouseAction is the action of a mouse message
type MouseAction string

const (
	MouseMove    MouseAction = "move"
	MousePress   MouseAction = "press"
	MouseRelease MouseAction = "release"
	MouseScroll  MouseAction = "scroll"
)

// KeyAction is the action of a key message
type KeyAction string

const (
	KeyPress   KeyAction = "press"
	KeyRelease KeyAction = "release"
	KeyCombo   KeyAction = "combo"
)

// StreamState is the payload of a stream notification
type StreamState string

const (
	StreamStarted StreamState = "started"
	StreamStopped StreamState = "stopped"
)

var (
	// ErrUnknownType is returned for a message whose type tag is not known
	ErrUnknownType = errors.New("control: unknown message type")
	// ErrInvalid is returned for a message that fails validation
	ErrInvalid = errors.New("control: invalid message")
)

// Message is one of *Mouse, *Key, *Register or *Stream
type Message interface {
	Type() Type
}

// Mouse moves the pointer, presses/releases a button or scrolls.
// X and Y are normalized to [0,1] of the viewer widget.
type Mouse struct {
	Action MouseAction
	Button input.Button
	X, Y   float64
	// HasPos is false for press/release messages sent without coordinates
	HasPos bool
	DX, DY int
}

func (*Mouse) Type() Type { return TypeMouse }

// Key presses or releases keys, or sends an atomic combo
type Key struct {
	Action KeyAction
	Key    string
	Keys   []string
}

func (*Key) Type() Type { return TypeKey }

// Names returns the key names the message carries, Keys taking precedence
func (k *Key) Names() []string {
	if len(k.Keys) > 0 {
		return k.Keys
	}
	if k.Key != "" {
		return []string{k.Key}
	}
	return nil
}

// Register declares the viewer's UDP video port
type Register struct {
	VideoPort int
	Username  string
}

func (*Register) Type() Type { return TypeRegister }

// Stream notifies viewers that streaming started or stopped
type Stream struct {
	State StreamState
}

func (*Stream) Type() Type { return TypeStream }

// envelope is the JSON shape shared by every message kind
type envelope struct {
	Type      Type     `json:"type"`
	Action    string   `json:"action,omitempty"`
	Button    string   `json:"button,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	DX        *float64 `json:"dx,omitempty"`
	DY        *float64 `json:"dy,omitempty"`
	Key       string   `json:"key,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	VideoPort *int     `json:"video_port,omitempty"`
	Username  string   `json:"username,omitempty"`
	State     string   `json:"state,omitempty"`
}

// Decode parses one JSON line into a typed message
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch env.Type {
	case TypeMouse:
		return decodeMouse(&env)
	case TypeKey:
		return decodeKey(&env)
	case TypeRegister:
		if env.VideoPort == nil || *env.VideoPort <= 0 || *env.VideoPort > 65535 {
			return nil, fmt.Errorf("%w: register needs a video_port in 1-65535", ErrInvalid)
		}
		return &Register{VideoPort: *env.VideoPort, Username: env.Username}, nil
	case TypeStream:
		state := StreamState(env.State)
		if state != StreamStarted && state != StreamStopped {
			return nil, fmt.Errorf("%w: stream state %q", ErrInvalid, env.State)
		}
		return &Stream{State: state}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalid)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
}

func decodeMouse(env *envelope) (Message, error) {
	m := &Mouse{Action: MouseAction(env.Action)}

	switch m.Action {
	case MouseScroll:
		m.DX = roundInt(env.DX)
		m.DY = roundInt(env.DY)
		return m, nil
	case MouseMove, MousePress, MouseRelease:
	default:
		return nil, fmt.Errorf("%w: mouse action %q", ErrInvalid, env.Action)
	}

	if env.X != nil && env.Y != nil {
		if !finite(*env.X) || !finite(*env.Y) {
			return nil, fmt.Errorf("%w: mouse position is not a number", ErrInvalid)
		}
		m.X, m.Y, m.HasPos = *env.X, *env.Y, true
	} else if m.Action == MouseMove {
		return nil, fmt.Errorf("%w: move needs x and y", ErrInvalid)
	}

	if m.Action == MouseMove {
		return m, nil
	}
	m.Button = input.Button(env.Button)
	switch m.Button {
	case input.ButtonLeft, input.ButtonRight, input.ButtonMiddle:
	default:
		return nil, fmt.Errorf("%w: mouse button %q", ErrInvalid, env.Button)
	}
	return m, nil
}

func decodeKey(env *envelope) (Message, error) {
	k := &Key{Action: KeyAction(env.Action), Key: env.Key, Keys: env.Keys}
	switch k.Action {
	case KeyPress, KeyRelease:
		if len(k.Names()) == 0 {
			return nil, fmt.Errorf("%w: %s needs key or keys", ErrInvalid, k.Action)
		}
	case KeyCombo:
		if len(k.Keys) == 0 {
			return nil, fmt.Errorf("%w: combo needs keys", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: key action %q", ErrInvalid, env.Action)
	}
	return k, nil
}

// Encode renders a message as one JSON object without the trailing newline
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Type()}

	switch m := msg.(type) {
	case *Mouse:
		env.Action = string(m.Action)
		if m.Action == MouseScroll {
			dx, dy := float64(m.DX), float64(m.DY)
			env.DX, env.DY = &dx, &dy
			break
		}
		if m.HasPos || m.Action == MouseMove {
			x, y := m.X, m.Y
			env.X, env.Y = &x, &y
		}
		env.Button = string(m.Button)
	case *Key:
		env.Action = string(m.Action)
		env.Key = m.Key
		env.Keys = m.Keys
	case *Register:
		port := m.VideoPort
		env.VideoPort = &port
		env.Username = m.Username
	case *Stream:
		env.State = string(m.State)
	default:
		return nil, fmt.Errorf("%w %T", ErrUnknownType, msg)
	}
	return json.Marshal(env)
}

func roundInt(v *float64) int {
	if v == nil || !finite(*v) {
		return 0
	}
	return int(math.Round(*v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
