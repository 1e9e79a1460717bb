package domain

import (
	"fmt"
	"strings"
)

type FrameType int

const (
	FramePrompt FrameType = iota
	FrameFailure
	FrameSuccess
	FrameVideo
	FrameError
	FrameMenu
	FrameInfo
	FramePrivateIn
	FramePrivateOut
	FrameRoom
)

func (t FrameType) String() string {
	switch t {
	case FramePrompt:
		return "prompt"
	case FrameFailure:
		return "failure"
	case FrameSuccess:
		return "success"
	case FrameVideo:
		return "video"
	case FrameError:
		return "error"
	case FrameMenu:
		return "menu"
	case FrameInfo:
		return "info"
	case FramePrivateIn:
		return "private_in"
	case FramePrivateOut:
		return "private_out"
	case FrameRoom:
		return "room"
	default:
		return "unknown"
	}
}

// Tag is the single letter the client renders the frame by.
func (t FrameType) Tag() byte {
	switch t {
	case FramePrompt:
		return 'T'
	case FrameFailure:
		return 'F'
	case FrameSuccess:
		return 'S'
	case FrameVideo:
		return 'V'
	case FrameError:
		return 'E'
	case FrameMenu:
		return 'M'
	case FrameInfo:
		return 'I'
	case FramePrivateIn:
		return 'P'
	case FramePrivateOut:
		return 'O'
	case FrameRoom:
		return 'R'
	default:
		return '?'
	}
}

func (t FrameType) IsValid() bool {
	return t >= FramePrompt && t <= FrameRoom
}

func frameTypeFromTag(tag byte) (FrameType, bool) {
	for t := FramePrompt; t <= FrameRoom; t++ {
		if t.Tag() == tag {
			return t, true
		}
	}
	return 0, false
}

type Frame struct {
	Type    FrameType
	Payload string
}

func NewFrame(t FrameType, payload string) Frame {
	return Frame{Type: t, Payload: payload}
}

func Promptf(format string, a ...any) Frame {
	return NewFrame(FramePrompt, fmt.Sprintf(format, a...))
}

func Failuref(format string, a ...any) Frame {
	return NewFrame(FrameFailure, fmt.Sprintf(format, a...))
}

func Successf(format string, a ...any) Frame {
	return NewFrame(FrameSuccess, fmt.Sprintf(format, a...))
}

func Errorf(format string, a ...any) Frame {
	return NewFrame(FrameError, fmt.Sprintf(format, a...))
}

func Menuf(format string, a ...any) Frame {
	return NewFrame(FrameMenu, fmt.Sprintf(format, a...))
}

func Infof(format string, a ...any) Frame {
	return NewFrame(FrameInfo, fmt.Sprintf(format, a...))
}

func Roomf(format string, a ...any) Frame {
	return NewFrame(FrameRoom, fmt.Sprintf(format, a...))
}

func PrivateInf(format string, a ...any) Frame {
	return NewFrame(FramePrivateIn, fmt.Sprintf(format, a...))
}

func PrivateOutf(format string, a ...any) Frame {
	return NewFrame(FramePrivateOut, fmt.Sprintf(format, a...))
}

// OpenVideoFrame tells the client which host serves the call page.
func OpenVideoFrame(host string) Frame {
	return NewFrame(FrameVideo, "OPEN_VIDEO|"+host)
}

var (
	payloadEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	payloadUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

// Encode renders the frame as a single wire line without the trailing newline.
// Every payload, whatever its tag, is escaped the same way: backslash becomes
// `\\`, newline `\n` and carriage return `\r`. Clients must unescape before
// display; DecodeFrame does exactly that.
func (f Frame) Encode() string {
	return string(f.Type.Tag()) + "|" + payloadEscaper.Replace(f.Payload)
}

func (f Frame) String() string {
	return string(f.Type.Tag()) + "|" + f.Payload
}

// DecodeFrame parses a wire line produced by Encode.
func DecodeFrame(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[1] != '|' {
		return Frame{}, fmt.Errorf("malformed frame %q", line)
	}
	t, ok := frameTypeFromTag(line[0])
	if !ok {
		return Frame{}, fmt.Errorf("unknown frame tag %q", line[0])
	}
	return Frame{Type: t, Payload: payloadUnescaper.Replace(line[2:])}, nil
}
