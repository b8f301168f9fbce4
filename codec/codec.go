// Package codec 负责消息的编解码。
//
// 线路格式为 `"` + base64(JSON) + `"` + "\n"：前 1 个、后 2 个哨兵字符，
// 解码时直接剥掉，不检查其取值。
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	ReasonBadEnvelope        = "bad-envelope"
	ReasonBadBase64          = "bad-base64"
	ReasonBadJSON            = "bad-json"
	ReasonUnknownType        = "unknown-type"
	ReasonUnsupportedVersion = "unsupported-version"
)

var ErrNilMessage = errors.New("codec: nil message")

// DecodeError 帧级错误：记录日志后丢弃该帧，连接保持
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsReason 判断 err 是否为指定原因的 DecodeError
func IsReason(err error, reason string) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Reason == reason
}

const (
	leading  = '"'
	trailing = "\"\n"
)

// Encode 填好 type 与 v 后编码为带哨兵的 base64 文本
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	m.stamp()
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	out := make([]byte, 0, 1+base64.StdEncoding.EncodedLen(len(payload))+len(trailing))
	out = append(out, leading)
	out = base64.StdEncoding.AppendEncode(out, payload)
	out = append(out, trailing...)
	return out, nil
}

// Decode 剥离哨兵并解析消息；不做任何语义校验
func Decode(b []byte) (Message, error) {
	if len(b) < 3 {
		return nil, &DecodeError{Reason: ReasonBadEnvelope}
	}
	body := b[1 : len(b)-2]
	payload := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(payload, body)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonBadBase64, Err: err}
	}
	payload = payload[:n]

	var h Header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, &DecodeError{Reason: ReasonBadJSON, Err: err}
	}
	if h.Version > Version {
		return nil, &DecodeError{Reason: ReasonUnsupportedVersion, Err: fmt.Errorf("version %d > %d", h.Version, Version)}
	}

	m := newMessage(h.Type)
	if m == nil {
		return nil, &DecodeError{Reason: ReasonUnknownType, Err: fmt.Errorf("type %q", h.Type)}
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, &DecodeError{Reason: ReasonBadJSON, Err: err}
	}
	if s, ok := m.(*StateBroadcast); ok {
		s.Normalize()
	}
	return m, nil
}

func newMessage(t string) Message {
	switch t {
	case TypeState:
		return &StateBroadcast{}
	case TypeInput:
		return &InputUpdate{}
	case TypeWaypoint:
		return &WaypointAdd{}
	case TypeLaunch:
		return &MissileLaunch{}
	case TypeWelcome:
		return &Welcome{}
	case TypeRules:
		return &RulesUpdate{}
	}
	return nil
}
