package codec

import (
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"minisync/game"
	"minisync/sim"
)

func envelope(payload string) []byte {
	return []byte(`"` + base64.StdEncoding.EncodeToString([]byte(payload)) + "\"\n")
}

func fullState(t *testing.T) game.GameState {
	t.Helper()
	st := game.NewGameState(uuid.New(), game.ModeMissiles)
	st.Seq = 42
	st.Tick = 40
	st.Countries = game.DefaultCountries()
	m, err := game.NewMissile("USA", st.Countries["USA"].MissileBatteries[0].Coordinates, "Russia", st.Countries["Russia"].Cities["Moscow"], 2.5)
	if err != nil {
		t.Fatal(err)
	}
	m.Active = true
	m.Elapsed = 12.5
	st.Missiles = append(st.Missiles, m)
	st.Players = append(st.Players, game.Player{ID: uuid.New(), Country: "USA"})
	st.Log("USA launched missile 0 at Moscow")
	st.LogOffset = 3
	match, err := game.NewMatch(800, 400, game.Vec2{X: 3, Y: -4})
	if err != nil {
		t.Fatal(err)
	}
	st.Match = &match
	f, err := game.NewPathFollower(game.Vec2{X: 1, Y: 2}, 1.5, game.Vec2{X: 100, Y: 50})
	if err != nil {
		t.Fatal(err)
	}
	st.Tracer = &f
	return st
}

func TestStateRoundTrip(t *testing.T) {
	st := fullState(t)
	b, err := Encode(&StateBroadcast{GameState: st})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := m.(*StateBroadcast)
	if !ok {
		t.Fatalf("decoded %T, want *StateBroadcast", m)
	}
	if !reflect.DeepEqual(got.GameState, st) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got.GameState, st)
	}
}

func TestEnvelopeFraming(t *testing.T) {
	b, err := Encode(&WaypointAdd{Point: game.Vec2{X: 100, Y: 50}})
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != '"' || !strings.HasSuffix(string(b), "\"\n") {
		t.Fatalf("unexpected framing %q", b)
	}
	raw, err := base64.StdEncoding.DecodeString(string(b[1 : len(b)-2]))
	if err != nil {
		t.Fatalf("body is not base64: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"waypointAdd"`) || !strings.Contains(string(raw), `"v":1`) {
		t.Fatalf("payload missing type or version: %s", raw)
	}
}

func TestDecodeIgnoresSentinelValues(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte(`{"type":"waypointAdd","point":{"x":1,"y":2}}`))
	m, err := Decode([]byte("#" + body + "!!"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if w := m.(*WaypointAdd); w.Point != (game.Vec2{X: 1, Y: 2}) {
		t.Fatalf("point = %v", w.Point)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name   string
		in     []byte
		reason string
	}{
		{"nil", nil, ReasonBadEnvelope},
		{"empty", []byte{}, ReasonBadEnvelope},
		{"one char", []byte(`"`), ReasonBadEnvelope},
		{"two chars", []byte("\"\n"), ReasonBadEnvelope},
		{"bad base64", []byte(`"***"` + "\n"), ReasonBadBase64},
		{"bad json", envelope(`{"type":`), ReasonBadJSON},
		{"empty body", []byte("\"\"\n"), ReasonBadJSON},
		{"not an object", envelope(`[1,2,3]`), ReasonBadJSON},
		{"missing type", envelope(`{"v":1}`), ReasonUnknownType},
		{"unknown type", envelope(`{"type":"teleport"}`), ReasonUnknownType},
		{"future version", envelope(`{"type":"inputUpdate","v":99}`), ReasonUnsupportedVersion},
		{"wrong field type", envelope(`{"type":"waypointAdd","point":"here"}`), ReasonBadJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode(tc.in)
			if m != nil {
				t.Fatalf("expected no message, got %T", m)
			}
			if !IsReason(err, tc.reason) {
				t.Fatalf("err = %v, want reason %s", err, tc.reason)
			}
		})
	}
}

func TestDecodeEmptyCollections(t *testing.T) {
	id := uuid.New()
	m, err := Decode(envelope(`{"type":"gameStateBroadcast","id":"` + id.String() + `","missiles":[],"countries":{}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	st := m.(*StateBroadcast).GameState
	if st.Missiles == nil || len(st.Missiles) != 0 || st.Countries == nil || len(st.Countries) != 0 {
		t.Fatalf("expected empty collections, got %+v", st)
	}
	if st.Players == nil || st.Messages == nil {
		t.Fatalf("absent collections must decode as empty")
	}
	if err := st.Validate(); err != nil {
		t.Fatalf("empty state should validate: %v", err)
	}
}

func TestDecodeDoesNotValidateSemantics(t *testing.T) {
	m, err := Decode(envelope(`{"type":"inputUpdate","seq":3,"ball":{"radius":-5}}`))
	if err != nil {
		t.Fatalf("semantically odd payload must still decode: %v", err)
	}
	in := m.(*InputUpdate)
	if in.Seq != 3 || in.Ball == nil || in.Ball.Radius != -5 {
		t.Fatalf("decoded %+v", in)
	}
	if in.Ball.Validate() == nil {
		t.Fatalf("negative radius should fail entity validation")
	}
}

func TestClientMessagesRoundTrip(t *testing.T) {
	y := game.Paddle{Position: game.Vec2{Y: 120}, Width: 10, Height: 100, Owner: game.OwnerLocal}
	rules := sim.DefaultRules()
	rules.TimeScale = 1200
	rules.GreatCircle = true
	msgs := []Message{
		&InputUpdate{Header: Header{Seq: 1}, UserPaddle: &y},
		&WaypointAdd{Header: Header{Seq: 2}, Point: game.Vec2{X: 200, Y: 50}},
		&MissileLaunch{Header: Header{Seq: 3}, Battery: 1, TargetCountry: "Russia", TargetCity: "Moscow"},
		&Welcome{PlayerID: uuid.New(), SessionID: uuid.New(), Room: "lobby", Country: "USA", Mode: game.ModeMissiles, TickHz: 50, Rules: &rules},
		&Welcome{PlayerID: uuid.New(), Room: "bare", Mode: game.ModePong, TickHz: 50},
		&RulesUpdate{Rules: rules},
	}
	for _, in := range msgs {
		b, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode %s: %v", in.MessageType(), err)
		}
		out, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode %s: %v", in.MessageType(), err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%s round trip:\n got %+v\nwant %+v", in.MessageType(), out, in)
		}
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := Encode(nil); err != ErrNilMessage {
		t.Fatalf("err = %v", err)
	}
}

func TestSchemasCoverEveryMessage(t *testing.T) {
	s := Schemas()
	for _, typ := range []string{TypeState, TypeInput, TypeWaypoint, TypeLaunch, TypeWelcome, TypeRules} {
		if s[typ] == nil || s[typ].Title != typ {
			t.Fatalf("missing schema for %s", typ)
		}
	}
}
