package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// TextVersion selects a text snapshot layout.
type TextVersion uint8

const (
	TextV1 TextVersion = iota + 1
	TextV2
	TextV3
)

// Decoded payload lengths of the text snapshot versions.
const (
	TextV1Size = 0x54
	TextV2Size = 0x7b
	TextV3Size = 230
)

func (v TextVersion) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// ParseTextVersion parses "v1", "v2" or "v3".
func ParseTextVersion(s string) (TextVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1":
		return TextV1, nil
	case "v2":
		return TextV2, nil
	case "v3":
		return TextV3, nil
	default:
		return 0, fmt.Errorf("unknown text snapshot version %q", s)
	}
}

func gameFlags(width int, settings bool) []Field[tableState] {
	bits := []Bit[tableState]{
		BoolBit(func(s *tableState) *bool { return &s.TableOpen }),
		LowBit(func(s *tableState) *uint8 { return &s.TeamColor }),
		BoolBit(func(s *tableState) *bool { return &s.ColorTurn }),
	}
	if settings {
		bits = append(bits,
			BoolBit(func(s *tableState) *bool { return &s.TeamsEnabled }),
			BoolBit(func(s *tableState) *bool { return &s.NoGuideline }),
			BoolBit(func(s *tableState) *bool { return &s.NoLocking }),
		)
	}
	return Flags("flags", width, bits...)
}

func ballPositions(build func(name string, acc func(*tableState) *kinematic.Vector) []Field[tableState]) []Field[tableState] {
	return Repeat(constants.BallCount, func(i int) []Field[tableState] {
		return build(fmt.Sprintf("ballPositions[%d]", i), func(s *tableState) *kinematic.Vector { return &s.BallPositions[i] })
	})
}

func fourBall() []Field[tableState] {
	return concat(
		Repeat(constants.TeamCount, func(i int) []Field[tableState] {
			return Uint8(fmt.Sprintf("fourBallScores[%d]", i), func(s *tableState) *uint8 { return &s.FourBallScores[i] })
		}),
		Uint8("fourBallCueBallIndex", func(s *tableState) *uint8 { return &s.FourBallCueBallIndex }),
	)
}

var (
	pocketedField    = Uint16("ballsPocketed", func(s *tableState) *uint16 { return &s.BallsPocketed })
	gameModeField    = Uint8("gameMode", func(s *tableState) *uint8 { return &s.GameMode })
	teamIDField      = Uint8("teamId", func(s *tableState) *uint8 { return &s.TeamID })
	foulStateField   = Uint8("foulState", func(s *tableState) *uint8 { return (*uint8)(&s.FoulState) })
	gameStateField   = Uint8("gameState", func(s *tableState) *uint8 { return (*uint8)(&s.GameState) })
	turnStateField   = Uint8("turnState", func(s *tableState) *uint8 { return (*uint8)(&s.TurnState) })
	winningTeamField = Uint8("winningTeam", func(s *tableState) *uint8 { return &s.WinningTeam })
	physicsField     = Uint8("physicsVariantId", func(s *tableState) *uint8 { return &s.PhysicsVariantID })
	tableModelField  = Uint8("tableModelId", func(s *tableState) *uint8 { return &s.TableModelID })

	cueVelocity        = func(s *tableState) *kinematic.Vector { return &s.CueBallVelocity }
	cueAngularVelocity = func(s *tableState) *kinematic.Vector { return &s.CueBallAngularVelocity }
)

// TextV1Schema stores balls on the table plane with 16 bit fixed point
// coordinates. Fields it does not carry keep their previous value on decode.
var TextV1Schema = NewSchema[tableState]("text_v1", TextV1Size, binary.BigEndian,
	ballPositions(func(name string, acc func(*tableState) *kinematic.Vector) []Field[tableState] {
		return PlanarQuantized(name, constants.PositionRange, acc)
	}),
	PlanarQuantized("cueBallVelocity", constants.VelocityRange, cueVelocity),
	VectorQuantized("cueBallAngularVelocity", constants.AngularVelocityRange, cueAngularVelocity),
	pocketedField,
	gameModeField,
	teamIDField,
	foulStateField,
	gameFlags(1, false),
	gameStateField,
	turnStateField,
	winningTeamField,
	physicsField,
).WithValidation(validateTableState)

// TextV2Schema adds the Y axis, table settings and four-ball scoring to v1.
var TextV2Schema = NewSchema[tableState]("text_v2", TextV2Size, binary.BigEndian,
	ballPositions(func(name string, acc func(*tableState) *kinematic.Vector) []Field[tableState] {
		return VectorQuantized(name, constants.PositionRange, acc)
	}),
	VectorQuantized("cueBallVelocity", constants.VelocityRange, cueVelocity),
	VectorQuantized("cueBallAngularVelocity", constants.AngularVelocityRange, cueAngularVelocity),
	pocketedField,
	gameModeField,
	teamIDField,
	foulStateField,
	gameFlags(2, true),
	gameStateField,
	turnStateField,
	winningTeamField,
	physicsField,
	tableModelField,
	fourBall(),
).WithValidation(validateTableState)

// TextV3Schema carries the v2 content with raw float32 vectors.
var TextV3Schema = NewSchema[tableState]("text_v3", TextV3Size, binary.BigEndian,
	ballPositions(VectorFloat32[tableState]),
	VectorFloat32("cueBallVelocity", cueVelocity),
	VectorFloat32("cueBallAngularVelocity", cueAngularVelocity),
	pocketedField,
	gameModeField,
	teamIDField,
	foulStateField,
	gameFlags(1, true),
	gameStateField,
	turnStateField,
	winningTeamField,
	physicsField,
	tableModelField,
	fourBall(),
).WithValidation(validateTableState)

func textSchema(v TextVersion) (*Schema[tableState], error) {
	switch v {
	case TextV1:
		return TextV1Schema, nil
	case TextV2:
		return TextV2Schema, nil
	case TextV3:
		return TextV3Schema, nil
	default:
		return nil, fmt.Errorf("unknown text snapshot version %d", v)
	}
}

// EncodeText exports s as a "vN:" prefixed base64 string. The second return
// value lists the fields clamped into their quantization range.
func EncodeText(s *types.GameStateData, v TextVersion) (string, []string, error) {
	schema, err := textSchema(v)
	if err != nil {
		return "", nil, err
	}
	payload, clamped := schema.EncodeReport(s)
	return v.String() + ":" + base64.StdEncoding.EncodeToString(payload), clamped, nil
}

// DecodeText parses a text snapshot into dst. Text without a version prefix is
// read as v1. The payload is inspected before decoding and dst is left
// untouched on any error.
func DecodeText(text string, dst *types.GameStateData) (TextVersion, error) {
	v, body, err := splitVersion(strings.TrimSpace(text))
	if err != nil {
		return 0, err
	}
	schema, err := textSchema(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if err := validateBase64(body, schema.Size()); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, v, err)
	}
	payload, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, v, err)
	}
	if err := schema.Decode(payload, dst); err != nil {
		return 0, err
	}
	return v, nil
}

func splitVersion(text string) (TextVersion, string, error) {
	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return TextV1, text, nil
	}
	prefix := text[:colon]
	if len(prefix) != 2 || prefix[0] != 'v' || prefix[1] < '0' || prefix[1] > '9' {
		return 0, "", fmt.Errorf("%w: invalid version prefix %q", ErrMalformedSnapshot, prefix)
	}
	v := TextVersion(prefix[1] - '0')
	if v < TextV1 || v > TextV3 {
		return 0, "", fmt.Errorf("%w: unsupported version %q", ErrMalformedSnapshot, prefix)
	}
	return v, text[colon+1:], nil
}

// validateBase64 checks the alphabet, padding and decoded length of body.
func validateBase64(body string, want int) error {
	if len(body) == 0 {
		return fmt.Errorf("empty payload")
	}
	if len(body)%4 != 0 {
		return fmt.Errorf("payload length %d is not a multiple of 4", len(body))
	}
	padding := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '=' {
			padding++
			continue
		}
		if padding > 0 {
			return fmt.Errorf("padding before end of payload at %d", i)
		}
		if !isBase64Char(c) {
			return fmt.Errorf("invalid character %q at %d", c, i)
		}
	}
	if padding > 2 {
		return fmt.Errorf("too much padding (%d)", padding)
	}
	if got := len(body)/4*3 - padding; got != want {
		return fmt.Errorf("decoded length %d, want %d", got, want)
	}
	return nil
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+' || c == '/':
		return true
	}
	return false
}
