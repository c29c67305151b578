package constants

const (
	// BallCount is the number of balls on the table. Ball 0 is the cue ball.
	BallCount = 16
	// SeatCount is the number of player seats around the table
	SeatCount = 4
	// CueCount is the number of cues on the table
	CueCount = 2
	// TeamCount is the number of teams
	TeamCount = 2

	// BallRadius is the ball radius in meters
	BallRadius float64 = 0.03
	// CueBallIndex is the index of the cue ball
	CueBallIndex = 0

	// PositionRange bounds ball coordinates in quantized snapshots
	PositionRange float64 = 2.5
	// VelocityRange bounds cue ball velocity in quantized snapshots
	VelocityRange float64 = 50.0
	// AngularVelocityRange bounds cue ball angular velocity in quantized snapshots
	AngularVelocityRange float64 = 500.0

	// DefaultTimerSeconds is the default shot timer; 0 disables the timer
	DefaultTimerSeconds uint32 = 0
)

// TableModel describes the playing surface of a table model.
type TableModel struct {
	Name string
	// HalfLength is half of the playing surface along X, in meters
	HalfLength float64
	// HalfWidth is half of the playing surface along Z, in meters
	HalfWidth float64
}

// TableModels indexed by table model id.
var TableModels = []TableModel{
	{Name: "9ft", HalfLength: 1.27, HalfWidth: 0.635},
	{Name: "8ft", HalfLength: 1.12, HalfWidth: 0.56},
	{Name: "snooker", HalfLength: 1.78, HalfWidth: 0.89},
}

// TableModelByID returns the table model for id.
func TableModelByID(id uint8) (TableModel, bool) {
	if int(id) < len(TableModels) {
		return TableModels[id], true
	}
	return TableModel{}, false
}
