package game

import (
	"math"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// rackGap separates racked balls so they never count as overlapping.
const rackGap = 0.001

// StandardRack places the cue ball on the head spot and the fifteen object
// balls in a triangle on the foot spot with the eight ball in the middle.
func StandardRack(model constants.TableModel) [constants.BallCount]kinematic.Vector {
	var rack [constants.BallCount]kinematic.Vector
	rack[constants.CueBallIndex] = kinematic.Vector{X: float32(-model.HalfLength / 2)}

	d := 2*constants.BallRadius + rackGap
	rowStep := d * math.Sqrt(3) / 2
	apex := model.HalfLength / 2

	order := make([]int, 0, constants.BallCount-1)
	for ball := 1; ball < constants.BallCount; ball++ {
		order = append(order, ball)
	}
	// the middle of the third row is the fifth slot
	order[4], order[7] = order[7], order[4]

	slot := 0
	for row := 0; row < 5; row++ {
		for j := 0; j <= row; j++ {
			rack[order[slot]] = kinematic.Vector{
				X: float32(apex + float64(row)*rowStep),
				Z: float32((float64(j) - float64(row)/2) * d),
			}
			slot++
		}
	}
	return rack
}
