package game

import (
	"fmt"
	"math"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/solarlune/resolv"
)

const (
	// placementScale converts meters to the millimeter grid of the placement space
	placementScale = 1000.0
	// placementCellSize is a grid cell edge in millimeters, about one ball diameter
	placementCellSize = 64
	// placementTolerance allows racked balls that touch within float32 rounding
	placementTolerance = 1e-4

	collisionSpaceTagBall = "ball"
)

// ValidatePlacement checks that every unpocketed ball lies on the playing
// surface of the table model and does not overlap another ball.
func ValidatePlacement(model constants.TableModel, positions [constants.BallCount]kinematic.Vector, pocketed uint16) error {
	r := constants.BallRadius
	maxX := model.HalfLength - r + placementTolerance
	maxZ := model.HalfWidth - r + placementTolerance
	for i, p := range positions {
		if pocketed&(1<<uint(i)) != 0 {
			continue
		}
		x, z := float64(p.X), float64(p.Z)
		if math.IsNaN(x) || math.IsNaN(z) || math.Abs(x) > maxX || math.Abs(z) > maxZ {
			return fmt.Errorf("ball %d at (%.3f, %.3f) is off the %s table", i, x, z, model.Name)
		}
	}

	width := int(math.Ceil(2 * model.HalfLength * placementScale))
	height := int(math.Ceil(2 * model.HalfWidth * placementScale))
	space := resolv.NewSpace(width, height, placementCellSize, placementCellSize)

	size := 2 * r * placementScale
	objects := make(map[*resolv.Object]int, constants.BallCount)
	for i, p := range positions {
		if pocketed&(1<<uint(i)) != 0 {
			continue
		}
		x := (float64(p.X) + model.HalfLength - r) * placementScale
		y := (float64(p.Z) + model.HalfWidth - r) * placementScale
		obj := resolv.NewObject(x, y, size, size, collisionSpaceTagBall)
		space.Add(obj)
		objects[obj] = i
	}

	minDistance := 2*r - placementTolerance
	for obj, i := range objects {
		collision := obj.Check(0, 0, collisionSpaceTagBall)
		if collision == nil {
			continue
		}
		for _, other := range collision.Objects {
			j, ok := objects[other]
			if !ok || j == i {
				continue
			}
			if positions[i].PlanarDistance(positions[j]) < minDistance {
				return fmt.Errorf("balls %d and %d overlap", min(i, j), max(i, j))
			}
		}
	}
	return nil
}

// isPocketed reports whether ball i is set in mask.
func isPocketed(mask uint16, i int) bool {
	return mask&(1<<uint(i)) != 0
}

// tableModel returns the model of state, falling back to the first model.
func tableModel(state *types.GameStateData) constants.TableModel {
	if model, ok := constants.TableModelByID(state.TableModelID); ok {
		return model
	}
	return constants.TableModels[0]
}
