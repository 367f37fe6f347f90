// Package simulator hosts the taxi-side runtime: the movement engine
// stepping across the city map, the coordinator connector performing the
// handshake, the sensor feed and the customer agent.
package simulator

// PathFinder computes the next cell towards a target. Movement is one
// step per axis per tick, so diagonal progress happens when both axes
// differ.
type PathFinder struct{}

// NextPosition advances (x, y) one step towards (targetX, targetY) and
// reports whether the target has been reached after the move.
func (PathFinder) NextPosition(x, y, targetX, targetY int) (int, int, bool) {
	x = step(x, targetX)
	y = step(y, targetY)
	return x, y, x == targetX && y == targetY
}

func step(cur, target int) int {
	switch {
	case cur < target:
		return cur + 1
	case cur > target:
		return cur - 1
	default:
		return cur
	}
}
