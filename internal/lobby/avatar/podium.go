package avatar

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// 领奖台半径为 3，头像站在稍靠内的一圈上
const DefaultRadius = 2.4

// PodiumAngle 返回第 i 个玩家的摆放角度 2π·i/max(1,n)
func PodiumAngle(i, n int) float64 {
	return 2 * math.Pi * float64(i) / float64(max(1, n))
}

// PodiumPosition 返回第 i 个玩家在 y=0 平面上的位置
func PodiumPosition(i, n int, radius float64) mgl64.Vec3 {
	angle := PodiumAngle(i, n)

	return mgl64.Vec3{
		math.Cos(angle) * radius,
		0,
		math.Sin(angle) * radius,
	}
}
