package congestion

import "time"

// 定点参数，与 Linux bictcp 相同：时间单位为 2^-bictcpHZ 秒
const (
	bictcpHZ     = 10
	cubeRttScale = 410 // bic_scale(41) * 10，约等于 C = 0.4
	cubeShift    = 10 + 3*bictcpHZ
	cubeFactor   = uint64(1) << cubeShift / cubeRttScale

	maxCubeOffset = uint64(1) << 18
)

// cubeRoot 64 位整数立方根（向下取整）
func cubeRoot(a uint64) uint64 {
	if a == 0 {
		return 0
	}
	var y uint64
	for s := 63; s >= 0; s -= 3 {
		y <<= 1
		b := 3*y*(y+1) + 1
		if a>>uint(s) >= b {
			a -= b << uint(s)
			y++
		}
	}
	return y
}

// cubicK 从当前窗口回到 lastMax 所需的时间，单位 2^-bictcpHZ 秒
func cubicK(gap float64) uint64 {
	if gap < 1 {
		return 0
	}
	return cubeRoot(cubeFactor * uint64(gap))
}

// toCubicUnits 把时长换算为 2^-bictcpHZ 秒
func toCubicUnits(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) << bictcpHZ / uint64(time.Second)
}

// cubicTarget 计算 t 时刻的目标窗口
func cubicTarget(origin float64, k uint64, t time.Duration) float64 {
	units := toCubicUnits(t)

	var offs uint64
	if units < k {
		offs = k - units
	} else {
		offs = units - k
	}
	if offs > maxCubeOffset {
		offs = maxCubeOffset
	}

	delta := float64(cubeRttScale * offs * offs * offs >> cubeShift)
	if units < k {
		return origin - delta
	}
	return origin + delta
}
