package anomaly

import "gonum.org/v1/gonum/floats"

// Noise is the label assigned to points not density-reachable from any
// core point.
const Noise = -1

const unvisited = -2

// dbscan labels each point with a cluster id (starting at 0) or Noise.
// Neighborhoods are euclidean balls of radius eps and include the point
// itself, so minPts counts the point like the reference algorithm does.
func dbscan(points [][]float64, eps float64, minPts int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := -1
	for i := range points {
		if labels[i] != unvisited {
			continue
		}

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}

		cluster++
		labels[i] = cluster

		// Expand the cluster breadth-first through every core point.
		queue := append([]int(nil), neighbors...)
		for head := 0; head < len(queue); head++ {
			j := queue[head]

			if labels[j] == Noise {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster

			reachable := regionQuery(points, j, eps)
			if len(reachable) >= minPts {
				queue = append(queue, reachable...)
			}
		}
	}

	return labels
}

func regionQuery(points [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if floats.Distance(points[i], points[j], 2) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
