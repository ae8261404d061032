package task

import (
	"image"
	"math"
	"sort"
)

const (
	defaultClusterSize = 50.0
	iouThreshold       = 0.45
)

type candidate struct {
	box  image.Rectangle
	conf float32
}

// clusterBoxes merges overlapping candidates. Boxes are grouped with
// DBSCAN over their corner coordinates (eps scaled to the median box
// size); unclustered boxes join a cluster they overlap by more than
// iouThreshold, or stand alone. Each group becomes the union of its
// boxes with the best confidence. Output is ordered by confidence.
func clusterBoxes(cands []candidate) []candidate {
	if len(cands) == 0 {
		return nil
	}

	eps := math.Max(medianSize(cands), defaultClusterSize) * 0.5
	minPoints := 1
	if len(cands) > 3 {
		minPoints = 2
	}

	points := make([][4]float64, len(cands))
	for i, c := range cands {
		points[i] = [4]float64{float64(c.box.Min.X), float64(c.box.Min.Y), float64(c.box.Max.X), float64(c.box.Max.Y)}
	}
	labels := dbscan(points, eps, minPoints)

	groups := map[int][]candidate{}
	var noise []candidate
	for i, l := range labels {
		if l < 0 {
			noise = append(noise, cands[i])
			continue
		}
		groups[l] = append(groups[l], cands[i])
	}

	var out []candidate
	for _, n := range noise {
		if l, ok := overlapping(groups, n.box); ok {
			groups[l] = append(groups[l], n)
			continue
		}
		out = append(out, n)
	}
	for _, g := range groups {
		out = append(out, merge(g))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].conf != out[j].conf {
			return out[i].conf > out[j].conf
		}
		if out[i].box.Min.Y != out[j].box.Min.Y {
			return out[i].box.Min.Y < out[j].box.Min.Y
		}
		return out[i].box.Min.X < out[j].box.Min.X
	})
	return out
}

func overlapping(groups map[int][]candidate, box image.Rectangle) (int, bool) {
	labels := make([]int, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	for _, l := range labels {
		for _, c := range groups[l] {
			if iou(box, c.box) > iouThreshold {
				return l, true
			}
		}
	}
	return 0, false
}

func medianSize(cands []candidate) float64 {
	sizes := make([]float64, len(cands))
	for i, c := range cands {
		sizes[i] = math.Sqrt(float64(c.box.Dx()) * float64(c.box.Dy()))
	}
	sort.Float64s(sizes)
	return sizes[len(sizes)/2]
}

func iou(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	inter := float64(in.Dx() * in.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func merge(g []candidate) candidate {
	out := g[0]
	for _, c := range g[1:] {
		out.box = out.box.Union(c.box)
		if c.conf > out.conf {
			out.conf = c.conf
		}
	}
	return out
}

func dbscan(points [][4]float64, eps float64, minPoints int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	cluster := 0
	for i := range points {
		if labels[i] != -1 {
			continue
		}
		neighbors := neighborsOf(points, i, eps)
		if len(neighbors) < minPoints {
			continue
		}
		labels[i] = cluster
		for k := 0; k < len(neighbors); k++ {
			p := neighbors[k]
			if labels[p] != -1 {
				continue
			}
			labels[p] = cluster
			if more := neighborsOf(points, p, eps); len(more) >= minPoints {
				neighbors = append(neighbors, more...)
			}
		}
		cluster++
	}
	return labels
}

func neighborsOf(points [][4]float64, idx int, eps float64) []int {
	var out []int
	for i := range points {
		if distance(points[idx], points[i]) <= eps {
			out = append(out, i)
		}
	}
	return out
}

func distance(a, b [4]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
