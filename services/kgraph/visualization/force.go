// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package visualization

import "math"

// Force simulation parameters. The simulation follows the usual
// velocity-Verlet scheme with a decaying alpha ("temperature").
const (
	forceTicks       = 100
	linkDistance     = 50.0
	chargeStrength   = -100.0
	alphaMin         = 0.001
	velocityDecay    = 0.4
	initialRadius    = 10.0
	minDistanceSq    = 1e-6
	degenerateJitter = 1e-3
)

// alphaDecay cools alpha from 1 to alphaMin over 300 ticks; only the first
// forceTicks are run.
var alphaDecay = 1 - math.Pow(alphaMin, 1.0/300)

// forceLayout runs a fixed number of ticks of a link + many-body + centering
// simulation. Initial positions follow a phyllotaxis spiral around the
// canvas center so the result is deterministic.
func forceLayout(v *view, w, h float64) ([]float64, []float64) {
	n := len(v.nodes)
	xs, ys := make([]float64, n), make([]float64, n)
	vx, vy := make([]float64, n), make([]float64, n)
	if n == 0 {
		return xs, ys
	}
	cx, cy := w/2, h/2

	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := float64(i) * goldenAngle
		xs[i] = cx + r*math.Cos(a)
		ys[i] = cy + r*math.Sin(a)
	}

	// Link strength is 1/min(degree); bias moves the lower-degree endpoint more.
	degree := make([]float64, n)
	for e := range v.edges {
		degree[v.from[e]]++
		degree[v.to[e]]++
	}
	strength := make([]float64, len(v.edges))
	bias := make([]float64, len(v.edges))
	for e := range v.edges {
		s, t := v.from[e], v.to[e]
		strength[e] = 1 / math.Min(degree[s], degree[t])
		bias[e] = degree[s] / (degree[s] + degree[t])
	}

	alpha := 1.0
	for tick := 0; tick < forceTicks; tick++ {
		alpha += (0 - alpha) * alphaDecay

		// Links pull endpoints toward linkDistance.
		for e := range v.edges {
			s, t := v.from[e], v.to[e]
			if s == t {
				continue
			}
			dx := xs[t] + vx[t] - xs[s] - vx[s]
			dy := ys[t] + vy[t] - ys[s] - vy[s]
			if dx == 0 && dy == 0 {
				dx, dy = degenerateJitter, degenerateJitter
			}
			l := math.Sqrt(dx*dx + dy*dy)
			l = (l - linkDistance) / l * alpha * strength[e]
			dx *= l
			dy *= l
			vx[t] -= dx * bias[e]
			vy[t] -= dy * bias[e]
			vx[s] += dx * (1 - bias[e])
			vy[s] += dy * (1 - bias[e])
		}

		// Every pair repels with strength/d^2.
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				dx := xs[j] - xs[i]
				dy := ys[j] - ys[i]
				d2 := dx*dx + dy*dy
				if d2 < minDistanceSq {
					dx, dy = degenerateJitter*float64(j-i), degenerateJitter
					d2 = dx*dx + dy*dy
				}
				k := chargeStrength * alpha / d2
				vx[i] += dx * k
				vy[i] += dy * k
			}
		}

		for i := 0; i < n; i++ {
			vx[i] *= 1 - velocityDecay
			vy[i] *= 1 - velocityDecay
			xs[i] += vx[i]
			ys[i] += vy[i]
		}

		// Centering shifts the mean position onto the canvas center.
		var mx, my float64
		for i := 0; i < n; i++ {
			mx += xs[i]
			my += ys[i]
		}
		mx = mx/float64(n) - cx
		my = my/float64(n) - cy
		for i := 0; i < n; i++ {
			xs[i] -= mx
			ys[i] -= my
		}
	}
	return xs, ys
}
