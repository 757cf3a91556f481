// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"strings"
)

const (
	plotWidth  = 100
	plotHeight = 20
)

// renderPlot draws samples as a width x height character chart. Samples are
// averaged into columns and scaled between their own min and max.
func renderPlot(samples []int16, width, height int) string {
	if len(samples) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	if width > len(samples) {
		width = len(samples)
	}

	cols := make([]int64, width)
	for c := range cols {
		lo, hi := c*len(samples)/width, (c+1)*len(samples)/width
		var sum int64
		for _, v := range samples[lo:hi] {
			sum += int64(v)
		}
		cols[c] = sum / int64(hi-lo)
	}

	minV, maxV := cols[0], cols[0]
	for _, v := range cols {
		minV = min(minV, v)
		maxV = max(maxV, v)
	}

	grid := make([][]byte, height)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(" ", width))
	}
	for c, v := range cols {
		row := (height - 1) / 2
		if maxV > minV {
			row = height - 1 - int((v-minV)*int64(height-1)/(maxV-minV))
		}
		grid[row][c] = '*'
	}

	lines := make([]string, height)
	for r, line := range grid {
		lines[r] = strings.TrimRight(string(line), " ")
	}
	return strings.Join(lines, "\n")
}
