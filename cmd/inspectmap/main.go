package main

import (
	"flag"
	"fmt"
	"os"
	"slices"

	"gonum.org/v1/gonum/stat"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/output"
)

func main() {
	mapFile := flag.String("map", "", "Path to a blending map (.tiff)")
	flag.Parse()

	if *mapFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspectmap -map blending.tiff")
		os.Exit(2)
	}
	m, err := output.ReadBlendingMap(*mapFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Map: %s (%dx%d)\n", *mapFile, m.Width, m.Height)
	report(m)
}

type summary struct {
	texels           int
	mean, std        float64
	min, median, max float64
}

// summarize computes the weight statistics of the texels covered by n
// projectors.
func summarize(m *blendmap.Map) map[int]summary {
	weights := make(map[int][]float64)
	for _, v := range m.Data {
		if v == 0 {
			continue
		}
		n := blendmap.Projectors(v)
		weights[n] = append(weights[n], float64(blendmap.WeightOf(v)))
	}
	out := make(map[int]summary, len(weights))
	for n, ws := range weights {
		slices.Sort(ws)
		mean, std := stat.MeanStdDev(ws, nil)
		out[n] = summary{
			texels: len(ws),
			mean:   mean,
			std:    std,
			min:    ws[0],
			median: stat.Quantile(0.5, stat.Empirical, ws, nil),
			max:    ws[len(ws)-1],
		}
	}
	return out
}

func report(m *blendmap.Map) {
	total := m.Width * m.Height
	sums := summarize(m)
	counts := make([]int, 0, len(sums))
	covered := 0
	for n, s := range sums {
		counts = append(counts, n)
		covered += s.texels
	}
	slices.Sort(counts)

	fmt.Printf("Covered: %d/%d texels (%.1f%%)\n", covered, total, 100*float64(covered)/float64(max(total, 1)))
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-10s %8s %8s %8s %6s %6s %6s\n", "projectors", "texels", "mean", "std", "min", "median", "max")
	for _, n := range counts {
		s := sums[n]
		fmt.Printf("%-10d %8d %8.1f %8.1f %6.0f %6.0f %6.0f\n", n, s.texels, s.mean, s.std, s.min, s.median, s.max)
	}
}
