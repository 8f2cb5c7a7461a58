package strategy

import (
	"fmt"
	"math"

	"quantetf/internal/domain"
)

const (
	// AccuracyHorizon is the number of forward bars inspected per sample.
	AccuracyHorizon = 5
	// HitReturn is the forward max return a sample must exceed to count
	// as a hit.
	HitReturn = 0.02
	// HighConfidence is the score floor of the high-confidence summary.
	HighConfidence = 0.65
)

// AccuracyBins are the left-closed score bucket edges.
var AccuracyBins = []float64{0, 0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 1.01}

// Sample pairs a bar's score with the best return reachable over the next
// few bars, measured from that bar's close.
type Sample struct {
	Score     float64
	MaxReturn float64
}

// ForwardSamples builds one Sample per bar that has at least one later bar;
// the forward window is truncated near the end of the series.
func ForwardSamples(bars []domain.FeatureBar, scores []float64, horizon int) []Sample {
	var out []Sample
	for i := 0; i+1 < len(bars); i++ {
		if bars[i].Close <= 0 {
			continue
		}
		best := math.Inf(-1)
		for j := i + 1; j <= i+horizon && j < len(bars); j++ {
			best = math.Max(best, bars[j].High)
		}
		out = append(out, Sample{Score: scores[i], MaxReturn: best/bars[i].Close - 1})
	}
	return out
}

// Bucket is the accuracy of the samples whose score lies in [Lo, Hi).
type Bucket struct {
	Label         string  `json:"label"`
	Lo            float64 `json:"lo"`
	Hi            float64 `json:"hi"`
	Count         int     `json:"count"`
	Hits          int     `json:"hits"`
	HitRate       float64 `json:"hit_rate"`
	MeanMaxReturn float64 `json:"mean_max_return"`
}

func (b *Bucket) add(s Sample) {
	b.Count++
	if s.MaxReturn > HitReturn {
		b.Hits++
	}
	b.MeanMaxReturn += s.MaxReturn
}

func (b *Bucket) finish() {
	if b.Count == 0 {
		return
	}
	b.HitRate = float64(b.Hits) / float64(b.Count)
	b.MeanMaxReturn /= float64(b.Count)
}

// AccuracyReport is the bucketed signal accuracy of a pool of samples.
// Empty buckets are omitted.
type AccuracyReport struct {
	Total          int      `json:"total"`
	Buckets        []Bucket `json:"buckets"`
	HighConfidence Bucket   `json:"high_confidence"`
}

// Accuracy buckets samples by score. Scores outside every bucket only
// count towards Total.
func Accuracy(samples []Sample) AccuracyReport {
	buckets := make([]Bucket, len(AccuracyBins)-1)
	for i := range buckets {
		buckets[i] = Bucket{Label: bucketLabel(i), Lo: AccuracyBins[i], Hi: AccuracyBins[i+1]}
	}
	high := Bucket{Label: fmt.Sprintf(">=%.2f", HighConfidence), Lo: HighConfidence, Hi: AccuracyBins[len(AccuracyBins)-1]}

	for _, s := range samples {
		for i := range buckets {
			if s.Score >= buckets[i].Lo && s.Score < buckets[i].Hi {
				buckets[i].add(s)
				break
			}
		}
		if s.Score >= HighConfidence {
			high.add(s)
		}
	}

	rep := AccuracyReport{Total: len(samples)}
	for i := range buckets {
		if buckets[i].Count == 0 {
			continue
		}
		buckets[i].finish()
		rep.Buckets = append(rep.Buckets, buckets[i])
	}
	high.finish()
	rep.HighConfidence = high
	return rep
}

func bucketLabel(i int) string {
	switch {
	case i == 0:
		return fmt.Sprintf("<%.2f", AccuracyBins[1])
	case i == len(AccuracyBins)-2:
		return fmt.Sprintf(">%.2f", AccuracyBins[i])
	}
	return fmt.Sprintf("%.2f-%.2f", AccuracyBins[i], AccuracyBins[i+1])
}
