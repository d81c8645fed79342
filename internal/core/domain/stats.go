package domain

import (
	"sort"
	"strings"
	"time"
)

const UnknownCameraLabel = "unknown"

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// StatsReport aggregates shooting habits over a set of photos. NoData marks an
// empty selection and leaves every distribution nil.
type StatsReport struct {
	NoData        bool      `json:"no_data"`
	Range         DateRange `json:"range"`
	Total         int       `json:"total"`
	WithCompanion int       `json:"with_companion"`
	Selected      int       `json:"selected"`

	Categories   []Bucket `json:"categories,omitempty"`
	Cameras      []Bucket `json:"cameras,omitempty"`
	FocalLengths []Bucket `json:"focal_lengths,omitempty"`
	ISOs         []Bucket `json:"isos,omitempty"`
	Apertures    []Bucket `json:"apertures,omitempty"`
}

type binEdge struct {
	label string
	upper float64
	// inclusive upper edge when true, exclusive otherwise
	closed bool
}

var focalBins = []binEdge{
	{label: "<24", upper: 24},
	{label: "24–35", upper: 35},
	{label: "35–50", upper: 50},
	{label: "50–85", upper: 85},
	{label: "85–135", upper: 135},
	{label: ">135"},
}

var isoBins = []binEdge{
	{label: "≤200", upper: 200, closed: true},
	{label: "201–800", upper: 800, closed: true},
	{label: "801–3200", upper: 3200, closed: true},
	{label: ">3200"},
}

var apertureBins = []binEdge{
	{label: "≤f/2.8", upper: 2.8, closed: true},
	{label: "f/2.8–5.6", upper: 5.6, closed: true},
	{label: ">f/5.6"},
}

func binIndex(bins []binEdge, v float64) int {
	last := len(bins) - 1
	for i := 0; i < last; i++ {
		b := bins[i]
		if (b.closed && v <= b.upper) || (!b.closed && v < b.upper) {
			return i
		}
	}
	return last
}

func emptyBuckets(bins []binEdge) []Bucket {
	out := make([]Bucket, len(bins))
	for i, b := range bins {
		out[i] = Bucket{Label: b.label}
	}
	return out
}

// Aggregate builds the statistics report for photos. A photo missing a field
// is excluded only from that field's distribution.
func Aggregate(photos []Photo, window DateRange) *StatsReport {
	report := &StatsReport{Range: window}
	if len(photos) == 0 {
		report.NoData = true
		return report
	}

	focal := emptyBuckets(focalBins)
	iso := emptyBuckets(isoBins)
	aperture := emptyBuckets(apertureBins)
	categories := make(map[string]int)
	cameras := make(map[string]int)

	for i := range photos {
		p := &photos[i]
		report.Total++
		if p.HasCompanion() {
			report.WithCompanion++
		}
		if p.IsSelected {
			report.Selected++
		}

		category := string(p.Category)
		if category == "" {
			category = string(CategoryUnclassified)
		}
		categories[category]++

		camera := UnknownCameraLabel
		if p.CameraModel != nil && strings.TrimSpace(*p.CameraModel) != "" {
			camera = *p.CameraModel
		}
		cameras[camera]++

		if p.FocalLengthMM != nil && *p.FocalLengthMM > 0 {
			focal[binIndex(focalBins, *p.FocalLengthMM)].Count++
		}
		if p.ISO != nil && *p.ISO > 0 {
			iso[binIndex(isoBins, float64(*p.ISO))].Count++
		}
		if p.Aperture != nil && *p.Aperture > 0 {
			aperture[binIndex(apertureBins, *p.Aperture)].Count++
		}
	}

	report.FocalLengths = focal
	report.ISOs = iso
	report.Apertures = aperture
	report.Categories = groupedBuckets(categories)
	report.Cameras = groupedBuckets(cameras)
	return report
}

func groupedBuckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

type ChartKind string

const (
	ChartPie ChartKind = "pie"
	ChartBar ChartKind = "bar"
)

type ChartSeries struct {
	Name   string    `json:"name"`
	Kind   ChartKind `json:"kind"`
	Labels []string  `json:"labels"`
	Values []int     `json:"values"`
}

func NewChartSeries(name string, kind ChartKind, buckets []Bucket) ChartSeries {
	series := ChartSeries{
		Name:   name,
		Kind:   kind,
		Labels: make([]string, 0, len(buckets)),
		Values: make([]int, 0, len(buckets)),
	}
	for _, b := range buckets {
		series.Labels = append(series.Labels, b.Label)
		series.Values = append(series.Values, b.Count)
	}
	return series
}

// Summary is the statistics report plus chart series and a written review.
type Summary struct {
	NoData      bool          `json:"no_data"`
	Message     string        `json:"message,omitempty"`
	Stats       *StatsReport  `json:"stats"`
	Charts      []ChartSeries `json:"charts,omitempty"`
	AIEnabled   bool          `json:"ai_enabled"`
	AIText      string        `json:"ai_text,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type QuickStats struct {
	Total         int `json:"total"`
	WithCompanion int `json:"with_companion"`
	Selected      int `json:"selected"`
	Classified    int `json:"classified"`
	Unclassified  int `json:"unclassified"`
}
