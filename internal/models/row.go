package models

// DeltaColor indicates how a change value should be presented
type DeltaColor string

const (
	DeltaGreen DeltaColor = "green"
	DeltaRed   DeltaColor = "red"
	DeltaBlue  DeltaColor = "blue"
)

// Delta describes the change component of a data row
type Delta struct {
	Value    string     `json:"value"` // formatted, e.g. "+2.41%"
	Color    DeltaColor `json:"color"`
	RawDelta float64    `json:"raw_delta"`
}

// Row is one normalized data point produced by a source module
type Row struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Delta     *Delta `json:"delta,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DeltaFor builds a Delta from a raw change, coloring positive values
// green and negative values red. Zero change renders blue.
func DeltaFor(raw float64, formatted string) *Delta {
	color := DeltaBlue
	switch {
	case raw > 0:
		color = DeltaGreen
	case raw < 0:
		color = DeltaRed
	}
	return &Delta{Value: formatted, Color: color, RawDelta: raw}
}
