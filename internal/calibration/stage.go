package calibration

import (
	"fmt"
	"image/color"
)

// Stage is the growth phase of a fish.
type Stage int

const (
	Starter Stage = iota
	Grower
	Finisher
)

type stageInfo struct {
	name  string
	icon  string
	color color.RGBA
}

var stageTable = [...]stageInfo{
	Starter:  {name: "Starter", icon: "sprout", color: color.RGBA{R: 0, G: 255, B: 0, A: 255}},
	Grower:   {name: "Grower", icon: "fish", color: color.RGBA{R: 255, G: 255, B: 0, A: 255}},
	Finisher: {name: "Finisher", icon: "flag-checkered", color: color.RGBA{R: 255, G: 0, B: 0, A: 255}},
}

// Stages lists every stage in growth order.
func Stages() []Stage {
	return []Stage{Starter, Grower, Finisher}
}

func (s Stage) valid() bool {
	return s >= Starter && s <= Finisher
}

// String returns the display name of the stage
func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageTable[s].name
}

// Icon returns the icon name shown next to the saved snapshot
func (s Stage) Icon() string {
	if !s.valid() {
		return "fish"
	}
	return stageTable[s].icon
}

// Color returns the annotation colour for the stage
func (s Stage) Color() color.RGBA {
	if !s.valid() {
		return stageTable[Starter].color
	}
	return stageTable[s].color
}

// ParseStage is the inverse of String.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages() {
		if stageTable[s].name == name {
			return s, nil
		}
	}
	return Starter, fmt.Errorf("unknown stage %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
