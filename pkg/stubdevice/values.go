package stubdevice

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// presets override the registry-derived starting values.
var presets = map[string]string{
	"Main.Power":         "On",
	"Main.Volume":        "-48",
	"Main.Mute":          "Off",
	"Main.Dimmer":        "On",
	"Main.Speaker.A":     "On",
	"Main.Speaker.B":     "Off",
	"Main.Temp.PSU":      "32",
	"Main.Temp.Front":    "27",
	"Main.Version":       "v2.24",
	"Main.Source.Name":   "Stream",
	"Zone2.Power":        "Off",
	"Zone2.Volume":       "-40",
	"Tuner.Band":         "FM",
	"Tuner.FM.Frequency": "98.5",
	"Tuner.AM.Frequency": "1010",
}

// initialValues builds the starting state for every registered command.
func initialValues(reg *registry.Registry, model string) map[string]string {
	values := make(map[string]string, reg.Len())
	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		if v, ok := presets[name]; ok {
			values[name] = v
			continue
		}
		switch def.Domain.Kind {
		case registry.DomainEnum:
			values[name] = def.Domain.Values[0]
		case registry.DomainRange:
			values[name] = formatStep(def.Domain.Min, def.Domain.Step)
		default:
			values[name] = ""
		}
	}
	values["Main.Model"] = model
	return values
}

// step applies + or - to the current value of def.
func step(def registry.Definition, current string, op wire.Operator) string {
	switch def.Domain.Kind {
	case registry.DomainEnum:
		vals := def.Domain.Values
		i := slices.Index(vals, current)
		if i < 0 {
			return vals[0]
		}
		if op == wire.OpIncrement {
			return vals[(i+1)%len(vals)]
		}
		return vals[(i-1+len(vals))%len(vals)]

	case registry.DomainRange:
		f, err := strconv.ParseFloat(current, 64)
		if err != nil {
			f = def.Domain.Min
		}
		if op == wire.OpIncrement {
			f += def.Domain.Step
		} else {
			f -= def.Domain.Step
		}
		f = math.Max(def.Domain.Min, math.Min(def.Domain.Max, f))
		return formatStep(f, def.Domain.Step)
	}
	return current
}

// formatStep prints f with as many decimals as step has.
func formatStep(f, step float64) string {
	decimals := 0
	if s := strconv.FormatFloat(step, 'f', -1, 64); strings.Contains(s, ".") {
		decimals = len(s) - strings.Index(s, ".") - 1
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}
