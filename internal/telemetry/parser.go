// Package telemetry turns raw container frames into validated samples and
// rate-limited operator events.
package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"container_telemetry/internal/models"
)

// Frame layout: battery,hot,cold,closed,activeFunctions,shake[,ignored...]
const (
	fieldBattery = iota
	fieldHotTemp
	fieldColdTemp
	fieldClosed
	fieldFunctions
	fieldShake

	frameFields = 6
)

// SensorErrorToken is what the device sends in place of a temperature when the sensor fails.
const SensorErrorToken = "er"

var fieldNames = [frameFields]string{"battery", "hot_temp", "cold_temp", "closed", "active_functions", "shake"}

// DiagnosticKind classifies a problem found while parsing a frame.
type DiagnosticKind int

const (
	DiagTooFewFields DiagnosticKind = iota
	DiagInvalidField
	DiagSensorError
	DiagExtraFields
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagTooFewFields:
		return "too_few_fields"
	case DiagInvalidField:
		return "invalid_field"
	case DiagSensorError:
		return "sensor_error"
	case DiagExtraFields:
		return "extra_fields"
	default:
		return "unknown"
	}
}

func (k DiagnosticKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Diagnostic is reported alongside a sample; it is never an error return.
type Diagnostic struct {
	Kind  DiagnosticKind `json:"kind"`
	Field string         `json:"field,omitempty"`
	Raw   string         `json:"raw,omitempty"`
	Note  string         `json:"note,omitempty"`
}

// ParseResult is the outcome of parsing a single line.
type ParseResult struct {
	Sample      models.TelemetrySample
	Diagnostics []Diagnostic
}

// Malformed reports whether the frame could not be split into fields at all.
func (r ParseResult) Malformed() bool {
	for _, d := range r.Diagnostics {
		if d.Kind == DiagTooFewFields {
			return true
		}
	}
	return false
}

// ParserConfig holds the plausible ranges for the numeric fields.
type ParserConfig struct {
	TempMin  float64
	TempMax  float64
	MaxShake float64
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{TempMin: -50, TempMax: 100, MaxShake: 20}
}

// Parser decodes frames. It holds no per-frame state and is safe for concurrent use.
type Parser struct {
	cfg ParserConfig
}

func NewParser(cfg ParserConfig) *Parser {
	if cfg.TempMax <= cfg.TempMin {
		def := DefaultParserConfig()
		cfg.TempMin, cfg.TempMax = def.TempMin, def.TempMax
	}
	if cfg.MaxShake <= 0 {
		cfg.MaxShake = DefaultParserConfig().MaxShake
	}
	return &Parser{cfg: cfg}
}

// Parse never fails: every problem becomes a nil field plus a diagnostic.
func (p *Parser) Parse(line string) ParseResult {
	var res ParseResult

	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < frameFields {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind: DiagTooFewFields,
			Raw:  line,
			Note: fmt.Sprintf("got %d fields, want %d", len(fields), frameFields),
		})
		return res
	}
	if extra := len(fields) - frameFields; extra > 0 {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind: DiagExtraFields,
			Note: fmt.Sprintf("%d trailing field(s) ignored", extra),
		})
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	invalid := func(idx int) {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:  DiagInvalidField,
			Field: fieldNames[idx],
			Raw:   fields[idx],
		})
	}

	if v, err := strconv.Atoi(fields[fieldBattery]); err == nil && v >= 0 && v <= 100 {
		res.Sample.BatteryPercent = models.IntPtr(v)
	} else {
		invalid(fieldBattery)
	}

	for _, idx := range []int{fieldHotTemp, fieldColdTemp} {
		t := p.parseTemp(fields[idx])
		switch t.Status {
		case models.TempSensorError:
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Kind: DiagSensorError, Field: fieldNames[idx]})
		case models.TempMissing:
			invalid(idx)
		}
		if idx == fieldHotTemp {
			res.Sample.HotTemp = t
		} else {
			res.Sample.ColdTemp = t
		}
	}

	switch fields[fieldClosed] {
	case "1":
		res.Sample.Closed = models.BoolPtr(true)
	case "0":
		res.Sample.Closed = models.BoolPtr(false)
	default:
		invalid(fieldClosed)
	}

	if v, err := strconv.Atoi(fields[fieldFunctions]); err == nil && v >= 0 {
		res.Sample.ActiveFunctionCount = models.IntPtr(v)
	} else {
		invalid(fieldFunctions)
	}

	if v, ok := parseFinite(fields[fieldShake]); ok && v >= 0 && v <= p.cfg.MaxShake {
		res.Sample.ShakeMagnitude = models.FloatPtr(v)
	} else {
		invalid(fieldShake)
	}

	return res
}

func (p *Parser) parseTemp(raw string) models.Temperature {
	if raw == SensorErrorToken {
		return models.TempFault()
	}
	v, ok := parseFinite(raw)
	if !ok || v < p.cfg.TempMin || v > p.cfg.TempMax {
		return models.Temperature{Status: models.TempMissing}
	}
	return models.TempValue(v)
}

// parseFinite accepts plain decimals only: an optional sign, digits and at
// most one point. ParseFloat alone would also take NaN, Inf, exponents, hex
// floats and digit underscores.
func parseFinite(raw string) (float64, bool) {
	if !isPlainDecimal(raw) {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isPlainDecimal(s string) bool {
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	digits, points := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			points++
		default:
			return false
		}
	}
	return digits > 0 && points <= 1
}
