package telemetry

import (
	"reflect"
	"testing"

	"container_telemetry/internal/models"
)

func hasDiag(ds []Diagnostic, kind DiagnosticKind, field string) bool {
	for _, d := range ds {
		if d.Kind == kind && (field == "" || d.Field == field) {
			return true
		}
	}
	return false
}

func TestParse_ValidFrame(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	res := p.Parse("85,25.50,15.20,1,2,0.15")
	s := res.Sample

	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", res.Diagnostics)
	}
	if s.BatteryPercent == nil || *s.BatteryPercent != 85 {
		t.Fatalf("battery = %v, want 85", s.BatteryPercent)
	}
	if !s.HotTemp.OK() || s.HotTemp.Celsius != 25.5 {
		t.Fatalf("hot = %+v, want 25.5", s.HotTemp)
	}
	if !s.ColdTemp.OK() || s.ColdTemp.Celsius != 15.2 {
		t.Fatalf("cold = %+v, want 15.2", s.ColdTemp)
	}
	if s.Closed == nil || !*s.Closed {
		t.Fatalf("closed = %v, want true", s.Closed)
	}
	if s.ActiveFunctionCount == nil || *s.ActiveFunctionCount != 2 {
		t.Fatalf("functions = %v, want 2", s.ActiveFunctionCount)
	}
	if s.ShakeMagnitude == nil || *s.ShakeMagnitude != 0.15 {
		t.Fatalf("shake = %v, want 0.15", s.ShakeMagnitude)
	}
}

func TestParse_SensorErrorIsDistinct(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	res := p.Parse("90,er,12.30,0,1,2.50")
	s := res.Sample

	if !s.HotTemp.IsSensorError() {
		t.Fatalf("hot = %+v, want sensor error", s.HotTemp)
	}
	if s.HotTemp.Celsius != 0 || s.HotTemp.OK() {
		t.Fatalf("sensor error must not carry a value: %+v", s.HotTemp)
	}
	if !s.ColdTemp.OK() || s.ColdTemp.Celsius != 12.3 {
		t.Fatalf("cold = %+v, want 12.3", s.ColdTemp)
	}
	if s.Closed == nil || *s.Closed {
		t.Fatalf("closed = %v, want false", s.Closed)
	}
	if !hasDiag(res.Diagnostics, DiagSensorError, "hot_temp") {
		t.Fatalf("missing sensor_error diagnostic: %+v", res.Diagnostics)
	}
	if s.AllInvalid() {
		t.Fatalf("frame with sentinel must not count as invalid")
	}
}

func TestParse_PartialInvalidityDoesNotCascade(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	res := p.Parse("105,30.0,10.0,1,0,0.1")
	s := res.Sample

	if s.BatteryPercent != nil {
		t.Fatalf("battery = %d, want nil", *s.BatteryPercent)
	}
	if !hasDiag(res.Diagnostics, DiagInvalidField, "battery") {
		t.Fatalf("missing invalid battery diagnostic: %+v", res.Diagnostics)
	}
	if !s.HotTemp.OK() || !s.ColdTemp.OK() || s.Closed == nil || s.ActiveFunctionCount == nil || s.ShakeMagnitude == nil {
		t.Fatalf("other fields should be valid: %+v", s)
	}
}

func TestParse_FieldRules(t *testing.T) {
	p := NewParser(DefaultParserConfig())

	tests := []struct {
		name  string
		line  string
		field string
		check func(models.TelemetrySample) bool
	}{
		{"negative battery", "-1,20,5,1,0,0", "battery", func(s models.TelemetrySample) bool { return s.BatteryPercent == nil }},
		{"fractional battery", "50.5,20,5,1,0,0", "battery", func(s models.TelemetrySample) bool { return s.BatteryPercent == nil }},
		{"hot above range", "50,150,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"cold below range", "50,20,-60,1,0,0", "cold_temp", func(s models.TelemetrySample) bool { return s.ColdTemp.Status == models.TempMissing }},
		{"sentinel is case sensitive", "50,ER,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"NaN temperature", "50,NaN,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"Inf shake", "50,20,5,1,0,+Inf", "shake", func(s models.TelemetrySample) bool { return s.ShakeMagnitude == nil }},
		{"hex float temperature", "50,0x1Ap0,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"underscore temperature", "50,20,1_0,1,0,0", "cold_temp", func(s models.TelemetrySample) bool { return s.ColdTemp.Status == models.TempMissing }},
		{"exponent temperature", "50,2.5e1,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"hex float shake", "50,20,5,1,0,0x1p-2", "shake", func(s models.TelemetrySample) bool { return s.ShakeMagnitude == nil }},
		{"two points", "50,20.1.5,5,1,0,0", "hot_temp", func(s models.TelemetrySample) bool { return s.HotTemp.Status == models.TempMissing }},
		{"bare point", "50,20,5,1,0,.", "shake", func(s models.TelemetrySample) bool { return s.ShakeMagnitude == nil }},
		{"hex battery", "0x32,20,5,1,0,0", "battery", func(s models.TelemetrySample) bool { return s.BatteryPercent == nil }},
		{"closure not binary", "50,20,5,2,0,0", "closed", func(s models.TelemetrySample) bool { return s.Closed == nil }},
		{"negative functions", "50,20,5,1,-3,0", "active_functions", func(s models.TelemetrySample) bool { return s.ActiveFunctionCount == nil }},
		{"shake above max", "50,20,5,1,0,25", "shake", func(s models.TelemetrySample) bool { return s.ShakeMagnitude == nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := p.Parse(tc.line)
			if !tc.check(res.Sample) {
				t.Fatalf("unexpected sample: %+v", res.Sample)
			}
			if !hasDiag(res.Diagnostics, DiagInvalidField, tc.field) {
				t.Fatalf("expected invalid_field for %s, got %+v", tc.field, res.Diagnostics)
			}
		})
	}
}

func TestParse_NonDecimalNumbersDoNotCascade(t *testing.T) {
	res := NewParser(DefaultParserConfig()).Parse("85,0x1Ap0,1_0,1,2,0x1p-2")

	s := res.Sample
	if s.HotTemp.Status != models.TempMissing || s.ColdTemp.Status != models.TempMissing || s.ShakeMagnitude != nil {
		t.Fatalf("non-decimal fields must be rejected: %+v", s)
	}
	if s.BatteryPercent == nil || *s.BatteryPercent != 85 || s.ActiveFunctionCount == nil || *s.ActiveFunctionCount != 2 {
		t.Fatalf("decimal fields should survive: %+v", s)
	}
	for _, f := range []string{"hot_temp", "cold_temp", "shake"} {
		if !hasDiag(res.Diagnostics, DiagInvalidField, f) {
			t.Fatalf("expected invalid_field for %s, got %+v", f, res.Diagnostics)
		}
	}
}

func TestIsPlainDecimal(t *testing.T) {
	for _, in := range []string{"0", "25.50", "-12.5", "+3", "7.", ".5"} {
		if !isPlainDecimal(in) {
			t.Fatalf("%q should be accepted", in)
		}
	}
	for _, in := range []string{"", "-", ".", "1e3", "0x10", "1_000", "Inf", "NaN", " 1", "1.2.3"} {
		if isPlainDecimal(in) {
			t.Fatalf("%q should be rejected", in)
		}
	}
}

func TestParse_TooFewFields(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	res := p.Parse("85,25.5,15.2")

	if !res.Malformed() {
		t.Fatalf("expected malformed frame, got %+v", res.Diagnostics)
	}
	if !res.Sample.AllInvalid() {
		t.Fatalf("all fields must be nil: %+v", res.Sample)
	}
}

func TestParse_ExtraFieldsAreIgnored(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	res := p.Parse(" 85, 25.5 ,15.2,1,2,0.15,garbage,more\r\n")

	if !hasDiag(res.Diagnostics, DiagExtraFields, "") {
		t.Fatalf("expected extra_fields diagnostic, got %+v", res.Diagnostics)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("only the extra-field warning expected, got %+v", res.Diagnostics)
	}
	if res.Sample.HotTemp.Celsius != 25.5 || res.Sample.ShakeMagnitude == nil {
		t.Fatalf("fields should still parse: %+v", res.Sample)
	}
}

func TestParse_Deterministic(t *testing.T) {
	p := NewParser(DefaultParserConfig())
	lines := []string{
		"85,25.50,15.20,1,2,0.15",
		"90,er,er,0,1,2.50",
		"x,y,z,q,w,e",
		"",
	}
	for _, l := range lines {
		a, b := p.Parse(l), p.Parse(l)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("parse(%q) not deterministic: %+v vs %+v", l, a, b)
		}
	}
}

func TestNewParser_FixesInvalidConfig(t *testing.T) {
	p := NewParser(ParserConfig{TempMin: 10, TempMax: 0})
	if p.cfg != DefaultParserConfig() {
		t.Fatalf("cfg = %+v, want defaults", p.cfg)
	}
}
