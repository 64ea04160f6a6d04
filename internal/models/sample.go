package models

// TempStatus tells a valid reading apart from a missing one and from the
// device's explicit sensor-error sentinel.
type TempStatus int

const (
	TempMissing TempStatus = iota
	TempOK
	TempSensorError
)

// Temperature is a compartment reading. Celsius is only meaningful when Status is TempOK.
type Temperature struct {
	Status  TempStatus
	Celsius float64
}

func TempValue(c float64) Temperature { return Temperature{Status: TempOK, Celsius: c} }

func TempFault() Temperature { return Temperature{Status: TempSensorError} }

func (t Temperature) OK() bool { return t.Status == TempOK }

func (t Temperature) IsSensorError() bool { return t.Status == TempSensorError }

// TelemetrySample is one decoded frame. Every field is independent: a bad
// battery value leaves the temperatures untouched.
type TelemetrySample struct {
	BatteryPercent      *int
	HotTemp             Temperature
	ColdTemp            Temperature
	Closed              *bool
	ActiveFunctionCount *int
	ShakeMagnitude      *float64
}

// AllInvalid reports whether no field could be decoded. The sensor-error
// sentinel is a decoded value, so a frame carrying it is not invalid.
func (s TelemetrySample) AllInvalid() bool {
	return s.BatteryPercent == nil &&
		s.HotTemp.Status == TempMissing &&
		s.ColdTemp.Status == TempMissing &&
		s.Closed == nil &&
		s.ActiveFunctionCount == nil &&
		s.ShakeMagnitude == nil
}

// IntPtr, FloatPtr and BoolPtr build optional sample fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }

func BoolPtr(v bool) *bool { return &v }
