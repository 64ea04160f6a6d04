package simulator

import (
	"fmt"
	"math"
	"strconv"

	"container_telemetry/internal/telemetry"
)

// FormatFrame renders st in the device wire format:
// battery,hot,cold,closed,activeFunctions,shake
func FormatFrame(st State) string {
	battery := int(math.Round(st.Battery))
	if battery < 0 {
		battery = 0
	} else if battery > 100 {
		battery = 100
	}
	closed := 0
	if st.Closed {
		closed = 1
	}
	return fmt.Sprintf("%d,%s,%s,%d,%d,%.2f",
		battery,
		formatTemp(st.HotC, st.HotFault),
		formatTemp(st.ColdC, st.ColdFault),
		closed,
		st.ActiveFunctions(),
		st.Shake,
	)
}

func formatTemp(c float64, fault bool) string {
	if fault {
		return telemetry.SensorErrorToken
	}
	return strconv.FormatFloat(c, 'f', 2, 64)
}
