package forecast

import (
	"encoding/json"
	"fmt"
	"io"
)

// Serve is the external computation: it reads a date-ascending JSON array
// of {date, totalRevenue} from in and writes one response envelope to out.
// Failures of the regression itself are reported in the envelope; only
// unreadable input or a failed write return an error, which the forecaster
// command turns into a nonzero exit status.
func Serve(in io.Reader, out io.Writer, horizonDays int) error {
	var series []SeriesPoint
	if err := json.NewDecoder(in).Decode(&series); err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	fc, err := Fit(series, horizonDays)
	if err != nil {
		return EncodeResponse(out, nil, err)
	}
	return EncodeResponse(out, fc, nil)
}
