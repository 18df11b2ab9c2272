package databank

import "github.com/dustin/go-humanize"

// humanBytes renders a byte count the way DatabankInfo.String and the CLI's
// "info"/"validate" output do (go-humanize, the pack's byte-formatting
// library).
func humanBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}
