package logging

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

const boxMinWidth = 40

// BoxLines frames lines in asterisks for banner output
func BoxLines(lines ...string) []string {
	longest := 0
	for _, l := range lines {
		longest = max(longest, len(l))
	}
	width := max(boxMinWidth, longest+8)
	rule := strings.Repeat("*", width)

	out := make([]string, 0, len(lines)+2)
	out = append(out, rule)
	for _, l := range lines {
		out = append(out, fmt.Sprintf("*** %-*s ***", width-8, l))
	}
	return append(out, rule)
}

// LogBox logs lines as a boxed banner
func LogBox(logger log.Logger, lines ...string) {
	for _, l := range BoxLines(lines...) {
		logger.Info(l)
	}
}
