package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/tracker"
)

// runCommands feeds interaction signals read line by line from r into t
// until r is exhausted or ctx is done. Unknown or malformed lines are logged
// and skipped.
func runCommands(ctx context.Context, r io.Reader, t *tracker.Tracker, out io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := apply(ctx, t, strings.Fields(line), out); err != nil {
			log.Warn().Err(err).Str("line", line).Msg("Ignoring command")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Failed to read commands")
	}
}

func apply(ctx context.Context, t *tracker.Tracker, fields []string, out io.Writer) error {
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "focus":
		t.Focus()
	case "blur":
		t.Blur()
	case "visible":
		t.VisibilityChanged(true)
	case "hidden":
		t.VisibilityChanged(false)
	case "click":
		t.Click()
	case "pageview":
		t.IncrementPageViews()
	case "mouse":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Errorf("mouse: bad count %q", args[0])
			}
			n = v
		}
		for i := 0; i < n; i++ {
			t.MouseMove()
		}
	case "scroll":
		if len(args) != 3 {
			return fmt.Errorf("scroll: want <top> <height> <viewport>")
		}
		nums := make([]float64, 3)
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			nums[i] = v
		}
		t.Scroll(nums[0], nums[1], nums[2])
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("load: want <milliseconds>")
		}
		ms, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		end := time.Now()
		t.PageLoaded(end.Add(-time.Duration(ms)*time.Millisecond), end)
	case "send":
		if _, err := t.SendTrackingData(ctx); err != nil {
			return err
		}
	case "snapshot":
		return json.NewEncoder(out).Encode(t.Snapshot(ctx))
	case "events":
		return json.NewEncoder(out).Encode(t.Events())
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
