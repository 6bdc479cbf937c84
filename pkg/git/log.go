package git

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// LogEntry is one commit as reported by Log.
type LogEntry struct {
	Hash    string
	Date    time.Time
	Subject string
	Files   []string
}

const logFormat = "--pretty=format:\x1e%H\x1f%aI\x1f%s"

// Log returns up to n recent commits with the files each one touched.
func (c *Client) Log(ctx context.Context, n int, paths ...string) ([]LogEntry, error) {
	args := []string{"log", "-n", strconv.Itoa(n), "--name-only", logFormat}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	out, err := c.Run(ctx, args...)
	if err != nil {
		// An empty repository has no log.
		if head, headErr := c.Head(ctx); headErr == nil && head == "" {
			return nil, nil
		}
		return nil, err
	}
	return parseLog(out), nil
}

func parseLog(out string) []LogEntry {
	var entries []LogEntry
	for _, record := range strings.Split(out, "\x1e") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		lines := strings.Split(record, "\n")
		fields := strings.SplitN(lines[0], "\x1f", 3)
		if len(fields) != 3 {
			continue
		}
		entry := LogEntry{Hash: fields[0], Subject: fields[2]}
		if t, err := time.Parse(time.RFC3339, fields[1]); err == nil {
			entry.Date = t
		}
		for _, l := range lines[1:] {
			if l = strings.TrimSpace(l); l != "" {
				entry.Files = append(entry.Files, l)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
