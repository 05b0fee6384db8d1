package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/quantmind-br/photofeed/internal/cache"
	"github.com/quantmind-br/photofeed/internal/domain"
	"gopkg.in/yaml.v3"
)

// Output formats for the inspection commands
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// encode writes v as json or yaml, or calls text for the plain format
func encode(w io.Writer, v any, format string, text func() error) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return text()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// WriteSnapshot prints snap in the given format. A nil snapshot prints as
// null (json/yaml) or a short notice (text).
func WriteSnapshot(w io.Writer, snap *domain.PollSnapshot, format string) error {
	return encode(w, snap, format, func() error {
		if !snap.IsActive() {
			_, err := fmt.Fprintln(w, "No active search.")
			return err
		}
		_, err := fmt.Fprintf(w, "Active search: %q\nFirst page:    %d photos\nUpdated:       %s\n",
			snap.Query, len(snap.FirstPageIDs), snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		return err
	})
}

// WriteCacheStats prints response cache statistics
func WriteCacheStats(w io.Writer, stats cache.Stats, format string) error {
	return encode(w, stats, format, func() error {
		_, err := fmt.Fprintf(w, "Cached responses: %d\nIndex size:       %s\nValue log size:   %s\n",
			stats.Entries, humanBytes(stats.LSMBytes), humanBytes(stats.VlogBytes))
		return err
	})
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
