package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forecourt/forecourt/internal/platform/xlsx"
)

var exportHeaders = []string{"When", "Actor", "Action", "Entity", "Entity ID", "Details"}

// WriteCSV writes rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			actorLabel(row),
			row.Action,
			row.Entity,
			row.EntityID,
			row.Summary(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows as a single sheet workbook.
func WriteXLSX(w io.Writer, rows []TimelineRow) error {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, []any{row.At.UTC(), actorLabel(row), row.Action, row.Entity, row.EntityID, row.Summary()})
	}
	return xlsx.Write(w, "Activity", exportHeaders, out)
}

func actorLabel(row TimelineRow) string {
	if row.Actor != "" {
		return row.Actor
	}
	if row.ActorID > 0 {
		return "user #" + strconv.FormatInt(row.ActorID, 10)
	}
	return "system"
}

func formatMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, " ")
}
