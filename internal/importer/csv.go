// Package importer parses bulk delivery files into registration payloads.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"riderdispatch/internal/model"
)

// ParseDeliveries reads a CSV stream into delivery registration payloads.
// The header row is required; column order is free and unknown columns are
// ignored. Timestamps are RFC3339. A row with a malformed value fails the
// whole import so partial batches never land.
func ParseDeliveries(r io.Reader) ([]model.DeliveryIn, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"origin_lat", "origin_lng", "dest_lat", "dest_lng"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []model.DeliveryIn
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		d := model.DeliveryIn{ExternalRef: get("external_ref")}
		if d.Origin.Lat, err = parseFloat(get("origin_lat")); err != nil {
			return nil, fmt.Errorf("line %d origin_lat: %w", line, err)
		}
		if d.Origin.Lng, err = parseFloat(get("origin_lng")); err != nil {
			return nil, fmt.Errorf("line %d origin_lng: %w", line, err)
		}
		if d.Destination.Lat, err = parseFloat(get("dest_lat")); err != nil {
			return nil, fmt.Errorf("line %d dest_lat: %w", line, err)
		}
		if d.Destination.Lng, err = parseFloat(get("dest_lng")); err != nil {
			return nil, fmt.Errorf("line %d dest_lng: %w", line, err)
		}
		if v := get("weight_kg"); v != "" {
			if d.WeightKg, err = parseFloat(v); err != nil {
				return nil, fmt.Errorf("line %d weight_kg: %w", line, err)
			}
		}
		if v := get("volume_m3"); v != "" {
			if d.VolumeM3, err = parseFloat(v); err != nil {
				return nil, fmt.Errorf("line %d volume_m3: %w", line, err)
			}
		}
		if v := get("window_start"); v != "" {
			if d.WindowStart, err = time.Parse(time.RFC3339, v); err != nil {
				return nil, fmt.Errorf("line %d window_start: %w", line, err)
			}
		}
		if v := get("window_end"); v != "" {
			if d.WindowEnd, err = time.Parse(time.RFC3339, v); err != nil {
				return nil, fmt.Errorf("line %d window_end: %w", line, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}
