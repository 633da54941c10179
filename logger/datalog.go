// Package logger records per-iteration statistics of an experiment,
// saves them as csv/json and renders training curves.
package logger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strconv"

	"golang.org/x/exp/maps"
)

// DataLog stores one series per key. The current row is the length of the
// longest series; keys logged once per iteration stay aligned with it.
type DataLog struct {
	Log    map[string][]float64
	MaxLen int
}

func NewDataLog() *DataLog {
	return &DataLog{
		Log: make(map[string][]float64),
	}
}

func (d *DataLog) LogKV(key string, value float64) {
	d.Log[key] = append(d.Log[key], value)
	if len(d.Log[key]) > d.MaxLen {
		d.MaxLen = len(d.Log[key])
	}
}

// Keys in sorted order
func (d *DataLog) Keys() []string {
	keys := maps.Keys(d.Log)
	sort.Strings(keys)
	return keys
}

func (d *DataLog) Series(key string) []float64 {
	return d.Log[key]
}

// Last value of the key, if it was ever logged
func (d *DataLog) Last(key string) (float64, bool) {
	s := d.Log[key]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// CurrentLog is the last value of every key
func (d *DataLog) CurrentLog() map[string]float64 {
	out := make(map[string]float64, len(d.Log))
	for k, v := range d.Log {
		if len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

// CurrentLogPrint is the last value of the keys logged in the current row
func (d *DataLog) CurrentLogPrint() map[string]float64 {
	out := make(map[string]float64)
	for k, v := range d.Log {
		if len(v) == d.MaxLen && len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

// SaveLog writes log.csv and log.json in dir
func (d *DataLog) SaveLog(dir string) error {
	bs, err := json.Marshal(d.jsonSeries())
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	if err := os.WriteFile(path.Join(dir, "log.json"), bs, 0644); err != nil {
		return fmt.Errorf("write log: %w", err)
	}

	f, err := os.Create(path.Join(dir, "log.csv"))
	if err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	defer f.Close()

	keys := d.Keys()
	w := csv.NewWriter(f)
	if err := w.Write(keys); err != nil {
		return err
	}
	for row := 0; row < d.MaxLen; row++ {
		record := make([]string, len(keys))
		for i, k := range keys {
			if s := d.Log[k]; row < len(s) {
				record[i] = strconv.FormatFloat(s[row], 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// json has no NaN or Inf, they are written as null
func (d *DataLog) jsonSeries() map[string][]interface{} {
	out := make(map[string][]interface{}, len(d.Log))
	for k, series := range d.Log {
		values := make([]interface{}, len(series))
		for i, v := range series {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				values[i] = v
			}
		}
		out[k] = values
	}
	return out
}
