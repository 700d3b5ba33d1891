// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polarsbuffer

// Table is an immutable snapshot of a Buffer (or of GetFeatures output):
// a row count plus column-major storage, numeric or string per column.
type Table struct {
	Size        int
	ColumnOrder []string
	IsNumeric   map[string]bool
	Numeric     map[string][]float64
	Strings     map[string][]string
}

// Column returns the numeric values for name, if any.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.Numeric[name]
	return v, ok
}

func (t *Table) clone() *Table {
	out := &Table{
		Size:        t.Size,
		ColumnOrder: append([]string(nil), t.ColumnOrder...),
		IsNumeric:   make(map[string]bool, len(t.IsNumeric)),
		Numeric:     make(map[string][]float64, len(t.Numeric)),
		Strings:     make(map[string][]string, len(t.Strings)),
	}
	for k, v := range t.IsNumeric {
		out.IsNumeric[k] = v
	}
	for k, v := range t.Numeric {
		out.Numeric[k] = append([]float64(nil), v...)
	}
	for k, v := range t.Strings {
		out.Strings[k] = append([]string(nil), v...)
	}
	return out
}

func (t *Table) addColumn(name string, values []float64) {
	if _, exists := t.IsNumeric[name]; !exists {
		t.ColumnOrder = append(t.ColumnOrder, name)
	}
	t.IsNumeric[name] = true
	t.Numeric[name] = values
}

// Tail returns a new Table containing only the last n rows. n <= 0 or
// n >= Size returns the whole table.
func (t *Table) Tail(n int) *Table {
	if n <= 0 || n >= t.Size {
		return t.clone()
	}
	start := t.Size - n
	out := &Table{
		Size:        n,
		ColumnOrder: append([]string(nil), t.ColumnOrder...),
		IsNumeric:   make(map[string]bool, len(t.IsNumeric)),
		Numeric:     make(map[string][]float64, len(t.Numeric)),
		Strings:     make(map[string][]string, len(t.Strings)),
	}
	for k, v := range t.IsNumeric {
		out.IsNumeric[k] = v
	}
	for name, vals := range t.Numeric {
		out.Numeric[name] = append([]float64(nil), vals[start:]...)
	}
	for name, vals := range t.Strings {
		out.Strings[name] = append([]string(nil), vals[start:]...)
	}
	return out
}

// ToRecords converts the table to row-major Records in column order.
func (t *Table) ToRecords() []Record {
	records := make([]Record, t.Size)
	for i := range records {
		rec := make(Record, len(t.ColumnOrder))
		for _, name := range t.ColumnOrder {
			if t.IsNumeric[name] {
				rec[name] = t.Numeric[name][i]
			} else {
				rec[name] = t.Strings[name][i]
			}
		}
		records[i] = rec
	}
	return records
}
