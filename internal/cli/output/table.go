package output

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter renders results as aligned columns.
//
// A slice of structs gives one row per element and one column per
// exported field, named after its json tag. Fields tagged `table:"wide"`
// only appear with Wide; `table:"-"` never appears. A single struct or a
// map renders as FIELD/VALUE pairs.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// listedValues is how many elements of a nested slice or map a cell
// shows before summarizing the rest.
const listedValues = 3

// empty marks a cell with no value.
const empty = "-"

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
)

// Format writes data as a table.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	return f.build(reflect.ValueOf(data)).write(w, !f.NoHeaders)
}

type table struct {
	headers []string
	rows    [][]string
}

func (t *table) write(w io.Writer, headers bool) error {
	if len(t.rows) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers && len(t.headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
	}
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (f *TableFormatter) build(v reflect.Value) *table {
	v = indirect(v)
	if !v.IsValid() {
		return &table{}
	}
	switch {
	case v.Type() == timeType:
	case v.Kind() == reflect.Struct:
		return f.fieldTable(v)
	case v.Kind() == reflect.Map:
		return mapTable(v)
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8,
		v.Kind() == reflect.Array:
		return f.listTable(v)
	}
	return &table{headers: []string{"VALUE"}, rows: [][]string{{cell(v)}}}
}

// column is one displayed struct field.
type column struct {
	name  string
	index int
}

func (f *TableFormatter) columns(t reflect.Type) []column {
	var cols []column
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("table")
		if tag == "-" || (tag == "wide" && !f.Wide) {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			name = snake(field.Name)
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func (f *TableFormatter) listTable(v reflect.Value) *table {
	elem := v.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct || elem == timeType {
		t := &table{headers: []string{"VALUE"}}
		for i := range v.Len() {
			t.rows = append(t.rows, []string{cell(v.Index(i))})
		}
		return t
	}

	cols := f.columns(elem)
	t := &table{}
	for _, c := range cols {
		t.headers = append(t.headers, strings.ToUpper(c.name))
	}
	for i := range v.Len() {
		item := indirect(v.Index(i))
		row := make([]string, len(cols))
		for j, c := range cols {
			if item.IsValid() {
				row[j] = cell(item.Field(c.index))
			} else {
				row[j] = empty
			}
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func (f *TableFormatter) fieldTable(v reflect.Value) *table {
	t := &table{headers: []string{"FIELD", "VALUE"}}
	for _, c := range f.columns(v.Type()) {
		t.rows = append(t.rows, []string{c.name, cell(v.Field(c.index))})
	}
	return t
}

func mapTable(v reflect.Value) *table {
	t := &table{headers: []string{"KEY", "VALUE"}}
	for _, k := range sortedKeys(v) {
		t.rows = append(t.rows, []string{cell(k), cell(v.MapIndex(k))})
	}
	return t
}

// cell renders one value on a single line.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return empty
	}

	switch v.Type() {
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return empty
		}
		return t.Local().Format(time.DateTime)
	case durationType:
		return time.Duration(v.Int()).String()
	}
	if v.Kind() != reflect.String && v.Type().Implements(stringerType) && v.CanInterface() {
		return v.Interface().(fmt.Stringer).String()
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return empty
		}
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Slice, reflect.Array:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = cell(v.Index(i))
		}
		return listed(parts)
	case reflect.Map:
		keys := sortedKeys(v)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = cell(k) + "=" + cell(v.MapIndex(k))
		}
		return listed(parts)
	default:
		if v.CanInterface() {
			return fmt.Sprint(v.Interface())
		}
		return empty
	}
}

// listed joins parts, naming only how many remain past listedValues.
func listed(parts []string) string {
	if len(parts) == 0 {
		return empty
	}
	if len(parts) <= listedValues {
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(parts[:listedValues], ", "), len(parts)-listedValues)
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(cell(a), cell(b))
	})
	return keys
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// snake turns a Go field name into snake case: QueueDepth -> queue_depth.
func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
