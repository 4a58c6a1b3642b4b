package classify

import (
	"errors"
	"fmt"
	"strconv"

	"titerscope/internal/table"
)

// Feature columns written for every object.
const (
	ColObject     = "object"
	ColDose       = "moi"
	ColArea       = "area"
	ColCX         = "cx"
	ColCY         = "cy"
	ColMean       = "mean_intensity"
	ColSD         = "sd_intensity"
	ColIntegrated = "integrated_intensity"
)

// NewTable creates an empty classification table keyed by groupColumn, scoring
// param, with a dose column when withDose is set.
func NewTable(groupColumn, param string, withDose bool) *table.Table {
	cols := []string{ColObject, groupColumn}
	if withDose {
		cols = append(cols, ColDose)
	}
	cols = append(cols, param, ColArea, ColCX, ColCY, ColMean, ColSD, ColIntegrated)
	return table.New(cols...)
}

// Append adds one row per object. dose is written only when the table has a
// dose column; a nil dose leaves it empty.
func Append(tbl *table.Table, groupColumn, group, param string, objs []Object, flags []bool, dose *float64) error {
	if len(objs) != len(flags) {
		return errors.New("objects and flags differ in length")
	}
	if !tbl.Has(groupColumn) || !tbl.Has(param) {
		return fmt.Errorf("%w: %q or %q", table.ErrNoColumn, groupColumn, param)
	}
	withDose := tbl.Has(ColDose)
	for i, o := range objs {
		row := map[string]string{
			ColObject:     strconv.Itoa(o.Label),
			groupColumn:   group,
			param:         strconv.FormatBool(flags[i]),
			ColArea:       strconv.Itoa(o.Area),
			ColCX:         formatFloat(o.Centroid.X),
			ColCY:         formatFloat(o.Centroid.Y),
			ColMean:       formatFloat(o.Mean),
			ColSD:         formatFloat(o.SD),
			ColIntegrated: formatFloat(o.Integrated),
		}
		if withDose && dose != nil {
			row[ColDose] = formatFloat(*dose)
		}
		if err := tbl.AppendMap(row); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
