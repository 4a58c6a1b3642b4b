package tally

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"titerscope/internal/logger"
	"titerscope/internal/table"
)

const component = "tally"

// DoseSourceMap marks a Result whose doses came from Config.Dose.
const DoseSourceMap = "explicit"

// phenotypePrefix renames phenotype columns named like an aggregated column.
const phenotypePrefix = "pheno_"

// Row is one aggregated group.
type Row struct {
	Group string
	// X is the dose; HasX is false when the group has none.
	X    float64
	HasX bool
	// Y is Pos/(Pos+Neg).
	Y         float64
	Pos       int
	Neg       int
	Phenotype map[string]string
}

// Total returns the number of objects in the group.
func (r Row) Total() int {
	return r.Pos + r.Neg
}

// Result is the aggregated table, one row per group sorted by group key.
type Result struct {
	GroupKey string
	// DoseSource is the dose column name, DoseSourceMap, or empty when no dose exists.
	DoseSource       string
	Param            string
	PhenotypeColumns []string
	Rows             []Row
}

type groupAcc struct {
	pos, neg int
	dose     float64
	hasDose  bool
}

// Aggregate counts positive and negative objects per group of tbl and attaches
// the dose and, when pheno is non-nil, phenotype columns joined by group key.
func Aggregate(tbl *table.Table, cfg Config, pheno *table.Table, log logger.Logger) (*Result, error) {
	log = logger.OrNop(log)
	if tbl == nil {
		return nil, fmt.Errorf("%w: no classification table", ErrMissingVariable)
	}

	groupKey, err := resolveGroup(tbl, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Param == "" || !tbl.Has(cfg.Param) {
		return nil, fmt.Errorf("%w: parameter column %q", ErrMissingVariable, cfg.Param)
	}
	doseColumn, err := resolveDoseColumn(tbl, cfg)
	if err != nil {
		return nil, err
	}

	groups, err := count(tbl, groupKey, cfg.Param, doseColumn)
	if err != nil {
		return nil, err
	}

	for _, g := range expectedGroups(cfg) {
		if _, ok := groups[g]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrZeroCountGroup, g)
		}
	}

	res := &Result{GroupKey: groupKey, Param: cfg.Param, DoseSource: doseColumn}
	if cfg.Dose != nil {
		res.DoseSource = DoseSourceMap
	}
	for _, key := range sortedKeys(groups) {
		acc := groups[key]
		row := Row{Group: key, Pos: acc.pos, Neg: acc.neg}
		row.Y = float64(acc.pos) / float64(acc.pos+acc.neg)
		if cfg.Dose != nil {
			d, ok := cfg.Dose[key]
			if !ok {
				return nil, fmt.Errorf("%w: no dose for group %q", ErrMissingVariable, key)
			}
			row.X, row.HasX = d, true
		} else if acc.hasDose {
			row.X, row.HasX = acc.dose, true
		}
		res.Rows = append(res.Rows, row)
	}

	if pheno != nil {
		if err := res.join(pheno, log); err != nil {
			return nil, err
		}
	}

	log.Info(component, "groups aggregated", map[string]interface{}{
		"groups":      len(res.Rows),
		"objects":     tbl.Len(),
		"group_key":   groupKey,
		"dose_source": res.DoseSource,
		"phenotype":   len(res.PhenotypeColumns),
	})
	return res, nil
}

func resolveGroup(tbl *table.Table, cfg Config) (string, error) {
	if cfg.GroupBy != "" {
		if !tbl.Has(cfg.GroupBy) {
			return "", fmt.Errorf("%w: grouping column %q", ErrMissingVariable, cfg.GroupBy)
		}
		return cfg.GroupBy, nil
	}
	var found []string
	for _, alias := range cfg.GroupAliases {
		if tbl.Has(alias) {
			found = append(found, alias)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", fmt.Errorf("%w: none of %s present", ErrAmbiguousGrouping, strings.Join(cfg.GroupAliases, ", "))
	default:
		return "", fmt.Errorf("%w: %s all present", ErrAmbiguousGrouping, strings.Join(found, ", "))
	}
}

// resolveDoseColumn returns the column to read doses from, or "" when doses come
// from the explicit map or are not available.
func resolveDoseColumn(tbl *table.Table, cfg Config) (string, error) {
	if cfg.Dose != nil {
		return "", nil
	}
	if cfg.DoseColumn != "" {
		if !tbl.Has(cfg.DoseColumn) {
			return "", fmt.Errorf("%w: dose column %q", ErrMissingVariable, cfg.DoseColumn)
		}
		return cfg.DoseColumn, nil
	}
	for _, alias := range cfg.DoseAliases {
		if tbl.Has(alias) {
			return alias, nil
		}
	}
	if cfg.RequireDose {
		return "", fmt.Errorf("%w: none of %s present and no explicit dose", ErrMissingVariable,
			strings.Join(cfg.DoseAliases, ", "))
	}
	return "", nil
}

func count(tbl *table.Table, groupKey, param, doseColumn string) (map[string]*groupAcc, error) {
	groups := make(map[string]*groupAcc)
	for i := 0; i < tbl.Len(); i++ {
		key, _ := tbl.Get(i, groupKey)
		key = strings.TrimSpace(key)
		if table.IsMissing(key) {
			return nil, fmt.Errorf("%w: row %d has no %s", ErrInvalidValue, i+1, groupKey)
		}
		raw, _ := tbl.Get(i, param)
		positive, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s=%q", ErrInvalidValue, i+1, param, raw)
		}

		acc, ok := groups[key]
		if !ok {
			acc = &groupAcc{}
			groups[key] = acc
		}
		if positive {
			acc.pos++
		} else {
			acc.neg++
		}

		if doseColumn == "" {
			continue
		}
		dose, ok, err := tbl.Float(i, doseColumn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if !ok {
			continue
		}
		if acc.hasDose && !sameDose(acc.dose, dose) {
			return nil, fmt.Errorf("%w: group %q has %v and %v", ErrConflictingDose, key, acc.dose, dose)
		}
		acc.dose, acc.hasDose = dose, true
	}
	return groups, nil
}

func sameDose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12*math.Max(math.Abs(a), math.Abs(b))
}

func expectedGroups(cfg Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range cfg.Groups {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	for g := range cfg.Dose {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// sortedKeys orders group keys numerically when all of them parse as numbers,
// lexically otherwise.
func sortedKeys(groups map[string]*groupAcc) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys sorts group keys in place the way aggregated rows are ordered.
func SortKeys(keys []string) {
	nums := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, err := strconv.ParseFloat(k, 64)
		if err != nil {
			sort.Strings(keys)
			return
		}
		nums[k] = v
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if nums[keys[i]] != nums[keys[j]] {
			return nums[keys[i]] < nums[keys[j]]
		}
		return keys[i] < keys[j]
	})
}

func (r *Result) join(pheno *table.Table, log logger.Logger) error {
	if !pheno.Has(r.GroupKey) {
		return fmt.Errorf("%w: phenotype table has no %q column", ErrMissingVariable, r.GroupKey)
	}
	base, err := r.Table()
	if err != nil {
		return err
	}
	renamed, err := renameCollisions(pheno, base, r.GroupKey)
	if err != nil {
		return err
	}
	if renamed != pheno {
		log.Warning(component, "phenotype columns renamed", map[string]interface{}{
			"columns": renamed.Columns(),
		})
		pheno = renamed
	}
	joined, dups, err := base.LeftJoin(pheno, r.GroupKey)
	if err != nil {
		return err
	}
	if len(dups) > 0 {
		log.Warning(component, "duplicate phenotype keys, keeping first", map[string]interface{}{
			"keys": dups,
		})
	}

	baseCols := len(base.Columns())
	r.PhenotypeColumns = joined.Columns()[baseCols:]
	for i := range r.Rows {
		values := joined.Row(i)
		r.Rows[i].Phenotype = make(map[string]string, len(r.PhenotypeColumns))
		for _, c := range r.PhenotypeColumns {
			r.Rows[i].Phenotype[c] = values[c]
		}
	}
	return nil
}

// renameCollisions prefixes phenotype columns that clash with an aggregated
// column with phenotypePrefix, so "y" is joined as "pheno_y".
func renameCollisions(pheno, base *table.Table, key string) (*table.Table, error) {
	cols := pheno.Columns()
	renamed := make([]string, len(cols))
	changed := false
	for i, c := range cols {
		renamed[i] = c
		if c == key || !base.Has(c) {
			continue
		}
		renamed[i] = phenotypePrefix + c
		if base.Has(renamed[i]) || pheno.Has(renamed[i]) {
			return nil, fmt.Errorf("%w: phenotype column %q clashes with %q", ErrInvalidValue, c, renamed[i])
		}
		changed = true
	}
	if !changed {
		return pheno, nil
	}

	out := table.New(renamed...)
	for i := 0; i < pheno.Len(); i++ {
		values := make([]string, len(cols))
		for j, c := range cols {
			values[j], _ = pheno.Get(i, c)
		}
		if err := out.Append(values...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Table renders the result with columns group key, x, y, pos, neg and any
// phenotype columns. A missing dose is written as "NA".
func (r *Result) Table() (*table.Table, error) {
	cols := append([]string{r.GroupKey, "x", "y", "pos", "neg"}, r.PhenotypeColumns...)
	tbl := table.New(cols...)
	for _, row := range r.Rows {
		x := "NA"
		if row.HasX {
			x = strconv.FormatFloat(row.X, 'g', -1, 64)
		}
		values := []string{
			row.Group,
			x,
			strconv.FormatFloat(row.Y, 'g', -1, 64),
			strconv.Itoa(row.Pos),
			strconv.Itoa(row.Neg),
		}
		for _, c := range r.PhenotypeColumns {
			values = append(values, row.Phenotype[c])
		}
		if err := tbl.Append(values...); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
