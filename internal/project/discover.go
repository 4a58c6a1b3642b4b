package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover pairs files in dir whose names share a stem: "<stem><nucSuffix>" with
// "<stem><targetSuffix>". The group of each pair is its stem. Nuclear images
// without a matching target are returned in orphans. Both lists are in
// natural order, so "w2" sorts before "w10".
func Discover(dir, nucSuffix, targetSuffix string) (pairs []Pair, orphans []string, err error) {
	if nucSuffix == "" || nucSuffix == targetSuffix {
		return nil, nil, fmt.Errorf("invalid suffixes %q and %q", nucSuffix, targetSuffix)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = true
		}
	}

	var stems []string
	for name := range names {
		if !strings.HasSuffix(name, nucSuffix) {
			continue
		}
		stem := strings.TrimSuffix(name, nucSuffix)
		if stem == "" {
			continue
		}
		if !names[stem+targetSuffix] {
			orphans = append(orphans, filepath.Join(dir, name))
			continue
		}
		stems = append(stems, stem)
	}
	sort.Slice(stems, func(i, j int) bool { return NaturalLess(stems[i], stems[j]) })
	sort.Slice(orphans, func(i, j int) bool { return NaturalLess(orphans[i], orphans[j]) })

	for _, stem := range stems {
		pairs = append(pairs, Pair{
			Group:   stem,
			Nuclear: filepath.Join(dir, stem+nucSuffix),
			Target:  filepath.Join(dir, stem+targetSuffix),
		})
	}
	if len(pairs) == 0 {
		return nil, orphans, fmt.Errorf("%w in %s", ErrNoPairs, dir)
	}
	return pairs, orphans, nil
}
