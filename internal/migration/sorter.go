package migration

import "sort"

// Sort returns a new slice of migrations sorted by Filename in plain
// lexicographic byte order. "10_x.cql" sorts before "9_x.cql".
func Sort(migrations []Migration) []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Filename < sorted[j].Filename
	})

	return sorted
}

// Without returns a copy of migrations minus the file with the given name.
func Without(migrations []Migration, filename string) []Migration {
	out := make([]Migration, 0, len(migrations))

	for _, m := range migrations {
		if m.Filename != filename {
			out = append(out, m)
		}
	}

	return out
}
