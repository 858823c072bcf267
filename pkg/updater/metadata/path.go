package metadata

import (
	"fmt"
	"sort"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Masterminds/semver/v3"
)

type cost struct {
	bytes int64
	hops  int
}

func (c cost) less(o cost) bool {
	if c.bytes != o.bytes {
		return c.bytes < o.bytes
	}
	return c.hops < o.hops
}

func canonical(v string) string {
	if parsed, err := semver.NewVersion(v); err == nil {
		return parsed.String()
	}
	return v
}

// FindPath returns the cheapest chain of packages leading from version from
// to version to, by total package size. An empty from is a workspace with
// nothing installed, which only complete packages can start from. Complete
// packages are usable from any version.
func FindPath(packages []PackageRef, from, to string) ([]PackageRef, error) {
	start, goal := canonical(from), canonical(to)
	if from != "" && start == goal {
		return nil, nil
	}

	nodes := map[string]bool{start: true}
	outgoing := make(map[string][]PackageRef)
	var completes []PackageRef
	for _, p := range packages {
		nodes[canonical(p.To)] = true
		if p.IsComplete() {
			completes = append(completes, p)
			continue
		}
		src := canonical(p.From)
		nodes[src] = true
		outgoing[src] = append(outgoing[src], p)
	}

	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	dist := map[string]cost{start: {}}
	prev := make(map[string]PackageRef)
	visited := make(map[string]bool)

	for {
		current, found := "", false
		for _, n := range names {
			d, ok := dist[n]
			if !ok || visited[n] {
				continue
			}
			if !found || d.less(dist[current]) {
				current, found = n, true
			}
		}
		if !found || current == goal {
			break
		}
		visited[current] = true

		edges := outgoing[current]
		if current == start {
			edges = append(append([]PackageRef(nil), edges...), completes...)
		}
		for _, p := range edges {
			next := canonical(p.To)
			d := cost{bytes: dist[current].bytes + p.Size, hops: dist[current].hops + 1}
			if old, ok := dist[next]; !ok || d.less(old) {
				dist[next] = d
				prev[next] = p
			}
		}
	}

	if _, ok := dist[goal]; !ok || goal == start {
		label := from
		if label == "" {
			label = "an empty workspace"
		}
		return nil, sparuserrors.Update(fmt.Sprintf("no package path from %s to %s", label, to))
	}

	var chain []PackageRef
	for node := goal; node != start; {
		p := prev[node]
		chain = append(chain, p)
		if p.IsComplete() {
			break
		}
		node = canonical(p.From)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
