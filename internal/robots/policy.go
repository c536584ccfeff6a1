// Package robots implements the crawl-permission gate: robots.txt is fetched
// once per origin and every request is checked against it before it is sent.
package robots

import (
	"bufio"
	"io"
	"strings"
)

type rule struct {
	allow bool
	path  string
}

type group struct {
	agents []string
	rules  []rule
}

// Policy is a parsed robots.txt document.
type Policy struct {
	groups []group
}

// AllowAll is the policy used when robots.txt is absent or unreachable.
var AllowAll = &Policy{}

// Parse reads a robots.txt body. Unknown directives are ignored.
func Parse(r io.Reader) (*Policy, error) {
	p := &Policy{}
	var current *group
	lastWasAgent := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			// Consecutive user-agent lines share one group.
			if current == nil || !lastWasAgent {
				p.groups = append(p.groups, group{})
				current = &p.groups[len(p.groups)-1]
			}
			current.agents = append(current.agents, strings.ToLower(value))
			lastWasAgent = true
		case "allow", "disallow":
			lastWasAgent = false
			if current == nil || value == "" {
				continue
			}
			current.rules = append(current.rules, rule{allow: key == "allow", path: value})
		default:
			lastWasAgent = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// Allowed reports whether agent may fetch path. The group naming the agent
// exactly wins over the wildcard group; within a group the longest matching
// prefix decides and ties go to Allow.
func (p *Policy) Allowed(agent, path string) bool {
	if p == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	g := p.findGroup(strings.ToLower(strings.TrimSpace(agent)))
	if g == nil {
		return true
	}
	best := -1
	allowed := true
	for _, r := range g.rules {
		if !strings.HasPrefix(path, r.path) {
			continue
		}
		n := len(r.path)
		switch {
		case n > best:
			best = n
			allowed = r.allow
		case n == best && r.allow:
			allowed = true
		}
	}
	return allowed
}

func (p *Policy) findGroup(agent string) *group {
	var wildcard *group
	for i := range p.groups {
		g := &p.groups[i]
		for _, a := range g.agents {
			if a == agent && agent != "" {
				return g
			}
			if a == "*" && wildcard == nil {
				wildcard = g
			}
		}
	}
	return wildcard
}
