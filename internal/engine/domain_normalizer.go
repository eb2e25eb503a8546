package engine

import (
	"regexp"
	"strings"
)

// canonicalDomains is the fixed set of domain strings every stored memory's
// Domain field must fall into after normalization.
var canonicalDomains = map[string]bool{
	"backend":      true,
	"frontend":     true,
	"infra":        true,
	"data":         true,
	"security":     true,
	"mobile":       true,
	"devops":       true,
	"design":       true,
	"product":      true,
	"testing":      true,
	"docs":         true,
	"general":      true,
}

// domainAlias maps a raw technology/topic token to its canonical domain and
// a priority: lower priority wins when a multi-segment input matches more
// than one candidate domain, since lower means "more specific."
type domainAlias struct {
	domain   string
	priority int
}

// domainAliases is a hard-coded technology -> domain mapping. Entries are
// deliberately redundant in spelling (go/golang, js/javascript) since the
// normalizer never stems or fuzzy-matches.
var domainAliases = map[string]domainAlias{
	"go": {"backend", 5}, "golang": {"backend", 5},
	"python": {"backend", 5}, "java": {"backend", 5}, "rust": {"backend", 5},
	"api": {"backend", 6}, "server": {"backend", 6}, "database": {"backend", 4},
	"sql": {"backend", 4}, "postgres": {"backend", 3}, "postgresql": {"backend", 3},
	"sqlite": {"backend", 3}, "redis": {"backend", 3}, "grpc": {"backend", 4},

	"react": {"frontend", 3}, "vue": {"frontend", 3}, "svelte": {"frontend", 3},
	"javascript": {"frontend", 5}, "js": {"frontend", 5}, "typescript": {"frontend", 5},
	"ts": {"frontend", 5}, "css": {"frontend", 4}, "html": {"frontend", 4}, "ui": {"frontend", 6},

	"kubernetes": {"infra", 3}, "k8s": {"infra", 3}, "docker": {"infra", 3},
	"terraform": {"infra", 3}, "aws": {"infra", 4}, "gcp": {"infra", 4}, "azure": {"infra", 4},
	"deploy": {"devops", 4}, "deployment": {"devops", 4}, "ci": {"devops", 4}, "cd": {"devops", 4},
	"pipeline": {"devops", 5},

	"pandas": {"data", 3}, "etl": {"data", 3}, "warehouse": {"data", 4}, "analytics": {"data", 5},
	"ml": {"data", 4}, "machine_learning": {"data", 4},

	"auth": {"security", 4}, "authentication": {"security", 4}, "encryption": {"security", 4},
	"vulnerability": {"security", 3}, "cve": {"security", 3}, "oauth": {"security", 4},

	"ios": {"mobile", 3}, "android": {"mobile", 3}, "swift": {"mobile", 3}, "kotlin": {"mobile", 3},
	"flutter": {"mobile", 3}, "react_native": {"mobile", 3},

	"figma": {"design", 3}, "ux": {"design", 4}, "wireframe": {"design", 4},

	"roadmap": {"product", 4}, "requirement": {"product", 5}, "requirements": {"product", 5},
	"feature": {"product", 6},

	"test": {"testing", 4}, "tests": {"testing", 4}, "unit_test": {"testing", 3},
	"integration_test": {"testing", 3}, "qa": {"testing", 4},

	"readme": {"docs", 4}, "documentation": {"docs", 4}, "doc": {"docs", 5},
}

var domainSplitPattern = regexp.MustCompile(`[ /_\-,&]+`)

// NormalizeDomain maps a freeform domain string to one of the canonical
// domains, per SPEC_FULL.md §4.16:
//  1. lowercase + trim
//  2. exact canonical match
//  3. exact alias match
//  4. split on separators, try canonical then alias per segment, lowest
//     priority integer wins on multiple candidates
//  5. else "general"
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "general"
	}

	if canonicalDomains[s] {
		return s
	}
	if alias, ok := domainAliases[s]; ok {
		return alias.domain
	}

	segments := domainSplitPattern.Split(s, -1)
	bestDomain := ""
	bestPriority := 1 << 30
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if canonicalDomains[seg] {
			// An exact canonical segment match is maximally specific.
			if 0 < bestPriority {
				bestDomain, bestPriority = seg, 0
			}
			continue
		}
		if alias, ok := domainAliases[seg]; ok {
			if alias.priority < bestPriority {
				bestDomain, bestPriority = alias.domain, alias.priority
			}
		}
	}

	if bestDomain != "" {
		return bestDomain
	}
	return "general"
}
