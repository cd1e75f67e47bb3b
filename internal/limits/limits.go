// Package limits enforces plan limits at request time.
package limits

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alecgard/planboard/internal/plan"
)

// Feature names a plan-limited capability.
type Feature string

const (
	TeamMembers      Feature = "team_members"
	Projects         Feature = "projects"
	Storage          Feature = "storage"
	AdvancedFeatures Feature = "advanced_features"
)

// Valid reports whether f is a known feature.
func (f Feature) Valid() bool {
	switch f {
	case TeamMembers, Projects, Storage, AdvancedFeatures:
		return true
	}
	return false
}

// Decision is the outcome of a limit check. Limit is nil when the plan puts
// no numeric cap on the feature.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Feature Feature `json:"feature"`
	Reason  string  `json:"reason,omitempty"`
	Current int64   `json:"current"`
	Limit   *int64  `json:"limit"`
}

// UpgradeRequired reports whether the denial can be lifted by a plan change.
func (d Decision) UpgradeRequired() bool {
	return !d.Allowed
}

// Gate checks usage against plan limits. It holds no per-request state and
// is safe for concurrent use.
type Gate struct {
	advancedPlans map[string]bool
}

// NewGate creates a Gate. Plans whose names appear in advancedPlans are
// granted advanced features regardless of their flag.
func NewGate(advancedPlans []string) *Gate {
	g := &Gate{advancedPlans: make(map[string]bool, len(advancedPlans))}
	for _, name := range advancedPlans {
		g.advancedPlans[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return g
}

// Check decides whether a user on p may consume one more unit of feature
// given current usage. For storage, current is the number of bytes used.
func (g *Gate) Check(p *plan.Plan, feature Feature, current int64) Decision {
	d := Decision{Feature: feature, Current: current}
	if p == nil {
		d.Reason = "no active plan"
		return d
	}

	switch feature {
	case TeamMembers:
		return countCheck(d, p.MaxUsers, "team member")
	case Projects:
		return countCheck(d, p.MaxProjects, "project")
	case Storage:
		return g.storageCheck(d, p.StorageQuota)
	case AdvancedFeatures:
		if p.AdvancedFeatures || g.advancedPlans[strings.ToLower(p.Name)] {
			d.Allowed = true
			return d
		}
		d.Reason = fmt.Sprintf("advanced features are not included in the %s plan", p.Name)
		return d
	default:
		d.Reason = fmt.Sprintf("unknown feature %q", feature)
		return d
	}
}

func countCheck(d Decision, max *int, noun string) Decision {
	if max == nil || *max <= 0 {
		d.Allowed = true
		return d
	}
	limit := int64(*max)
	d.Limit = &limit
	if d.Current >= limit {
		d.Reason = fmt.Sprintf("%s limit of %d reached", noun, limit)
		return d
	}
	d.Allowed = true
	return d
}

func (g *Gate) storageCheck(d Decision, quota string) Decision {
	limit, unlimited, err := ParseQuota(quota)
	if err != nil {
		d.Reason = err.Error()
		return d
	}
	if unlimited {
		d.Allowed = true
		return d
	}
	l := int64(limit)
	d.Limit = &l
	if d.Current >= l {
		d.Reason = fmt.Sprintf("storage quota of %s reached", humanize.Bytes(limit))
		return d
	}
	d.Allowed = true
	return d
}

// ParseQuota parses a storage quota such as "50GB" or "1 TiB". An empty
// quota or "unlimited" means no cap. A bare number without a byte unit is
// rejected.
func ParseQuota(quota string) (bytes uint64, unlimited bool, err error) {
	q := strings.TrimSpace(quota)
	if q == "" || strings.EqualFold(q, "unlimited") {
		return 0, true, nil
	}
	if !hasByteUnit(q) {
		return 0, false, fmt.Errorf("storage quota %q has no byte unit", quota)
	}
	n, err := humanize.ParseBytes(q)
	if err != nil {
		return 0, false, fmt.Errorf("invalid storage quota %q", quota)
	}
	return n, false, nil
}

func hasByteUnit(q string) bool {
	last := q[len(q)-1]
	return last == 'b' || last == 'B'
}
