package alert

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/openrp/cad/core/model"
)

// OverloadPolicy flags departments whose share of committed units is
// an outlier against the rest of the deployment. A department is
// overloaded when its busy-unit count exceeds the cross-department
// mean by Sigma standard deviations and at least MinBusy units are
// committed.
type OverloadPolicy struct {
	Sigma   float64
	MinBusy int
}

// DefaultOverloadPolicy flags departments more than one standard
// deviation above the mean. Deployments have few departments, so a
// stricter sigma would almost never fire.
func DefaultOverloadPolicy() *OverloadPolicy {
	return &OverloadPolicy{Sigma: 1, MinBusy: 3}
}

// Evaluate returns the overloaded departments for the given unit
// snapshot, in department order.
func (p *OverloadPolicy) Evaluate(units []model.Unit) []model.Department {
	busy := map[model.Department]int{}
	seen := map[model.Department]bool{}
	for _, u := range units {
		if u.Inactive {
			continue
		}
		seen[u.Department] = true
		if u.Status.HoldsCall() || u.Status == model.UnitPanic {
			busy[u.Department]++
		}
	}
	if len(seen) < 2 {
		return nil
	}

	depts := make([]model.Department, 0, len(seen))
	counts := make([]float64, 0, len(seen))
	for d := range seen {
		depts = append(depts, d)
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i] < depts[j] })
	for _, d := range depts {
		counts = append(counts, float64(busy[d]))
	}

	mean, std := stat.MeanStdDev(counts, nil)
	threshold := mean + p.Sigma*std

	var res []model.Department
	for i, d := range depts {
		if busy[d] < p.MinBusy {
			continue
		}
		if counts[i] > threshold {
			res = append(res, d)
		}
	}
	return res
}
