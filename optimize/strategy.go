package optimize

import (
	"context"
	"sort"
)

// Strategy searches the model for a low-cost solution within its
// deadline. Implementations return the best solution found when the
// context expires.
type Strategy interface {
	Name() string
	Solve(ctx context.Context, m *model) *solution
}

func strategyFor(mode string) Strategy {
	switch mode {
	case ModeFast:
		return greedyStrategy{}
	case ModeQuality:
		return savingsStrategy{}
	default:
		return localSearchStrategy{}
	}
}

// greedyStrategy appends the globally cheapest feasible (technician,
// task) arc until nothing fits.
type greedyStrategy struct{}

func (greedyStrategy) Name() string { return "greedy" }

func (greedyStrategy) Solve(ctx context.Context, m *model) *solution {
	s := newSolution(m)
	construct(ctx, m, s)
	return s
}

// construct runs cheapest-arc insertion over the unassigned set.
func construct(ctx context.Context, m *model, s *solution) {
	for len(s.unassigned) > 0 {
		if ctx.Err() != nil {
			return
		}
		bestTask, bestTech, bestCost := -1, -1, 0
		for ti := range s.unassigned {
			for vi := range m.techs {
				if !m.feasible(ti, vi) {
					continue
				}
				route := append(append([]int(nil), s.routes[vi]...), ti)
				if !m.routeFits(vi, route) {
					continue
				}
				cost := appendCost(m, vi, s.routes[vi], ti)
				if bestTask < 0 || cost < bestCost {
					bestTask, bestTech, bestCost = ti, vi, cost
				}
			}
		}
		if bestTask < 0 {
			return
		}
		s.routes[bestTech] = append(s.routes[bestTech], bestTask)
		delete(s.unassigned, bestTask)
	}
}

// appendCost is the marginal travel of adding a task to a route's end.
func appendCost(m *model, vi int, route []int, ti int) int {
	prev := m.techs[vi].home
	for _, r := range route {
		if m.tasks[r].loc >= 0 {
			prev = m.tasks[r].loc
		}
	}
	loc := m.tasks[ti].loc
	return m.travel(prev, loc) + m.travel(loc, m.techs[vi].home) - m.travel(prev, m.techs[vi].home)
}

// localSearchStrategy improves a greedy start with 2-opt and relocate
// moves until the deadline.
type localSearchStrategy struct{}

func (localSearchStrategy) Name() string { return "local_search" }

func (localSearchStrategy) Solve(ctx context.Context, m *model) *solution {
	s := newSolution(m)
	construct(ctx, m, s)
	improve(ctx, m, s)
	return s
}

// improve applies first-improvement moves in rounds until none apply
// or the context expires.
func improve(ctx context.Context, m *model, s *solution) {
	for {
		if ctx.Err() != nil {
			return
		}
		improved := twoOptRound(ctx, m, s) || relocateRound(ctx, m, s) || insertRound(ctx, m, s)
		if !improved {
			return
		}
	}
}

func twoOptRound(ctx context.Context, m *model, s *solution) bool {
	improved := false
	for vi, route := range s.routes {
		if len(route) < 3 {
			continue
		}
		_, base := m.routeMinutes(vi, route)
		for i := 0; i < len(route)-1; i++ {
			for j := i + 1; j < len(route); j++ {
				if ctx.Err() != nil {
					return improved
				}
				cand := append([]int(nil), route...)
				reverse(cand[i : j+1])
				if _, travel := m.routeMinutes(vi, cand); travel < base {
					s.routes[vi] = cand
					route = cand
					base = travel
					improved = true
				}
			}
		}
	}
	return improved
}

func relocateRound(ctx context.Context, m *model, s *solution) bool {
	for from, route := range s.routes {
		for pos, ti := range route {
			for to := range s.routes {
				if to == from {
					continue
				}
				if ctx.Err() != nil {
					return false
				}
				if !m.feasible(ti, to) {
					continue
				}
				before := m.objective(s)
				src := append(append([]int(nil), route[:pos]...), route[pos+1:]...)
				dst := append(append([]int(nil), s.routes[to]...), ti)
				if !m.routeFits(to, dst) {
					continue
				}
				oldSrc, oldDst := s.routes[from], s.routes[to]
				s.routes[from], s.routes[to] = src, dst
				if m.objective(s) < before {
					return true
				}
				s.routes[from], s.routes[to] = oldSrc, oldDst
			}
		}
	}
	return false
}

// insertRound retries unassigned tasks after routes have been
// reshaped.
func insertRound(ctx context.Context, m *model, s *solution) bool {
	for ti := range s.unassigned {
		if ctx.Err() != nil {
			return false
		}
		for vi := range m.techs {
			if !m.feasible(ti, vi) {
				continue
			}
			cand := append(append([]int(nil), s.routes[vi]...), ti)
			if m.routeFits(vi, cand) {
				s.routes[vi] = cand
				delete(s.unassigned, ti)
				return true
			}
		}
	}
	return false
}

// savingsStrategy seeds each technician with its highest-savings task
// pairs before the local search, trading construction time for route
// quality.
type savingsStrategy struct{}

func (savingsStrategy) Name() string { return "savings" }

type savingPair struct {
	a, b   int
	saving int
}

func (savingsStrategy) Solve(ctx context.Context, m *model) *solution {
	s := newSolution(m)

	// Clarke-Wright savings against each technician's home depot,
	// greatest first.
	for vi := range m.techs {
		home := m.techs[vi].home
		var pairs []savingPair
		for a := range m.tasks {
			if !s.unassigned[a] || !m.feasible(a, vi) {
				continue
			}
			for b := a + 1; b < len(m.tasks); b++ {
				if !s.unassigned[b] || !m.feasible(b, vi) {
					continue
				}
				la, lb := m.tasks[a].loc, m.tasks[b].loc
				sv := m.travel(la, home) + m.travel(home, lb) - m.travel(la, lb)
				pairs = append(pairs, savingPair{a: a, b: b, saving: sv})
			}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].saving > pairs[j].saving })
		for _, p := range pairs {
			if ctx.Err() != nil {
				return s
			}
			if !s.unassigned[p.a] || !s.unassigned[p.b] {
				continue
			}
			cand := append(append([]int(nil), s.routes[vi]...), p.a, p.b)
			if !m.routeFits(vi, cand) {
				continue
			}
			s.routes[vi] = cand
			delete(s.unassigned, p.a)
			delete(s.unassigned, p.b)
		}
	}

	construct(ctx, m, s)
	improve(ctx, m, s)
	return s
}

// fallbackSolve is the guaranteed heuristic: tasks in priority-then-
// FIFO order, each to the skill-matching technician with minimum
// insertion distance and remaining capacity.
func fallbackSolve(m *model) *solution {
	s := newSolution(m)
	order := make([]int, len(m.tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		wi, wj := m.tasks[order[i]].weight, m.tasks[order[j]].weight
		if wi != wj {
			return wi > wj
		}
		return m.tasks[order[i]].task.ID < m.tasks[order[j]].task.ID
	})
	for _, ti := range order {
		bestTech, bestCost := -1, 0
		for vi := range m.techs {
			if !m.feasible(ti, vi) {
				continue
			}
			cand := append(append([]int(nil), s.routes[vi]...), ti)
			if !m.routeFits(vi, cand) {
				continue
			}
			cost := appendCost(m, vi, s.routes[vi], ti)
			if bestTech < 0 || cost < bestCost {
				bestTech, bestCost = vi, cost
			}
		}
		if bestTech >= 0 {
			s.routes[bestTech] = append(s.routes[bestTech], ti)
			delete(s.unassigned, ti)
		}
	}
	return s
}

func reverse(a []int) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}
