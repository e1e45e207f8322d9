package scheduling

import "sort"

// Overlaps reports whether the half-open slots [a.Start, a.End) and
// [b.Start, b.End) intersect. Appointments without a positive duration never overlap.
func Overlaps(a, b *Appointment) bool {
	if !a.ValidRange() || !b.ValidRange() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Conflicts reports whether two distinct, active appointments compete for the
// same slot. Appointments for different providers may share a slot; an
// unassigned appointment blocks the whole practice.
func Conflicts(a, b *Appointment) bool {
	if a == nil || b == nil {
		return false
	}
	if a.ID != "" && a.ID == b.ID {
		return false
	}
	if !a.Active() || !b.Active() {
		return false
	}
	if a.ProviderID != "" && b.ProviderID != "" && a.ProviderID != b.ProviderID {
		return false
	}
	return Overlaps(a, b)
}

// FindConflicts returns the existing appointments candidate conflicts with,
// ordered by start.
func FindConflicts(candidate *Appointment, existing []*Appointment) []*Appointment {
	var out []*Appointment
	for _, appt := range existing {
		if Conflicts(candidate, appt) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out
}

// ScanConflicts compares every pair of appointments and returns the ones that
// conflict. Pairs are ordered by the first appointment's start.
func ScanConflicts(appts []*Appointment) []ConflictPair {
	sorted := make([]*Appointment, len(appts))
	copy(sorted, appts)
	sortByStart(sorted)

	var pairs []ConflictPair
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if Conflicts(sorted[i], sorted[j]) {
				pairs = append(pairs, ConflictPair{First: sorted[i], Second: sorted[j]})
			}
		}
	}
	return pairs
}

func sortByStart(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Start.Equal(appts[j].Start) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].Start.Before(appts[j].Start)
	})
}

func dedupeAppointments(appts []*Appointment) []*Appointment {
	seen := make(map[string]struct{}, len(appts))
	out := appts[:0:0]
	for _, appt := range appts {
		if _, ok := seen[appt.ID]; ok {
			continue
		}
		seen[appt.ID] = struct{}{}
		out = append(out, appt)
	}
	sortByStart(out)
	return out
}
