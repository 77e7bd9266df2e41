package history

// Columns is the column order shared by the SQL sinks.
const Columns = "id, occurred_at, type, run_id, host_key, pid, started_at, attempt, outcome, error"

// Args returns the values for Columns.
func (e Event) Args() []any {
	r := e.Record
	var started any
	if !r.StartedAt.IsZero() {
		started = r.StartedAt.UTC()
	}
	return []any{e.ID, e.OccurredAt.UTC(), string(e.Type), r.RunID, r.HostKey, r.PID, started, r.Attempt, r.Outcome, r.Error}
}
