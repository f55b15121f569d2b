package escalation

// DismissalMemory remembers which medications had their pre-alert dismissed
// for the current occurrence. Late stages are never recorded here: snoozing
// them must not stop re-evaluation. The engine serializes access, so no
// locking here.
type DismissalMemory struct {
	prealerts map[string]struct{}
}

func NewDismissalMemory() *DismissalMemory {
	return &DismissalMemory{prealerts: make(map[string]struct{})}
}

func (d *DismissalMemory) Add(medicationID string) {
	d.prealerts[medicationID] = struct{}{}
}

func (d *DismissalMemory) Has(medicationID string) bool {
	_, ok := d.prealerts[medicationID]
	return ok
}

func (d *DismissalMemory) Forget(medicationID string) {
	delete(d.prealerts, medicationID)
}

// Reset clears all records; called when a new daily occurrence starts.
func (d *DismissalMemory) Reset() {
	d.prealerts = make(map[string]struct{})
}
