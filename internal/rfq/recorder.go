package rfq

// Recorder receives comparison counters. observability.Metrics implements it.
type Recorder interface {
	SelectionRecorded(source string)
	SummaryBuilt(kind string)
	AuditDelivered(evt EventType, err error)
	AuditDropped(evt EventType)
}

type nopRecorder struct{}

func (nopRecorder) SelectionRecorded(string) {}
func (nopRecorder) SummaryBuilt(string) {}
func (nopRecorder) AuditDelivered(EventType, error) {}
func (nopRecorder) AuditDropped(EventType) {}
