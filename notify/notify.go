package notify

// Severity classifies outbound alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

// Notifier delivers alerts to the operator. Implementations must never
// block the trading path; delivery is fire and forget.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Noop drops every alert. Used in tests and when no channel is configured.
type Noop struct{}

// Notify implements Notifier
func (Noop) Notify(Severity, string) {}
