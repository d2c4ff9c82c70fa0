package notifier

// TextNotifier is the minimal outbound notification contract. It is
// intentionally small so components can depend on it without importing a
// concrete transport. Delivery is best-effort everywhere it is used: a
// failed notification must never change an execution outcome.
type TextNotifier interface {
	SendText(text string) error
}

// Nop discards every message. Used when no notifier is configured.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
