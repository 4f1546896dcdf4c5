package meter

import "github.com/edukia/chatrelay"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ chatrelay.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnRoute(chatrelay.RouteEvent)   {}
func (m *NoopMeter) OnResult(chatrelay.ResultEvent) {}
