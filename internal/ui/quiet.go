package ui

// quietPresenter drains events and produces no output. The summary is
// suppressed as well; errors still reach stderr through the logger.
type quietPresenter struct {
	stats StatsSource
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
