package mqtt

import (
	"github.com/yatrik/scheduler/core/events"
	"github.com/yatrik/scheduler/core/factory"
)

func init() {
	_ = events.RegisterSink("mqtt", func(conf map[string]any) (events.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewProgressPublisher(c)
	})
}
