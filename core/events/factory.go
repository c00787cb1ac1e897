package events

import "github.com/yatrik/scheduler/core/factory"

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds a progress sink factory identified by name.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered progress sink types.
func SinkTypes() []string { return sinkRegistry.Names() }

// NewSinks creates every configured progress sink. Sinks created before a
// failing one are closed.
func NewSinks(cfgs []factory.ModuleConfig) ([]Sink, error) {
	out := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			for _, o := range out {
				_ = o.Close()
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
