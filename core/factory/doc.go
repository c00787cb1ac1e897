// Package factory provides the generic registry used to build pluggable
// modules (metrics sinks, run log stores, progress sinks) from configuration.
// A module is described by a type string and a map of raw settings which the
// registered constructor decodes into its own typed struct.
//
//	reg := factory.NewRegistry[runlog.Store]()
//	_ = reg.Register("jsonl", func(conf map[string]any) (runlog.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return runlog.NewJSONLStore(c.Path)
//	})
//	store, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "runs.jsonl"}})
package factory
