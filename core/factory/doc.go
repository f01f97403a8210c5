// Package factory instantiates pluggable modules from configuration. A module
// is selected by a type name and configured by a free-form map that the
// registered factory decodes with Decode:
//
//	sinks := factory.NewRegistry[metrics.MetricsSink]()
//	_ = sinks.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c InfluxConfig
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewInfluxSink(c), nil
//	})
//	sink, err := sinks.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086"}})
package factory
