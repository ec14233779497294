// Package factory provides a small generic registry used to instantiate
// pluggable modules (metrics sinks, driver notifiers) from configuration.
// Modules are defined by a type string and a map of raw settings.
// Factories decode the settings into typed structs and return the concrete
// implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[notify.Notifier]()
//	reg.Register("telegram", func(conf map[string]any) (notify.Notifier, error) {
//	    var c struct{ Token string `json:"token"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return telegram.New(c.Token)
//	})
//	n, err := reg.Create(factory.ModuleConfig{Type: "telegram", Conf: map[string]any{"token": "..."}})
package factory
