// Package dispatch forwards engine events to external messaging systems.
//
// NATSDispatcher publishes to NATS JetStream. Register its Dispatch method
// as a subscriber of the telemetry event publisher:
//
//	d, err := dispatch.Connect(ctx, cfg.NATS, logger)
//	tel.Events.Subscribe("nats", d.Dispatch, nil)
package dispatch
