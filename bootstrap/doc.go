// Package bootstrap assembles a tracing runtime from configuration: the
// tracer backend, the event topics, and the listeners subscribed to them.
//
//	cfg := config.LoadOrDefault()
//	rt, err := bootstrap.Start(cfg, logger, prometheus.DefaultRegisterer)
//	if err != nil {
//		return err
//	}
//	defer rt.Shutdown(context.Background())
//
//	trunk := executor.NewTrunk()
//	rt.OverallTopic.Post(event.OverallBefore(trunk, sql, true))
package bootstrap
