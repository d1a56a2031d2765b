// Package httpclient sends the ping POSTs and classifies their outcomes.
//
// # Request Building
//
// [NewRequestBuilder] validates the target and any extra headers once:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, payload.Request{...})
//
// Every request is a POST with a JSON body and the JSON Content-Type and
// Accept headers. The request's User-Agent always replaces a configured one.
//
// # Worker
//
// [Worker] implements runner.Executor. Each Execute call sends exactly one
// request and returns a record: SUCCESS for 200 or 201, FAIL for any other
// status, ERROR when no response arrived. ERROR records carry an error kind
// from [TransportErrorKind].
//
//	client := httpclient.NewClient(15*time.Second, workers)
//	worker := httpclient.NewWorker(client, builder, httpclient.WithTracing(provider))
//
// The client Timeout bounds the whole attempt including the body read.
package httpclient
