/*
Package transport opens streaming HTTP requests against LLM endpoints.

It is the boundary below the event-stream decoder: given method, URL, JSON
body and headers it returns the raw response body. Connection errors, timeouts
and non-2xx statuses are reported as *types.Error transport failures before any
body byte is handed out.

  - StreamingClient — the interface the extraction client depends on
  - HTTPClient — net/http implementation with TLS hardening and optional rate limiting
  - MapHTTPError / ReadErrorMessage — status to error-code mapping
*/
package transport
