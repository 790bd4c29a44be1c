package hub

import (
	"net/http"

	"github.com/lexiview/bridge/bus"
)

// CallHandler serves the one-shot path: a single POSTed message,
// dispatched and answered in the same exchange. Dispatch failures
// (including unknown types) stay in-band as {success:false, error}
// with HTTP 200; non-200 means the transport itself failed.
func CallHandler(handlers *bus.HandlerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg bus.Message
		if err := bus.DecodeJSON(r, &msg); err != nil {
			http.Error(w, "bad message", http.StatusBadRequest)
			return
		}
		metricMessagesTotal.WithLabelValues(msg.Type, "oneshot").Inc()
		reply := handlers.Dispatch(r.Context(), msg)
		reply.Type = msg.Type
		reply.Payload = bus.Sanitize(reply.Payload)
		bus.WriteJSON(w, reply)
	}
}
