/*
Package server exposes the research service over HTTP.

# Routes

	POST /research                         start a research session (?wait=true blocks for the answer)
	GET  /session/{id}                     session state dump
	POST /session/{id}/message             post user input to an awaiting_input session
	POST /session/{id}/interrupt           interrupt a running session
	POST /session/{id}/terminate           terminate and purge a session
	GET  /session/{id}/subscribe           WebSocket event subscription with state replay
	GET  /session/{id}/event               SSE feed for one session
	GET  /event                            SSE feed for all sessions
	GET  /status                           liveness and per-status session counts

# Event delivery

Two transports carry the same WireEvent envelope. The SSE endpoints
subscribe to the global event bus and filter by session ID; the
WebSocket endpoint registers a ChanRecipient with the session store,
which is the delivery path the research loop broadcasts on. A WebSocket
client therefore also observes the session being terminated: the store
closes its recipient and the handler sends a close frame.
*/
package server
