// Package ws streams view lifecycle events to control-API clients.
//
// Each connection is bound to one view. After the upgrade the client
// receives a hello frame with the view snapshot, then every frame the
// view publishes: lifecycle events, navigation state snapshots, and
// page-to-host bridge messages. Slow consumers lose frames rather than
// stalling the view.
//
// Message Types (Client → Server):
//   - post: Deliver a host-to-page message ({"type":"post","data":"..."})
//   - inject: Queue script into the page ({"type":"inject","script":"..."})
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - hello: View snapshot on connect
//   - event: Load lifecycle event
//   - state: Navigation state snapshot
//   - message: Page-to-host bridge delivery
//   - pong: Keep-alive reply
//   - error: Client message rejected
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, logger, metrics)
//	router.GET("/views/:id/events", handler.HandleEvents)
package ws
