// Package ws provides WebSocket connection handling and event routing for
// planning-poker rooms.
//
// The package implements:
//   - Client: one WebSocket connection with a buffered, non-blocking send queue
//   - Hub: fan-out of room updates to every connection joined to a room
//   - HubManager: hub lookup across all live rooms
//   - Router: maps inbound events (join, changeRole, submitVote, resetVotes,
//     disconnect) to room.Store operations and owns the connection registry
//   - Handler: HTTP upgrade plus the read and write pumps
//
// The Router installs itself as the store's update hook, so every broadcast
// carries the post-mutation snapshot in the same order the mutations were
// applied. Validation failures are acknowledged to the offending connection
// only and never mutate or broadcast anything.
package ws
