// Package signaling relays WebRTC negotiation messages between peers that
// share a room.
//
// A Service accepts websocket connections on behalf of a Registry of Rooms.
// Peers are placed in the room named by the "room" query parameter, told
// whether they are the initiator or a responder, and from then on every text
// frame they send is forwarded verbatim to the other members of their room.
// The relay never decodes peer payloads.
package signaling
