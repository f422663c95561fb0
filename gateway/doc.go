// Package gateway connects a call to the room database bridge over a
// websocket.
//
// The bridge relays the database's event tables as JSON messages: audio
// and video frame events, participant changes and the media settings
// row. Outbound frames are written through a bounded queue; when the
// socket cannot keep up, frames are dropped rather than delayed.
package gateway
