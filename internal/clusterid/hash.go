// Package clusterid computes the deterministic identifiers the cluster
// routing core uses to address rooms, pub/sub channels, and DHT keys.
// Every node in the mesh must derive the same id from the same inputs, so
// all hashing here is pure and order-sensitive.
package clusterid

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// RoomHash identifies a room uniquely across the whole cluster. It is
// derived from a tenant app id and a room name; two different apps using
// the same room name always produce different hashes.
type RoomHash uint64

// ChannelId identifies a pub/sub channel in the overlay.
type ChannelId uint64

// NewRoomHash derives a RoomHash from a tenant app id and room name.
// The hash is order-sensitive: it folds app and name into the digest in a
// fixed sequence separated by a delimiter byte, so "ab"+"c" and "a"+"bc"
// never collide by accident of concatenation.
func NewRoomHash(app, room string) RoomHash {
	d := xxhash.New()
	_, _ = d.Write([]byte(app))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte(room))
	return RoomHash(d.Sum64())
}

// GenTrackChannelId derives the ChannelId a (peer, track name) pair
// publishes to within a room, per gen_track_channel_id(room_hash, peer,
// name).
func GenTrackChannelId(room RoomHash, peer, name string) ChannelId {
	d := xxhash.New()
	writeRoomHash(d, room)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte(peer))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte(name))
	return ChannelId(d.Sum64())
}

// PeersMapKey derives the DHT key for a room's peer directory map.
func PeersMapKey(room RoomHash) string {
	return mapKey(room, "peers")
}

// TracksMapKey derives the DHT key for a room's track directory map.
func TracksMapKey(room RoomHash) string {
	return mapKey(room, "tracks")
}

// MessageChannelId derives the ChannelId for a labelled message channel
// within a room.
func MessageChannelId(room RoomHash, label string) ChannelId {
	d := xxhash.New()
	writeRoomHash(d, room)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte("msg"))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte(label))
	return ChannelId(d.Sum64())
}

// PeersKey derives the sub-key identifying a single peer's entry within a
// room's peer directory map. Dot separators keep keys within the
// character set JetStream KV accepts.
func PeersKey(peer string) string {
	return "peer." + peer
}

func mapKey(room RoomHash, suffix string) string {
	d := xxhash.New()
	writeRoomHash(d, room)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write([]byte(suffix))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], d.Sum64())
	return suffix + "." + hexEncode(buf[:])
}

func writeRoomHash(d *xxhash.Digest, room RoomHash) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(room))
	_, _ = d.Write(buf[:])
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
