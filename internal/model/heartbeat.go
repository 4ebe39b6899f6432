package model

// Heartbeat is a decoded liveness report from a worker node. The receive
// time is implicit: the lease is renewed relative to the moment it is handled.
type Heartbeat struct {
	Namespace Namespace `json:"cluster_id"`
	Peer      Peer      `json:"peer"`
	Stats     LoadStats `json:"stats"`
}
