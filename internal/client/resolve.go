package client

import "time"

// Resolve arbitrates two versions of the same entity by comparing
// updated_at timestamps: the remote version wins only when it is
// strictly later, so the incumbent side keeps ties. The comparison is
// symmetric and deterministic — given T1 < T2, the T2 side wins no
// matter which side is "local".
func Resolve(localUpdatedAt, remoteUpdatedAt time.Time) string {
	if remoteUpdatedAt.After(localUpdatedAt) {
		return ResolutionRemoteWins
	}
	return ResolutionLocalWins
}
