// Package resolver merges a local view of an entity with the remote one.
//
// Both policies keep long-standing client behaviour and carry known gaps:
// max-merging tallies undercounts when both sides hold distinct votes, and
// comments that share a timestamp collapse into the remote entry.
package resolver

import (
	"sort"

	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/models"
)

// Kinds understood by Resolve.
const (
	KindVotes    = "votes"
	KindComments = "comments"
)

// Comment sources.
const (
	SourceServer = "server"
	SourceLocal  = "local"
)

// ResolveVotes takes the larger count on each side.
func ResolveVotes(local, remote models.VoteTally) models.VoteTally {
	return models.VoteTally{
		Up:   max(local.Up, remote.Up),
		Down: max(local.Down, remote.Down),
	}
}

// ResolveComments unions both lists keyed by timestamp. The remote entry
// wins a collision. The result is newest first and every entry is tagged
// with its source. Inputs are not modified.
func ResolveComments(local, remote []models.Comment) []models.Comment {
	byTime := make(map[int64]models.Comment, len(local)+len(remote))
	for _, c := range remote {
		c.Source = SourceServer
		byTime[c.Timestamp.UnixNano()] = c
	}
	for _, c := range local {
		key := c.Timestamp.UnixNano()
		if _, taken := byTime[key]; taken {
			continue
		}
		c.Source = SourceLocal
		byTime[key] = c
	}

	out := make([]models.Comment, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Resolve dispatches on kind. Unknown kinds, or values of the wrong shape,
// return remote unchanged.
func Resolve(kind string, local, remote any) any {
	switch kind {
	case KindVotes:
		l, lok := local.(models.VoteTally)
		r, rok := remote.(models.VoteTally)
		if lok && rok {
			return ResolveVotes(l, r)
		}
	case KindComments:
		l, lok := local.([]models.Comment)
		r, rok := remote.([]models.Comment)
		if lok && rok {
			return ResolveComments(l, r)
		}
	}
	applog.Named("resolver").Warn("unhandled conflict type, using remote data", zap.String("kind", kind))
	return remote
}
