// Package similarity searches previously stored digests for exact and
// near-duplicate matches. The near-match path is a deliberate brute-force
// scan over every stored perceptual hash; at current asset volumes that is
// cheaper and simpler than maintaining a nearest-neighbor index, and it
// never mutates what it reads, so no locking is involved.
package similarity

import (
	"context"
	"fmt"
	"sort"

	"trust-pipeline/internal/hasher"
	"trust-pipeline/internal/models"
	"trust-pipeline/internal/store"
)

// DefaultMaxDistance is the Hamming threshold for near matches: 5 of 64
// bits, roughly 8% of the fingerprint.
const DefaultMaxDistance = 5

// Source provides the digest data the index scans.
type Source interface {
	AssetsBySHA256(ctx context.Context, digest, excludeAssetID string) ([]models.ParticipationAsset, error)
	AllPerceptualHashes(ctx context.Context, excludeAssetID, userID string) ([]store.PerceptualDigest, error)
}

// Match is one candidate asset. Distance is zero for exact matches.
type Match struct {
	AssetID         string `json:"asset_id"`
	ParticipationID string `json:"participation_id"`
	Distance        int    `json:"distance"`
}

// Index searches stored digests.
type Index struct {
	src         Source
	maxDistance int
}

// New builds an index over src. maxDistance <= 0 takes the default.
func New(src Source, maxDistance int) *Index {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Index{src: src, maxDistance: maxDistance}
}

// FindExact returns assets whose sha256 is byte-identical to digest,
// excluding the asset itself.
func (ix *Index) FindExact(ctx context.Context, digest, excludeAssetID string) ([]Match, error) {
	assets, err := ix.src.AssetsBySHA256(ctx, digest, excludeAssetID)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	matches := make([]Match, 0, len(assets))
	for _, a := range assets {
		matches = append(matches, Match{AssetID: a.ID, ParticipationID: a.ParticipationID})
	}
	return matches, nil
}

// FindSimilar returns every stored perceptual digest within the Hamming
// threshold of phash, sorted ascending by distance. userID, when non-empty,
// scopes the scan to that user's participations. Digests that fail to parse
// are skipped: they predate the current encoding and can never match.
func (ix *Index) FindSimilar(ctx context.Context, phash, excludeAssetID, userID string) ([]Match, error) {
	candidates, err := ix.src.AllPerceptualHashes(ctx, excludeAssetID, userID)
	if err != nil {
		return nil, fmt.Errorf("load phashes: %w", err)
	}

	var matches []Match
	for _, c := range candidates {
		d, err := hasher.HammingDistance(phash, c.PHash)
		if err != nil {
			continue
		}
		if d <= ix.maxDistance {
			matches = append(matches, Match{AssetID: c.AssetID, ParticipationID: c.ParticipationID, Distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches, nil
}
