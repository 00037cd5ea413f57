// Package scaling maps a dataset's size to a resource envelope (C10).
//
// The policy is a pure function of chunk_count: no I/O, no randomness, no
// config lookups. Callers layer config defaults and request overrides on
// top of the returned Profile themselves (§4.11's resolution order).
package scaling

// Tier classifies a dataset by chunk count.
type Tier string

const (
	TierTiny   Tier = "tiny"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
	TierXLarge Tier = "xlarge"
)

// Unbounded marks a ScalingProfile field with no cap ("all" in §4.11's table).
const Unbounded = -1

// DatasetProfile summarizes a buffer set's size for the purpose of scaling.
type DatasetProfile struct {
	ChunkCount int
}

// Profile is the resource envelope recommended for a dataset of this size.
type Profile struct {
	Tier            Tier
	BatchSize       int
	Concurrency     int
	TopK            int // Unbounded means "all chunks"
	MaxChunksLoaded int // Unbounded means "all chunks"
}

// tierBounds is ordered ascending by the lower bound of chunk count, per
// the table in §4.11.
var tierBounds = []struct {
	tier      Tier
	maxChunks int // exclusive upper bound; -1 means unbounded
	profile   Profile
}{
	{TierTiny, 20, Profile{Tier: TierTiny, BatchSize: 1, Concurrency: 5, TopK: Unbounded, MaxChunksLoaded: Unbounded}},
	{TierSmall, 100, Profile{Tier: TierSmall, BatchSize: 5, Concurrency: 15, TopK: 100, MaxChunksLoaded: Unbounded}},
	{TierMedium, 500, Profile{Tier: TierMedium, BatchSize: 10, Concurrency: 30, TopK: 200, MaxChunksLoaded: 100}},
	{TierLarge, 2000, Profile{Tier: TierLarge, BatchSize: 20, Concurrency: 60, TopK: 400, MaxChunksLoaded: 200}},
	{TierXLarge, -1, Profile{Tier: TierXLarge, BatchSize: 50, Concurrency: 100, TopK: 500, MaxChunksLoaded: 300}},
}

// Resolve maps a DatasetProfile to a Profile. Pure: same input always
// produces the same output.
func Resolve(ds DatasetProfile) Profile {
	for _, b := range tierBounds {
		if b.maxChunks == -1 || ds.ChunkCount < b.maxChunks {
			return b.profile
		}
	}
	// unreachable: the last bound is always unbounded
	return tierBounds[len(tierBounds)-1].profile
}

// ClampConcurrency enforces a global ceiling on top of the tier's
// recommendation, per §4.11's "clamped by a global ceiling from configuration".
func ClampConcurrency(p Profile, ceiling int) int {
	if ceiling > 0 && p.Concurrency > ceiling {
		return ceiling
	}
	return p.Concurrency
}
