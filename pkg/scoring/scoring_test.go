package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpilot/callpilot/pkg/models"
)

var (
	windowStart = time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 3, 20, 18, 0, 0, 0, time.UTC)
)

func offer(providerID string, start time.Time, confidence float64) models.SlotOffer {
	return models.SlotOffer{
		ProviderID: providerID,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Confidence: confidence,
	}
}

func providerMap(ps ...models.Provider) map[string]models.Provider {
	m := make(map[string]models.Provider, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return m
}

func TestRankEarlierWinsAllElseEqual(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "a", Rating: 4.0},
		models.Provider{ID: "b", Rating: 4.0},
	)
	travel := map[string]int{"a": 20, "b": 20}
	offers := []models.SlotOffer{
		offer("b", windowStart.Add(48*time.Hour), 0.9),
		offer("a", windowStart.Add(2*time.Hour), 0.9),
	}

	ranked, _ := Rank(offers, providers, travel, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ProviderID)
	assert.Equal(t, "b", ranked[1].ProviderID)
}

func TestRankHigherRatingWins(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "a", Rating: 2.0},
		models.Provider{ID: "b", Rating: 5.0},
	)
	start := windowStart.Add(4 * time.Hour)
	travel := map[string]int{"a": 20, "b": 20}
	offers := []models.SlotOffer{
		offer("a", start, 0.9),
		offer("b", start, 0.9),
	}

	ranked, _ := Rank(offers, providers, travel, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ProviderID)
}

func TestRankCloserWins(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "near", Rating: 4.0},
		models.Provider{ID: "far", Rating: 4.0},
	)
	start := windowStart.Add(4 * time.Hour)
	travel := map[string]int{"near": 5, "far": 55}
	offers := []models.SlotOffer{
		offer("far", start, 0.9),
		offer("near", start, 0.9),
	}

	ranked, _ := Rank(offers, providers, travel, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "near", ranked[0].ProviderID)
}

func TestRankRelativeNormalization(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "a", Rating: 5.0},
		models.Provider{ID: "b", Rating: 1.0},
	)
	offers := []models.SlotOffer{
		offer("a", windowStart.Add(time.Hour), 1.0),
		offer("b", windowStart.Add(100*time.Hour), 0.3),
	}

	ranked, _ := Rank(offers, providers, map[string]int{"a": 5, "b": 60}, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	require.NotNil(t, ranked[0].Score)
	assert.Equal(t, 1.0, *ranked[0].Score)
	for _, o := range ranked {
		require.NotNil(t, o.Score)
		assert.GreaterOrEqual(t, *o.Score, 0.0)
		assert.LessOrEqual(t, *o.Score, 1.0)
	}
	assert.Greater(t, *ranked[0].Score, *ranked[1].Score)
}

func TestRankDropsUnknownProviders(t *testing.T) {
	providers := providerMap(models.Provider{ID: "known", Rating: 4.0})
	offers := []models.SlotOffer{
		offer("known", windowStart.Add(time.Hour), 0.9),
		offer("ghost", windowStart.Add(time.Hour), 0.9),
	}

	ranked, breakdown := Rank(offers, providers, nil, nil, windowStart, windowEnd)
	require.Len(t, ranked, 1)
	assert.Equal(t, "known", ranked[0].ProviderID)
	assert.NotContains(t, breakdown, "ghost")
}

func TestRankWeightOverrides(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "early-lowrated", Rating: 1.0},
		models.Provider{ID: "late-highrated", Rating: 5.0},
	)
	travel := map[string]int{"early-lowrated": 20, "late-highrated": 20}
	offers := []models.SlotOffer{
		offer("early-lowrated", windowStart.Add(time.Hour), 0.9),
		offer("late-highrated", windowStart.Add(96*time.Hour), 0.9),
	}

	// Rating-dominated weights flip the default outcome.
	prefs := map[string]float64{
		"earliest_weight": 0.05,
		"rating_weight":   0.9,
	}
	ranked, _ := Rank(offers, providers, travel, prefs, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "late-highrated", ranked[0].ProviderID)

	defaultRanked, _ := Rank(offers, providers, travel, nil, windowStart, windowEnd)
	assert.Equal(t, "early-lowrated", defaultRanked[0].ProviderID)
}

func TestRankDefaultTravel(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "a", Rating: 4.0},
		models.Provider{ID: "b", Rating: 4.0},
	)
	start := windowStart.Add(4 * time.Hour)
	offers := []models.SlotOffer{
		offer("a", start, 0.9),
		offer("b", start, 0.9),
	}

	// Unknown travel uses the 20-minute default: ranking stays a tie in
	// collection order.
	ranked, breakdown := Rank(offers, providers, map[string]int{}, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ProviderID)
	assert.Equal(t, breakdown["a"][0].RawScore, breakdown["b"][0].RawScore)
	assert.InDelta(t, 1-20.0/60.0, breakdown["a"][0].Distance, 0.0001)
}

func TestRankStableOnTies(t *testing.T) {
	providers := providerMap(
		models.Provider{ID: "first", Rating: 3.0},
		models.Provider{ID: "second", Rating: 3.0},
	)
	start := windowStart.Add(6 * time.Hour)
	travel := map[string]int{"first": 10, "second": 10}
	offers := []models.SlotOffer{
		offer("first", start, 0.8),
		offer("second", start, 0.8),
	}

	ranked, _ := Rank(offers, providers, travel, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].ProviderID)
	assert.Equal(t, "second", ranked[1].ProviderID)
}

func TestRankEmptyInput(t *testing.T) {
	ranked, breakdown := Rank(nil, providerMap(), nil, nil, windowStart, windowEnd)
	assert.Empty(t, ranked)
	assert.Empty(t, breakdown)
}

func TestRankBreakdownShape(t *testing.T) {
	providers := providerMap(models.Provider{ID: "a", Rating: 4.5})
	offers := []models.SlotOffer{
		offer("a", windowStart.Add(time.Hour), 0.9),
		offer("a", windowStart.Add(24*time.Hour), 0.8),
	}

	ranked, breakdown := Rank(offers, providers, map[string]int{"a": 15}, nil, windowStart, windowEnd)
	require.Len(t, ranked, 2)
	require.Len(t, breakdown["a"], 2)
	for _, b := range breakdown["a"] {
		assert.Equal(t, DefaultEarliestWeight, b.Weights.Earliest)
		assert.InDelta(t, 0.9, b.Rating, 0.0001)
		assert.Greater(t, b.RawScore, 0.0)
	}
}

func TestRankEarliestClampedAtWindowEdges(t *testing.T) {
	providers := providerMap(models.Provider{ID: "a", Rating: 4.0})

	late := []models.SlotOffer{offer("a", windowEnd.Add(24*time.Hour), 0.9)}
	_, breakdown := Rank(late, providers, nil, nil, windowStart, windowEnd)
	assert.Equal(t, 0.0, breakdown["a"][0].Earliest)
}
