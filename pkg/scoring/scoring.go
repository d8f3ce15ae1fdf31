// Package scoring ranks collected slot offers by weighted criteria. Scores
// are relative: the best offer is always 1.0 and the rest are fractions of
// it, so callers compare within a campaign, never across campaigns.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/callpilot/callpilot/pkg/models"
)

// Default criterion weights. A campaign can override any of them through
// request preferences.
const (
	DefaultEarliestWeight   = 0.5
	DefaultRatingWeight     = 0.25
	DefaultDistanceWeight   = 0.2
	DefaultPreferenceWeight = 0.05
)

// defaultTravelMinutes stands in when no estimate exists for a provider.
const defaultTravelMinutes = 20

// travelCeilingMinutes is where the distance component bottoms out at zero.
const travelCeilingMinutes = 60

// Weights are the resolved criterion weights used for one ranking run.
type Weights struct {
	Earliest   float64 `json:"earliest"`
	Rating     float64 `json:"rating"`
	Distance   float64 `json:"distance"`
	Preference float64 `json:"preference"`
}

// ResolveWeights applies preference overrides onto the defaults. Recognized
// keys: earliest_weight, rating_weight, distance_weight, preference_weight.
func ResolveWeights(prefs map[string]float64) Weights {
	w := Weights{
		Earliest:   DefaultEarliestWeight,
		Rating:     DefaultRatingWeight,
		Distance:   DefaultDistanceWeight,
		Preference: DefaultPreferenceWeight,
	}
	if v, ok := prefs["earliest_weight"]; ok {
		w.Earliest = v
	}
	if v, ok := prefs["rating_weight"]; ok {
		w.Rating = v
	}
	if v, ok := prefs["distance_weight"]; ok {
		w.Distance = v
	}
	if v, ok := prefs["preference_weight"]; ok {
		w.Preference = v
	}
	return w
}

// Breakdown explains one offer's score for the campaign debug payload.
type Breakdown struct {
	Start         time.Time `json:"start"`
	Earliest      float64   `json:"earliest"`
	Rating        float64   `json:"rating"`
	Distance      float64   `json:"distance"`
	Preference    float64   `json:"preference"`
	Weights       Weights   `json:"weights"`
	RawScore      float64   `json:"raw_score"`
	RelativeScore float64   `json:"relative_score"`
}

// Rank scores and orders offers best-first. Offers whose provider is not in
// providers are dropped. travel maps provider id to estimated minutes; the
// window bounds the earliest component. The returned breakdown is grouped by
// provider id.
func Rank(offers []models.SlotOffer, providers map[string]models.Provider, travel map[string]int, prefs map[string]float64, windowStart, windowEnd time.Time) ([]models.SlotOffer, map[string][]Breakdown) {
	weights := ResolveWeights(prefs)

	window := windowEnd.Sub(windowStart)
	if window < time.Second {
		window = time.Second
	}

	type scored struct {
		offer      models.SlotOffer
		earliest   float64
		rating     float64
		distance   float64
		preference float64
		raw        float64
	}

	entries := make([]scored, 0, len(offers))
	for _, offer := range offers {
		p, ok := providers[offer.ProviderID]
		if !ok {
			continue
		}

		earliest := 1 - offer.Start.Sub(windowStart).Seconds()/window.Seconds()
		if earliest < 0 {
			earliest = 0
		}

		rating := p.Rating / 5

		minutes, ok := travel[offer.ProviderID]
		if !ok {
			minutes = defaultTravelMinutes
		}
		if minutes < 0 {
			minutes = 0
		}
		if minutes > travelCeilingMinutes {
			minutes = travelCeilingMinutes
		}
		distance := 1 - float64(minutes)/travelCeilingMinutes

		preference := offer.Confidence

		raw := weights.Earliest*earliest +
			weights.Rating*rating +
			weights.Distance*distance +
			weights.Preference*preference

		entries = append(entries, scored{
			offer:      offer,
			earliest:   earliest,
			rating:     rating,
			distance:   distance,
			preference: preference,
			raw:        round4(raw),
		})
	}

	// Stable: equal scores keep collection order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].raw > entries[j].raw
	})

	ranked := make([]models.SlotOffer, 0, len(entries))
	breakdown := make(map[string][]Breakdown)
	var top float64
	if len(entries) > 0 {
		top = entries[0].raw
	}
	for _, e := range entries {
		relative := e.raw
		if top > 0 {
			relative = e.raw / top
		}
		relative = round4(relative)

		offer := *e.offer.Clone()
		offer.Score = &relative
		ranked = append(ranked, offer)

		breakdown[e.offer.ProviderID] = append(breakdown[e.offer.ProviderID], Breakdown{
			Start:         e.offer.Start,
			Earliest:      round4(e.earliest),
			Rating:        round4(e.rating),
			Distance:      round4(e.distance),
			Preference:    round4(e.preference),
			Weights:       weights,
			RawScore:      e.raw,
			RelativeScore: relative,
		})
	}
	return ranked, breakdown
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
